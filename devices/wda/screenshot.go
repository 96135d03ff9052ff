package wda

import (
	"context"
	"encoding/base64"
	"fmt"
)

func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	endpoint := "screenshot"
	if sessionID := c.SessionID(); sessionID != "" {
		endpoint = c.sessionPath(sessionID, "screenshot")
	}

	response, err := c.GetEndpoint(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}

	encoded, ok := response["value"].(string)
	if !ok || encoded == "" {
		return nil, fmt.Errorf("invalid screenshot response: missing value")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return data, nil
}
