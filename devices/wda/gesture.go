package wda

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoSession = errors.New("no WebDriver session")

func touchPointer(actions []Action) InputSource {
	return InputSource{
		Type:       "pointer",
		ID:         "finger1",
		Parameters: &PointerParameters{PointerType: "touch"},
		Actions:    actions,
	}
}

// PerformActions sends a W3C actions request for the current session.
func (c *Client) PerformActions(ctx context.Context, sources ...InputSource) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "actions"), ActionsRequest{Actions: sources})
		if err != nil {
			return fmt.Errorf("failed to perform actions: %w", err)
		}
		return nil
	})
}

// Gesture performs a single-finger pointer sequence.
func (c *Client) Gesture(ctx context.Context, actions []Action) error {
	return c.PerformActions(ctx, touchPointer(actions))
}
