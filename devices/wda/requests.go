package wda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mobile-next/devicebridge/utils"
)

func (c *Client) doRequest(ctx context.Context, method, endpoint string, data interface{}) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimPrefix(endpoint, "/"))

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	if value, ok := result["value"].(map[string]interface{}); ok {
		if code, ok := value["error"].(string); ok && code != "" {
			message, _ := value["message"].(string)
			return nil, &Error{Status: resp.StatusCode, Code: code, Message: message}
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("%s %s returned status %d", method, endpoint, resp.StatusCode)}
	}

	return result, nil
}

func (c *Client) GetEndpoint(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	return c.doRequest(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) PostEndpoint(ctx context.Context, endpoint string, data interface{}) (map[string]interface{}, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	return c.doRequest(ctx, http.MethodPost, endpoint, data)
}

func (c *Client) DeleteEndpoint(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	return c.doRequest(ctx, http.MethodDelete, endpoint, nil)
}

// Status returns the body of GET /status.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	return c.GetEndpoint(ctx, "status")
}

// WaitForAgent polls /status until it answers or ctx is done.
func (c *Client) WaitForAgent(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := c.Status(ctx)
		if err == nil {
			utils.Verbose("WebDriverAgent is ready at %s", c.baseURL)
			return nil
		}
		utils.Verbose("WebDriverAgent not ready yet: %v", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for WebDriverAgent to be ready")
		case <-ticker.C:
		}
	}
}

// CreateSession opens a session with alwaysMatch set to capabilities.
func (c *Client) CreateSession(ctx context.Context, capabilities map[string]interface{}) (string, error) {
	if capabilities == nil {
		capabilities = map[string]interface{}{"platformName": "iOS"}
	}

	response, err := c.PostEndpoint(ctx, "session", map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	// WDA puts sessionId at the top level, W3C hubs inside value
	sessionID, _ := response["sessionId"].(string)
	if sessionID == "" {
		if value, ok := response["value"].(map[string]interface{}); ok {
			sessionID, _ = value["sessionId"].(string)
		}
	}
	if sessionID == "" {
		return "", fmt.Errorf("failed to create session: no sessionId in response")
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
	return sessionID, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := c.DeleteEndpoint(ctx, "session/"+sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	if c.sessionID == sessionID {
		c.sessionID = ""
	}
	c.mu.Unlock()
	return nil
}

// SessionID returns the current session, or "" when none is open.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) withSession(fn func(sessionID string) error) error {
	sessionID := c.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	return fn(sessionID)
}

func (c *Client) sessionPath(sessionID, suffix string) string {
	return fmt.Sprintf("session/%s/%s", sessionID, suffix)
}
