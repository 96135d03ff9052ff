package wda

import (
	"context"
	"fmt"
)

// SendKeys types text into whatever has focus using the WebDriverAgent keys endpoint.
func (c *Client) SendKeys(ctx context.Context, text string) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "wda/keys"), map[string]interface{}{
			"value": []string{text},
		})
		if err != nil {
			return fmt.Errorf("failed to send keys: %w", err)
		}
		return nil
	})
}

// w3c element reference key
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// ActiveElement returns the id of the focused element.
func (c *Client) ActiveElement(ctx context.Context) (string, error) {
	var elementID string
	err := c.withSession(func(sessionID string) error {
		response, err := c.GetEndpoint(ctx, c.sessionPath(sessionID, "element/active"))
		if err != nil {
			return fmt.Errorf("failed to get active element: %w", err)
		}

		value, ok := response["value"].(map[string]interface{})
		if !ok {
			return fmt.Errorf("no active element")
		}
		if id, ok := value[elementKey].(string); ok {
			elementID = id
		} else if id, ok := value["ELEMENT"].(string); ok {
			elementID = id
		}
		if elementID == "" {
			return fmt.Errorf("no active element")
		}
		return nil
	})
	return elementID, err
}

func (c *Client) ElementSendKeys(ctx context.Context, elementID, text string) error {
	return c.withSession(func(sessionID string) error {
		_, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "element/"+elementID+"/value"), map[string]interface{}{
			"text":  text,
			"value": []string{text},
		})
		if err != nil {
			return fmt.Errorf("failed to send keys to element: %w", err)
		}
		return nil
	})
}

func (c *Client) ElementText(ctx context.Context, elementID string) (string, error) {
	var text string
	err := c.withSession(func(sessionID string) error {
		response, err := c.GetEndpoint(ctx, c.sessionPath(sessionID, "element/"+elementID+"/text"))
		if err != nil {
			return fmt.Errorf("failed to read element text: %w", err)
		}
		text, _ = response["value"].(string)
		return nil
	})
	return text, err
}

func (c *Client) ElementClear(ctx context.Context, elementID string) error {
	return c.withSession(func(sessionID string) error {
		if _, err := c.PostEndpoint(ctx, c.sessionPath(sessionID, "element/"+elementID+"/clear"), nil); err != nil {
			return fmt.Errorf("failed to clear element: %w", err)
		}
		return nil
	})
}
