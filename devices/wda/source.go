package wda

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mobile-next/devicebridge/types"
)

// Source returns the XML page source of the current session.
func (c *Client) Source(ctx context.Context) (string, error) {
	var source string
	err := c.withSession(func(sessionID string) error {
		response, err := c.GetEndpoint(ctx, c.sessionPath(sessionID, "source"))
		if err != nil {
			return fmt.Errorf("failed to get page source: %w", err)
		}
		var ok bool
		source, ok = response["value"].(string)
		if !ok {
			return fmt.Errorf("invalid page source response")
		}
		return nil
	})
	return source, err
}

// ParseXMLSource flattens an XCUITest XML page source in document order.
// The AppiumAUT wrapper is skipped.
func ParseXMLSource(source string) ([]types.ScreenElement, error) {
	decoder := xml.NewDecoder(strings.NewReader(source))

	var elements []types.ScreenElement
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse page source: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local == "AppiumAUT" {
			continue
		}
		elements = append(elements, elementFromXML(start))
	}

	if len(elements) == 0 {
		return nil, fmt.Errorf("failed to parse page source: no elements")
	}
	return elements, nil
}

func elementFromXML(start xml.StartElement) types.ScreenElement {
	attrs := make(map[string]string, len(start.Attr))
	for _, attr := range start.Attr {
		attrs[attr.Name.Local] = attr.Value
	}

	elementType := attrs["type"]
	if elementType == "" {
		elementType = start.Name.Local
	}

	label := attrs["label"]
	if label == "" {
		label = attrs["name"]
	}

	visible := true
	if v, ok := attrs["visible"]; ok {
		visible = v == "true"
	}

	return types.ScreenElement{
		Type:       elementType,
		Label:      label,
		Value:      attrs["value"],
		Text:       label,
		Identifier: attrs["name"],
		Frame: types.Frame{
			X:      attrInt(attrs["x"]),
			Y:      attrInt(attrs["y"]),
			Width:  attrInt(attrs["width"]),
			Height: attrInt(attrs["height"]),
		},
		Enabled: attrs["enabled"] == "true",
		Visible: visible,
	}
}

func attrInt(value string) int {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return int(f)
}
