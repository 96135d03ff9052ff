package companion

import (
	"encoding/json"
	"fmt"

	"github.com/mobile-next/devicebridge/types"
)

// AccessibilityNode is one element of `idb ui describe-all --json`.
type AccessibilityNode struct {
	Type     string  `json:"type"`
	Label    *string `json:"AXLabel"`
	Value    *string `json:"AXValue"`
	UniqueID *string `json:"AXUniqueId"`
	Title    *string `json:"title"`
	Role     string  `json:"role"`
	Enabled  bool    `json:"enabled"`
	PID      int     `json:"pid"`
	Frame    struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"frame"`
}

// ParseAccessibility accepts either a JSON array or a single object.
func ParseAccessibility(data []byte) ([]AccessibilityNode, error) {
	var nodes []AccessibilityNode
	if err := json.Unmarshal(data, &nodes); err == nil {
		return nodes, nil
	}

	var node AccessibilityNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse accessibility output: %w", err)
	}
	return []AccessibilityNode{node}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Element converts the node into the flat element shape.
func (n AccessibilityNode) Element() types.ScreenElement {
	frame := types.Frame{
		X:      int(n.Frame.X),
		Y:      int(n.Frame.Y),
		Width:  int(n.Frame.Width),
		Height: int(n.Frame.Height),
	}
	text := deref(n.Title)
	if text == "" {
		text = deref(n.Label)
	}
	return types.ScreenElement{
		Type:       n.Type,
		Label:      deref(n.Label),
		Value:      deref(n.Value),
		Text:       text,
		Identifier: deref(n.UniqueID),
		Frame:      frame,
		Enabled:    n.Enabled,
		Visible:    frame.Width > 0 && frame.Height > 0,
	}
}

// Elements converts every node.
func Elements(nodes []AccessibilityNode) []types.ScreenElement {
	elements := make([]types.ScreenElement, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, n.Element())
	}
	return elements
}

// ApplicationNode returns the top-level Application node, if present.
func ApplicationNode(nodes []AccessibilityNode) (AccessibilityNode, bool) {
	for _, n := range nodes {
		if n.Type == "Application" {
			return n, true
		}
	}
	return AccessibilityNode{}, false
}
