package devices

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/mobile-next/devicebridge/types"
)

type uiNode struct {
	Class         string   `xml:"class,attr"`
	Text          string   `xml:"text,attr"`
	ResourceID    string   `xml:"resource-id,attr"`
	ContentDesc   string   `xml:"content-desc,attr"`
	Package       string   `xml:"package,attr"`
	Bounds        string   `xml:"bounds,attr"`
	Enabled       string   `xml:"enabled,attr"`
	Focused       string   `xml:"focused,attr"`
	VisibleToUser string   `xml:"visible-to-user,attr"`
	Nodes         []uiNode `xml:"node"`
}

type uiHierarchy struct {
	XMLName xml.Name `xml:"hierarchy"`
	Nodes   []uiNode `xml:"node"`
}

// ParseAndroidHierarchy flattens a uiautomator XML dump, depth first.
func ParseAndroidHierarchy(data []byte) ([]types.ScreenElement, error) {
	// uiautomator prints a status line after the document when dumping to stdout
	if end := bytes.LastIndex(data, []byte("</hierarchy>")); end >= 0 {
		data = data[:end+len("</hierarchy>")]
	}

	var root uiHierarchy
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse ui hierarchy: %w", err)
	}

	var elements []types.ScreenElement
	var walk func(nodes []uiNode)
	walk = func(nodes []uiNode) {
		for _, n := range nodes {
			frame, _ := ParseBounds(n.Bounds)
			elements = append(elements, types.ScreenElement{
				Type:       n.Class,
				Text:       n.Text,
				Label:      n.ContentDesc,
				Identifier: n.ResourceID,
				Package:    n.Package,
				Frame:      frame,
				Enabled:    n.Enabled == "true",
				Focused:    n.Focused == "true",
				Visible:    n.VisibleToUser != "false",
			})
			walk(n.Nodes)
		}
	}
	walk(root.Nodes)

	return elements, nil
}
