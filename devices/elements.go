package devices

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mobile-next/devicebridge/types"
)

var boundsPattern = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseBounds converts "[x1,y1][x2,y2]" into a frame.
func ParseBounds(bounds string) (types.Frame, bool) {
	m := boundsPattern.FindStringSubmatch(bounds)
	if m == nil {
		return types.Frame{}, false
	}

	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return types.Frame{}, false
		}
		v[i] = n
	}

	return types.Frame{X: v[0], Y: v[1], Width: v[2] - v[0], Height: v[3] - v[1]}, true
}

// FindElement picks the index-th element matching resourceID or text.
// resourceID matches the Android resource id or the iOS element type; text
// matches the text, label or value.
func FindElement(elements []types.ScreenElement, resourceID, text string, index int) (*types.ScreenElement, error) {
	if resourceID == "" && text == "" {
		return nil, fmt.Errorf("No resource_id or text provided")
	}

	var criteria string
	if resourceID != "" {
		criteria = fmt.Sprintf("resource_id='%s'", resourceID)
	} else {
		criteria = fmt.Sprintf("text='%s'", text)
	}

	var matches []types.ScreenElement
	for _, e := range elements {
		if resourceID != "" {
			if e.Identifier == resourceID || e.Type == resourceID {
				matches = append(matches, e)
			}
			continue
		}
		if e.Text == text || e.Label == text || e.Value == text {
			matches = append(matches, e)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("No element found with %s", criteria)
	}

	if index < 0 || index >= len(matches) {
		return nil, fmt.Errorf("Index %d out of range for %s (found %d matches)", index, criteria, len(matches))
	}

	element := matches[index]
	if element.Frame.Width <= 0 && element.Frame.Height <= 0 {
		return nil, fmt.Errorf("Could not extract bounds for element")
	}
	return &element, nil
}

// PercentToPixels maps a 0-100 percentage onto [0, size-1].
func PercentToPixels(percent, size int) int {
	v := size * percent / 100
	if v < 0 {
		v = 0
	}
	if limit := size - 1; v > limit {
		v = max(limit, 0)
	}
	return v
}
