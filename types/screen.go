package types

import "fmt"

// Frame is an element rectangle in device points (iOS) or pixels (Android).
type Frame struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the middle of the frame.
func (f Frame) Center() (int, int) {
	return f.X + f.Width/2, f.Y + f.Height/2
}

// Bounds formats the frame as "[x1,y1][x2,y2]".
func (f Frame) Bounds() string {
	return fmt.Sprintf("[%d,%d][%d,%d]", f.X, f.Y, f.X+f.Width, f.Y+f.Height)
}

// ScreenElement is one node of a flattened UI hierarchy. Every backend
// produces this shape regardless of its native tree format.
type ScreenElement struct {
	Type       string `json:"type"`
	Label      string `json:"label,omitempty"`
	Value      string `json:"value,omitempty"`
	Text       string `json:"text,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Package    string `json:"package,omitempty"`
	Frame      Frame  `json:"frame"`
	Enabled    bool   `json:"enabled"`
	Visible    bool   `json:"visible"`
	Focused    bool   `json:"focused,omitempty"`
}
