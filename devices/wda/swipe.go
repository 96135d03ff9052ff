package wda

import (
	"context"
	"time"
)

// SwipeActions drags from start to end over duration.
func SwipeActions(x1, y1, x2, y2 int, duration time.Duration) []Action {
	return []Action{
		{Type: "pointerMove", Duration: 0, X: x1, Y: y1},
		{Type: "pointerDown", Button: 0},
		{Type: "pointerMove", Duration: int(duration.Milliseconds()), X: x2, Y: y2},
		{Type: "pointerUp", Button: 0},
	}
}

// HoldAndMoveActions presses, waits for hold, then jumps to the end point.
// Remote XCUITest hubs treat this as a swipe more reliably than a timed move.
func HoldAndMoveActions(x1, y1, x2, y2 int, hold time.Duration) []Action {
	return []Action{
		{Type: "pointerMove", Duration: 0, X: x1, Y: y1},
		{Type: "pointerDown", Button: 0},
		{Type: "pause", Duration: int(hold.Milliseconds())},
		{Type: "pointerMove", Duration: 0, X: x2, Y: y2},
		{Type: "pointerUp", Button: 0},
	}
}

func (c *Client) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return c.Gesture(ctx, SwipeActions(x1, y1, x2, y2, duration))
}
