package devices

import (
	"context"
	"time"

	"github.com/mobile-next/devicebridge/types"
)

const iosBackSwipeDuration = 300 * time.Millisecond

// iosBackSwipe performs the left-edge swipe iOS uses for "back", since
// there is no hardware back button.
func iosBackSwipe(ctx context.Context, size types.Size, swipe func(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error) error {
	y := size.Height / 4
	return swipe(ctx, 10, y, 300, y, iosBackSwipeDuration)
}
