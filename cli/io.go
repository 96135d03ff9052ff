package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mobile-next/devicebridge/commands"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/spf13/cobra"
)

var ioCmd = &cobra.Command{
	Use:   "io",
	Short: "Input/output operations with devices",
	Long:  `Perform input/output operations like tapping, swiping, pressing buttons, and sending text to devices.`,
}

// parseCoords parses "a,b,..." into exactly n integers.
func parseCoords(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("invalid coordinate format. Expected %d comma separated values, got '%s'", n, s)
	}

	values := make([]int, n)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate value '%s': must be an integer", part)
		}
		values[i] = v
	}
	return values, nil
}

// printError reports a failure the same way command responses are reported.
func printError(err error) error {
	response := commands.NewErrorResponse(err)
	printJson(response)
	return fmt.Errorf("%s", response.Error)
}

var ioTapCmd = &cobra.Command{
	Use:   "tap [x,y]",
	Short: "Tap on a device screen at the given coordinates",
	Long: `Sends a tap event to the specified device at the given x,y coordinates. Coordinates should be provided as a single string "x,y".
With --percent the coordinates are percentages of the screen size. A --duration turns the tap into a long press.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coords, err := parseCoords(args[0], 2)
		if err != nil {
			return printError(err)
		}

		req := commands.TapRequest{
			DeviceID:   deviceId,
			X:          coords[0],
			Y:          coords[1],
			Percent:    percentCoords,
			DurationMs: durationMs,
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.TapCommand(ctx, c, req)
		})
	},
}

var ioSwipeCmd = &cobra.Command{
	Use:   "swipe [x1,y1,x2,y2]",
	Short: "Swipe on a device screen from one point to another",
	Long:  `Sends a swipe gesture from x1,y1 to x2,y2. With --percent the coordinates are percentages of the screen size.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coords, err := parseCoords(args[0], 4)
		if err != nil {
			return printError(err)
		}

		req := commands.SwipeRequest{
			DeviceID:   deviceId,
			X1:         coords[0],
			Y1:         coords[1],
			X2:         coords[2],
			Y2:         coords[3],
			Percent:    percentCoords,
			DurationMs: durationMs,
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.SwipeCommand(ctx, c, req)
		})
	},
}

var ioTextCmd = &cobra.Command{
	Use:   "text [text]",
	Short: "Send text input to a device",
	Long:  `Types the given text into the focused field of the device.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.TextRequest{
			DeviceID: deviceId,
			Text:     args[0],
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.TextCommand(ctx, c, req)
		})
	},
}

var ioButtonCmd = &cobra.Command{
	Use:   "button [button_name]",
	Short: "Press a hardware button on a device",
	Long:  `Presses a button on the device. Supported buttons: home, back, enter, volume_up, volume_down, power.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.ButtonRequest{
			DeviceID: deviceId,
			Button:   strings.ToLower(args[0]),
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.ButtonCommand(ctx, c, req)
		})
	},
}

var ioKeyCmd = &cobra.Command{
	Use:   "key [code]",
	Short: "Send a raw platform keycode",
	Long:  `Sends an Android keyevent code or an iOS HID usage code to the device.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := strconv.Atoi(args[0])
		if err != nil {
			return printError(fmt.Errorf("invalid key code '%s': must be an integer", args[0]))
		}

		req := commands.KeyRequest{
			DeviceID: deviceId,
			Code:     code,
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.KeyCommand(ctx, c, req)
		})
	},
}

var ioEraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Delete characters from the focused text field",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.EraseRequest{
			DeviceID: deviceId,
			Count:    eraseCount,
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.EraseCommand(ctx, c, req)
		})
	},
}

var ioElementCmd = &cobra.Command{
	Use:   "element",
	Short: "Find a UI element by resource id or text",
	Long:  `Locates an element in the UI tree and prints its bounds. With --tap the element's center is tapped.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.ElementRequest{
			DeviceID:   deviceId,
			ResourceID: elementResourceID,
			Text:       elementText,
			Index:      elementIndex,
			Tap:        elementTap,
			DurationMs: durationMs,
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.ElementCommand(ctx, c, req)
		})
	},
}

var ioOrientationCmd = &cobra.Command{
	Use:   "orientation [portrait|landscape]",
	Short: "Set the screen orientation of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.OrientationSetRequest{
			DeviceID:    deviceId,
			Orientation: strings.ToLower(args[0]),
		}
		return runWithController(cmd, func(ctx context.Context, c *controller.Controller) *commands.CommandResponse {
			return commands.OrientationSetCommand(ctx, c, req)
		})
	},
}

func init() {
	rootCmd.AddCommand(ioCmd)

	ioCmd.AddCommand(ioTapCmd)
	ioCmd.AddCommand(ioSwipeCmd)
	ioCmd.AddCommand(ioTextCmd)
	ioCmd.AddCommand(ioButtonCmd)
	ioCmd.AddCommand(ioKeyCmd)
	ioCmd.AddCommand(ioEraseCmd)
	ioCmd.AddCommand(ioElementCmd)
	ioCmd.AddCommand(ioOrientationCmd)

	for _, c := range ioCmd.Commands() {
		c.Flags().StringVar(&deviceId, "device", "", "ID of the device to send input to")
	}

	ioTapCmd.Flags().BoolVar(&percentCoords, "percent", false, "treat coordinates as screen percentages")
	ioTapCmd.Flags().IntVar(&durationMs, "duration", 0, "press duration in milliseconds")
	ioSwipeCmd.Flags().BoolVar(&percentCoords, "percent", false, "treat coordinates as screen percentages")
	ioSwipeCmd.Flags().IntVar(&durationMs, "duration", 0, "swipe duration in milliseconds (default 400)")
	ioEraseCmd.Flags().IntVar(&eraseCount, "count", 0, "number of characters to delete (default 50)")
	ioElementCmd.Flags().StringVar(&elementResourceID, "resource-id", "", "resource id of the element")
	ioElementCmd.Flags().StringVar(&elementText, "text", "", "visible text of the element")
	ioElementCmd.Flags().IntVar(&elementIndex, "index", 0, "which match to use when several elements share the resource id")
	ioElementCmd.Flags().BoolVar(&elementTap, "tap", false, "tap the element once found")
	ioElementCmd.Flags().IntVar(&durationMs, "duration", 0, "press duration in milliseconds when tapping")
}
