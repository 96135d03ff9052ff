package devices

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned by every capability of an adapter whose Init has not succeeded.
	ErrNotInitialized = errors.New("backend not initialized")
	// ErrUnsupported is returned for capabilities a backend cannot provide.
	ErrUnsupported = errors.New("operation not supported by this backend")
)

// DeviceNotFoundError is returned when no strategy recognises a device id.
type DeviceNotFoundError struct {
	ID      string
	Visible []Identity
}

func (e *DeviceNotFoundError) Error() string {
	if len(e.Visible) == 0 {
		return fmt.Sprintf("device not found: %s. No iOS devices are visible: boot a simulator with "+
			"'xcrun simctl boot <udid>' or connect a physical device over USB and trust this computer", e.ID)
	}

	var listed []string
	for _, d := range e.Visible {
		listed = append(listed, fmt.Sprintf("%s (%s)", d.ID, d.Kind))
	}
	return fmt.Sprintf("device not found: %s. Available devices: %s", e.ID, strings.Join(listed, ", "))
}

// SetupError reports a missing tool or an environment that never became ready.
type SetupError struct {
	Tool         string
	Err          error
	Instructions string
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("%s is not available", e.Tool)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Instructions != "" {
		msg += "\n\n" + e.Instructions
	}
	return msg
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
