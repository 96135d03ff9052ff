package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/mobile-next/devicebridge/controller"
)

// RecordStartRequest starts a screen recording. MaxDurationSeconds of zero
// uses the configured limit.
type RecordStartRequest struct {
	DeviceID           string `json:"deviceId"`
	MaxDurationSeconds int    `json:"maxDurationSeconds,omitempty"`
}

type RecordStopRequest struct {
	DeviceID string `json:"deviceId"`
}

func RecordStartCommand(ctx context.Context, c *controller.Controller, req RecordStartRequest) *CommandResponse {
	if req.MaxDurationSeconds < 0 {
		return NewErrorResponse(fmt.Errorf("max duration must be non-negative, got %d", req.MaxDurationSeconds))
	}
	return fromResult(c.StartRecording(ctx, req.DeviceID, time.Duration(req.MaxDurationSeconds)*time.Second))
}

// RecordStopCommand finalizes the recording and returns the video path
func RecordStopCommand(ctx context.Context, c *controller.Controller, req RecordStopRequest) *CommandResponse {
	return fromResult(c.StopRecording(ctx, req.DeviceID))
}

// RecordStatusCommand lists active recordings
func RecordStatusCommand(c *controller.Controller) *CommandResponse {
	return NewSuccessResponse(map[string]interface{}{
		"sessions": c.Recorder().Sessions(),
	})
}
