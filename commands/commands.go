// Package commands adapts controller results to the response envelope the
// CLI prints and the server returns.
package commands

import (
	"github.com/mobile-next/devicebridge/controller"
)

// CommandResponse represents a standardized response format for all commands
type CommandResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) *CommandResponse {
	return &CommandResponse{
		Status: "ok",
		Data:   data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err error) *CommandResponse {
	return &CommandResponse{
		Status: "error",
		Error:  err.Error(),
	}
}

func fromResult(r controller.Result) *CommandResponse {
	if !r.OK {
		return &CommandResponse{Status: "error", Error: r.Error}
	}
	return NewSuccessResponse(r.Data)
}

// DeviceRequest targets a device without further parameters.
type DeviceRequest struct {
	DeviceID string `json:"deviceId"`
}
