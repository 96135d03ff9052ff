// Package wda is a WebDriver client with the WebDriverAgent extensions.
// It serves local WebDriverAgent servers and remote Appium-compatible hubs.
package wda

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const DefaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string

	mu        sync.Mutex
	sessionID string
}

// NewClient accepts a host:port or a full URL. A hub path such as /wd/hub is kept.
func NewClient(hostPort string, timeout time.Duration) *Client {
	baseURL := hostPort
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithBasicAuth sends credentials on every request, as device farm hubs require.
func (c *Client) WithBasicAuth(username, password string) *Client {
	c.username = username
	c.password = password
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type Action struct {
	Type     string `json:"type"`
	Duration int    `json:"duration,omitempty"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Button   int    `json:"button,omitempty"`
	Value    string `json:"value,omitempty"`
}

type PointerParameters struct {
	PointerType string `json:"pointerType"`
}

// InputSource is one entry of a W3C actions request: a pointer or a key source.
type InputSource struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Parameters *PointerParameters `json:"parameters,omitempty"`
	Actions    []Action           `json:"actions"`
}

type ActionsRequest struct {
	Actions []InputSource `json:"actions"`
}

// Error is a W3C error body: {"value": {"error": ..., "message": ...}}.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}
