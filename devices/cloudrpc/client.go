// Package cloudrpc talks to a cloud-hosted iOS instance over its signaling
// WebSocket. Requests are JSON objects {type, id, ...params}; the reply
// carrying the same id resolves the call.
package cloudrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout     = 30 * time.Second
	ElementTreeTimeout = 60 * time.Second
	InstallTimeout     = 120 * time.Second
	PingInterval       = 30 * time.Second

	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

var (
	ErrConnectionClosed = errors.New("cloud connection closed")
	ErrTimeout          = errors.New("cloud request timed out")
)

// RemoteError is a reply that carried an error field.
type RemoteError struct {
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Type, e.Message)
}

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

type Options struct {
	Timeout      time.Duration
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

type Client struct {
	apiURL string
	token  string
	opts   Options
	log    *logrus.Entry

	counter atomic.Int64

	mu          sync.Mutex
	conn        *websocket.Conn
	pending     map[string]chan message
	state       State
	intentional bool
	everOpened  bool
	listeners   map[int]func(State)
	nextListen  int
	stopPing    chan struct{}
	info        *DeviceInfo

	writeMu sync.Mutex
	// dialMu lets one caller dial at a time; the others reuse its connection
	dialMu sync.Mutex
}

type message map[string]json.RawMessage

func NewClient(apiURL, token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = PingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout, Proxy: http.ProxyFromEnvironment}
	}
	return &Client{
		apiURL:    apiURL,
		token:     token,
		opts:      opts,
		log:       utils.WithComponent("cloudrpc"),
		pending:   make(map[string]chan message),
		state:     StateDisconnected,
		listeners: make(map[int]func(State)),
	}
}

// SignalingURL turns the instance API URL into its WebSocket signaling endpoint.
func SignalingURL(apiURL, token string) string {
	u := strings.TrimSuffix(apiURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/signaling?token=" + url.QueryEscape(token)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn and returns a function that unregisters it.
func (c *Client) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextListen
	c.nextListen++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// setStateLocked updates the state and returns the listeners to notify
// once c.mu is released.
func (c *Client) setStateLocked(state State) []func(State) {
	if c.state == state {
		return nil
	}
	c.state = state
	c.log.Debugf("connection state changed to: %s", state)

	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), state State) {
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					utils.Error("connection state callback panicked: %v", r)
				}
			}()
			fn(state)
		}()
	}
}

// Connect opens the WebSocket and fetches the device info.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.intentional = false
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return err
	}

	info, err := c.fetchDeviceInfo(ctx)
	if err != nil {
		c.Close()
		return err
	}
	c.log.Infof("connected to cloud iOS instance: %s", info.Model)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	state := StateConnecting
	if c.everOpened {
		state = StateReconnecting
	}
	fns := c.setStateLocked(state)
	c.mu.Unlock()
	notify(fns, state)

	conn, _, err := c.opts.Dialer.DialContext(ctx, SignalingURL(c.apiURL, c.token), nil)
	if err != nil {
		c.mu.Lock()
		fns := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		notify(fns, StateDisconnected)
		return fmt.Errorf("failed to connect to cloud instance: %w", err)
	}

	stop := make(chan struct{})
	c.mu.Lock()
	if c.intentional {
		// closed while dialing
		c.mu.Unlock()
		_ = conn.Close()
		return ErrConnectionClosed
	}
	c.conn = conn
	c.everOpened = true
	c.stopPing = stop
	fns = c.setStateLocked(StateConnected)
	c.mu.Unlock()
	notify(fns, StateConnected)

	go c.readLoop(conn)
	go c.pingLoop(conn, stop)
	return nil
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.log.Debugf("ping error: %v", err)
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, err)
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Errorf("failed to parse message: %v", err)
			continue
		}

		var id string
		if raw, ok := msg["id"]; ok {
			_ = json.Unmarshal(raw, &id)
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if ok {
			ch <- msg
		} else {
			var msgType string
			_ = json.Unmarshal(msg["type"], &msgType)
			c.log.Debugf("received message without pending request: %s", msgType)
		}
	}
}

// connectionLost fails every pending call. A later call dials again.
func (c *Client) connectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan message)
	var fns []func(State)
	if !c.intentional {
		fns = c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.log.Debugf("websocket connection closed: %v", err)
	}
	for _, ch := range pending {
		close(ch)
	}
	notify(fns, StateDisconnected)
}

// Close disconnects and fails all pending requests. It is safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	c.intentional = true
	conn := c.conn
	c.conn = nil
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan message)
	fns := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	for _, ch := range pending {
		close(ch)
	}
	notify(fns, StateDisconnected)
}

func (c *Client) nextID() string {
	return fmt.Sprintf("go-client-%d-%d", time.Now().UnixMilli(), c.counter.Add(1))
}

// Call sends one request and waits for its reply. A zero timeout uses the
// client default.
func (c *Client) Call(ctx context.Context, msgType string, params map[string]interface{}, timeout time.Duration) (map[string]json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}

	c.mu.Lock()
	intentional := c.intentional
	c.mu.Unlock()
	if intentional {
		return nil, ErrConnectionClosed
	}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	id := c.nextID()
	request := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		request[k] = v
	}
	request["type"] = msgType
	request["id"] = id

	ch := make(chan message, 1)
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(request)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", msgType, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", msgType, ErrConnectionClosed)
		}
		if remote := remoteError(msgType, msg); remote != nil {
			return nil, remote
		}
		return msg, nil
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("request %s: %w", msgType, ErrTimeout)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func remoteError(msgType string, msg message) error {
	raw, ok := msg["error"]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	if text == "" || text == "false" {
		return nil
	}
	return &RemoteError{Type: msgType, Message: text}
}
