// Package tunnel relays local TCP connections to a remote WebSocket
// endpoint so that an unmodified adb client can reach a cloud device.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

const (
	BufferSize   = 32 * 1024
	PingInterval = 30 * time.Second
	StopTimeout  = 5 * time.Second

	dialTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second

	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

type Options struct {
	PingInterval time.Duration
	Dialer       *websocket.Dialer
}

// Bridge accepts connections on a loopback port and opens one WebSocket per
// connection. A failing connection never affects the listener or its peers.
type Bridge struct {
	remoteURL string
	token     string
	opts      Options
	log       *logrus.Entry

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	addr     string
}

func New(remoteURL, token string, opts Options) *Bridge {
	if opts.PingInterval <= 0 {
		opts.PingInterval = PingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout, Proxy: http.ProxyFromEnvironment}
	}
	return &Bridge{
		remoteURL: remoteURL,
		token:     token,
		opts:      opts,
		log:       utils.WithComponent("tunnel"),
	}
}

// Start binds an ephemeral loopback port and returns its address. The port
// is listening before Start returns. Calling Start on a running bridge
// returns the existing address.
func (b *Bridge) Start() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener != nil {
		return b.addr, nil
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to bind tunnel listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.listener = listener
	b.cancel = cancel
	b.done = make(chan struct{})
	b.addr = listener.Addr().String()

	go b.acceptLoop(ctx, listener, b.done)

	b.log.Infof("ADB tunnel listening on %s", b.addr)
	return b.addr, nil
}

// Addr is the local address, or "" when the bridge is not running.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addr
}

// Stop closes the listener and every relay, waiting up to StopTimeout for
// them to drain. It is safe to call more than once.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	listener := b.listener
	cancel := b.cancel
	done := b.done
	b.listener = nil
	b.cancel = nil
	b.done = nil
	b.addr = ""
	b.mu.Unlock()

	if listener == nil {
		return nil
	}

	cancel()
	_ = listener.Close()

	select {
	case <-done:
	case <-time.After(StopTimeout):
		b.log.Warnf("ADB tunnel did not stop within %s", StopTimeout)
	}
	b.log.Info("ADB tunnel stopped")
	return nil
}

func (b *Bridge) acceptLoop(ctx context.Context, listener net.Listener, done chan struct{}) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(done)
	}()

	var retry time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if retry == 0 {
				retry = acceptRetryMin
			} else {
				retry = min(2*retry, acceptRetryMax)
			}
			b.log.Errorf("tunnel accept error: %v; retrying in %s", err, retry)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}
		retry = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handle(ctx, conn)
		}()
	}
}

func (b *Bridge) handle(ctx context.Context, tcp net.Conn) {
	log := b.log.WithField("conn", uuid.NewString()[:8])
	defer func() {
		_ = tcp.Close()
		log.Debug("connection closed")
	}()
	log.Debugf("new TCP connection from %s", tcp.RemoteAddr())

	header := http.Header{}
	if b.token != "" {
		header.Set("Authorization", "Bearer "+b.token)
	}

	ws, _, err := b.opts.Dialer.DialContext(ctx, b.remoteURL, header)
	if err != nil {
		log.Errorf("connection error: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()
	log.Debug("WebSocket connected to remote ADB")

	relay(ctx, tcp, ws, b.opts.PingInterval, log)
}

// relay copies in both directions until either side ends, then closes both.
func relay(ctx context.Context, tcp net.Conn, ws *websocket.Conn, pingInterval time.Duration, log *logrus.Entry) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		defer cancel()
		tcpToWS(tcp, ws, &writeMu, log)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		wsToTCP(ws, tcp, log)
	}()

	go func() {
		defer wg.Done()
		keepalive(ctx, ws, pingInterval, log)
	}()

	<-ctx.Done()
	// closing both ends unblocks whichever copy loop is still reading
	writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	writeMu.Unlock()
	_ = ws.Close()
	_ = tcp.Close()
	wg.Wait()
}

func tcpToWS(tcp net.Conn, ws *websocket.Conn, writeMu *sync.Mutex, log *logrus.Entry) {
	buf := make([]byte, BufferSize)
	count := 0
	for {
		n, err := tcp.Read(buf)
		if n > 0 {
			count++
			writeMu.Lock()
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n])
			writeMu.Unlock()
			if werr != nil {
				log.Debugf("tcp->ws: send error after %d msgs: %v", count, werr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debugf("tcp->ws: closed by client after %d msgs", count)
			} else {
				log.Debugf("tcp->ws: recv error after %d msgs: %v", count, err)
			}
			return
		}
	}
}

func wsToTCP(ws *websocket.Conn, tcp net.Conn, log *logrus.Entry) {
	count := 0
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			log.Debugf("ws->tcp: closed after %d msgs: %v", count, err)
			return
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		count++
		if _, err := tcp.Write(data); err != nil {
			log.Debugf("ws->tcp: write error after %d msgs: %v", count, err)
			return
		}
	}
}

func keepalive(ctx context.Context, ws *websocket.Conn, interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debugf("ping error: %v", err)
			}
		}
	}
}
