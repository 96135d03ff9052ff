// Package server exposes the controller as JSON-RPC 2.0 over HTTP POST /rpc
// and WebSocket /ws.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mobile-next/devicebridge/controller"
	"github.com/mobile-next/devicebridge/utils"
	"github.com/sirupsen/logrus"
)

// Version is stamped at build time.
var Version = "dev"

const (
	// Parse error: Invalid JSON was received by the server
	ErrCodeParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object
	ErrCodeInvalidRequest = -32600

	// Method not found: The method does not exist / is not available
	ErrCodeMethodNotFound = -32601

	// Invalid params: Invalid method parameters
	ErrCodeInvalidParams = -32602

	// Server error: the method ran and failed
	ErrCodeServerError = -32000
)

const (
	errTitleParseError   = "Parse error"
	errTitleInvalidReq   = "Invalid Request"
	errTitleNotFound     = "Method not found"
	errTitleInvalidParam = "Invalid params"
	errTitleServerError  = "Server error"

	errMsgParseError     = "expecting jsonrpc payload"
	errMsgInvalidJSONRPC = "'jsonrpc' must be '2.0'"
	errMsgIDRequired     = "'id' field is required"
	errMsgMethodRequired = "'method' is required"
)

// Server timeouts
const (
	ReadTimeout     = 10 * time.Second
	WriteTimeout    = 10 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 30 * time.Second

	// slowCallTimeout covers attaching a WDA device or stitching a recording
	slowCallTimeout = 10 * time.Minute
)

var okResponse = map[string]interface{}{"status": "ok"}

type JSONRPCRequest struct {
	// these fields are all omitempty, so we can report back to client if they are missing
	JSONRPC string          `json:"jsonrpc,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// rpcError is a JSON-RPC error object before serialization.
type rpcError struct {
	code    int
	message string
	data    string
}

func (e *rpcError) object() map[string]interface{} {
	return map[string]interface{}{
		"code":    e.code,
		"message": e.message,
		"data":    e.data,
	}
}

func validateJSONRPCRequest(req JSONRPCRequest) *rpcError {
	if req.JSONRPC != "2.0" {
		return &rpcError{ErrCodeInvalidRequest, errTitleInvalidReq, errMsgInvalidJSONRPC}
	}
	if req.ID == nil {
		return &rpcError{ErrCodeInvalidRequest, errTitleInvalidReq, errMsgIDRequired}
	}
	if req.Method == "" {
		return &rpcError{ErrCodeInvalidRequest, errTitleInvalidReq, errMsgMethodRequired}
	}
	return nil
}

type Options struct {
	EnableCORS bool
}

// Server routes JSON-RPC calls to the controller.
type Server struct {
	ctrl    *controller.Controller
	opts    Options
	methods map[string]HandlerFunc
	log     *logrus.Entry

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

func New(ctrl *controller.Controller, opts Options) *Server {
	s := &Server{
		ctrl:     ctrl,
		opts:     opts,
		log:      utils.WithComponent("server"),
		shutdown: make(chan struct{}),
	}
	s.methods = s.methodRegistry()
	return s
}

// ShutdownRequested is closed once a client calls server.shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// corsMiddleware handles CORS preflight requests and adds CORS headers to responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler serves the banner, /rpc and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", sendBanner)
	mux.HandleFunc("/rpc", s.handleJSONRPC)
	mux.HandleFunc("/ws", s.handleWebSocket)

	if s.opts.EnableCORS {
		return corsMiddleware(mux)
	}
	return mux
}

// NormalizeAddr turns a bare port into ":port".
func NormalizeAddr(addr string) (string, error) {
	if strings.Contains(addr, ":") {
		return addr, nil
	}
	port, err := strconv.Atoi(addr)
	if err != nil {
		return "", fmt.Errorf("invalid port: %v", err)
	}
	return fmt.Sprintf(":%d", port), nil
}

// ListenAndServe runs until ctx is cancelled or a client requests shutdown,
// then drains connections and shuts the controller down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	addr, err := NormalizeAddr(addr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		utils.Info("Starting server on http://%s...", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		utils.Info("Shutting down server...")
	case <-s.shutdown:
		utils.Info("Shutdown requested by client")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("server shutdown: %v", err)
	}
	s.ctrl.Shutdown(shutdownCtx)
	return nil
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONRPCError(w, nil, ErrCodeParseError, errTitleParseError, errMsgParseError)
		return
	}

	if verr := validateJSONRPCRequest(req); verr != nil {
		id := req.ID
		if verr.data == errMsgIDRequired {
			id = nil
		}
		sendJSONRPCError(w, id, verr.code, verr.message, verr.data)
		return
	}

	if slowMethods[req.Method] {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(slowCallTimeout))
	}

	result, rerr := s.call(r.Context(), req)
	if rerr != nil {
		sendJSONRPCError(w, req.ID, rerr.code, rerr.message, rerr.data)
		return
	}
	sendJSONRPCResponse(w, req.ID, result)
}

// call runs one validated request and maps failures to JSON-RPC errors.
func (s *Server) call(ctx context.Context, req JSONRPCRequest) (interface{}, *rpcError) {
	log := s.log.WithFields(logrus.Fields{"request": uuid.NewString(), "method": req.Method})
	log.Debugf("id=%v params=%s", req.ID, string(req.Params))

	handler, exists := s.methods[req.Method]
	if !exists {
		return nil, &rpcError{ErrCodeMethodNotFound, errTitleNotFound, fmt.Sprintf("Method '%s' not found", req.Method)}
	}

	start := time.Now()
	result, err := handler(ctx, req.Params)
	if err != nil {
		var perr *paramsError
		if errors.As(err, &perr) {
			log.Warnf("invalid params: %v", err)
			return nil, &rpcError{ErrCodeInvalidParams, errTitleInvalidParam, err.Error()}
		}
		log.Errorf("failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return nil, &rpcError{ErrCodeServerError, errTitleServerError, err.Error()}
	}

	log.Debugf("completed in %s", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// Execute dispatches one method call without a transport.
func (s *Server) Execute(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	result, rerr := s.call(ctx, JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 0})
	if rerr != nil {
		return nil, fmt.Errorf("%s: %s", rerr.message, rerr.data)
	}
	return result, nil
}

func sendJSONRPCResponse(w http.ResponseWriter, id interface{}, result interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
			"data":    data,
		},
		ID: id,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func sendBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "version": Version})
}
