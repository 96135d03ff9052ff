// Package daemon detaches `server start --daemon` from the terminal and
// stops a running server over JSON-RPC.
package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/mobile-next/devicebridge/server"
	"github.com/sevlyar/go-daemon"
)

const (
	// DaemonEnvVar marks a daemon child process
	DaemonEnvVar = "DEVICEBRIDGE_DAEMON_CHILD"

	// shutdownRequestID is the JSON-RPC request ID for shutdown commands
	shutdownRequestID = 1

	killTimeout = 10 * time.Second
)

// Daemonize detaches the process. A nil process means this is the child,
// a non-nil one is the parent's handle on it. logFile receives the child's
// output when set.
func Daemonize(logFile string) (*os.Process, error) {
	ctx := &daemon.Context{
		LogFileName: logFile,
		WorkDir:     "/",
		Umask:       027,
		Args:        os.Args,
		Env:         append(os.Environ(), fmt.Sprintf("%s=1", DaemonEnvVar)),
	}
	if logFile != "" {
		ctx.LogFilePerm = 0o640
	}

	child, err := ctx.Reborn()
	if err != nil {
		return nil, fmt.Errorf("failed to daemonize: %w", err)
	}

	return child, nil
}

// IsChild returns true if this is the daemon child process
func IsChild() bool {
	return os.Getenv(DaemonEnvVar) == "1"
}

// serverURL turns a listen address into the URL a client can reach.
func serverURL(addr string) (string, error) {
	addr, err := server.NormalizeAddr(addr)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr, nil
}

// KillServer sends server.shutdown to the server listening on addr.
func KillServer(addr string) error {
	base, err := serverURL(addr)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(server.JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  "server.shutdown",
		ID:      shutdownRequestID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: killTimeout}
	req, err := http.NewRequest(http.MethodPost, base+"/rpc", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("server is not running on %s", base)
		}
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned error: %s", resp.Status)
	}

	var rpcResp server.JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("server rejected shutdown: %v", rpcResp.Error)
	}
	return nil
}
