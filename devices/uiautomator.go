package devices

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mobile-next/devicebridge/devices/adb"
	"github.com/mobile-next/devicebridge/utils"
)

// uiautomatorDevicePort is where the on-device automation server listens.
const uiautomatorDevicePort = 9008

// UIAutomatorServer talks JSON-RPC to an on-device UI automation server
// reached through an adb port forward.
type UIAutomatorServer struct {
	baseURL    string
	httpClient *http.Client
	requestID  atomic.Int64

	adb       *adb.Client
	serial    string
	localPort int
}

type uiRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type uiRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewUIAutomatorServer returns a client for a server already reachable at baseURL.
func NewUIAutomatorServer(baseURL string) *UIAutomatorServer {
	return &UIAutomatorServer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ConnectUIAutomator forwards a free local port to the on-device server and
// probes it. It fails when no server is running on the device.
func ConnectUIAutomator(ctx context.Context, client *adb.Client, serial string) (*UIAutomatorServer, error) {
	port, err := utils.FindAvailablePort("127.0.0.1", 19008, 100)
	if err != nil {
		return nil, err
	}

	local := "tcp:" + strconv.Itoa(port)
	if _, err := client.Run(ctx, serial, "forward", local, "tcp:"+strconv.Itoa(uiautomatorDevicePort)); err != nil {
		return nil, fmt.Errorf("failed to forward ui automation port: %w", err)
	}

	s := NewUIAutomatorServer(fmt.Sprintf("http://127.0.0.1:%d", port))
	s.adb = client
	s.serial = serial
	s.localPort = port

	var info json.RawMessage
	if err := s.call(ctx, "deviceInfo", nil, &info); err != nil {
		// the probe deadline may already have passed
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ui automation server not responding: %w", err)
	}

	utils.Verbose("UI automation server ready on %s via port %d", serial, port)
	return s, nil
}

func (s *UIAutomatorServer) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(uiRPCRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/jsonrpc/0", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var rpcResp uiRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// DumpHierarchy returns the compressed window hierarchy XML.
func (s *UIAutomatorServer) DumpHierarchy(ctx context.Context) (string, error) {
	var xmlData string
	if err := s.call(ctx, "dumpWindowHierarchy", []interface{}{true, 50}, &xmlData); err != nil {
		return "", err
	}
	return xmlData, nil
}

// Screenshot returns the encoded image produced by the server.
func (s *UIAutomatorServer) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := s.call(ctx, "takeScreenshot", []interface{}{1, 80}, &encoded); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Close removes the adb port forward, if this client created one.
func (s *UIAutomatorServer) Close(ctx context.Context) error {
	if s.adb == nil || s.localPort == 0 {
		return nil
	}
	_, err := s.adb.Run(ctx, s.serial, "forward", "--remove", "tcp:"+strconv.Itoa(s.localPort))
	s.localPort = 0
	return err
}
