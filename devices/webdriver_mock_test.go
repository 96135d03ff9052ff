package devices

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type wdRequest struct {
	Method string
	Path   string
	Body   map[string]interface{}
	User   string
	Pass   string
}

// mockWebDriver serves WebDriverAgent and hub endpoints from a reply table
// keyed by "METHOD /path"; unknown endpoints answer {"value": null}.
type mockWebDriver struct {
	mu       sync.Mutex
	requests []wdRequest
	replies  map[string]interface{}
	server   *httptest.Server
}

func newMockWebDriver(t *testing.T, prefix string) *mockWebDriver {
	m := &mockWebDriver{replies: map[string]interface{}{
		"GET " + prefix + "/status":   map[string]interface{}{"value": map[string]interface{}{"ready": true}},
		"POST " + prefix + "/session": map[string]interface{}{"sessionId": "S1", "value": map[string]interface{}{"sessionId": "S1"}},
		"GET " + prefix + "/session/S1/window/rect": map[string]interface{}{
			"value": map[string]interface{}{"width": 390, "height": 844},
		},
	}}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		user, pass, _ := r.BasicAuth()

		m.mu.Lock()
		m.requests = append(m.requests, wdRequest{Method: r.Method, Path: r.URL.Path, Body: body, User: user, Pass: pass})
		reply, ok := m.replies[r.Method+" "+r.URL.Path]
		m.mu.Unlock()

		if !ok {
			reply = map[string]interface{}{"value": nil}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockWebDriver) reply(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[key] = value
}

func (m *mockWebDriver) last() wdRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// paths lists request lines after the session was created.
func (m *mockWebDriver) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.requests {
		if strings.HasSuffix(r.Path, "/status") || strings.HasSuffix(r.Path, "/session") {
			continue
		}
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func (m *mockWebDriver) find(method, path string) (wdRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Method == method && m.requests[i].Path == path {
			return m.requests[i], true
		}
	}
	return wdRequest{}, false
}
