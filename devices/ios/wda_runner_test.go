package ios

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckWDARunning(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"value body", http.StatusOK, `{"value":{"ready":true}}`, true},
		{"session body", http.StatusOK, `{"sessionId":"abc"}`, true},
		{"unexpected body", http.StatusOK, `{"hello":"world"}`, false},
		{"not json", http.StatusOK, `<html>`, false},
		{"server error", http.StatusInternalServerError, `{"value":{}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/status", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			assert.Equal(t, tt.want, CheckWDARunning(context.Background(), server.URL, time.Second))
		})
	}
}

func TestCheckWDARunning_Unreachable(t *testing.T) {
	assert.False(t, CheckWDARunning(context.Background(), "http://127.0.0.1:1", 200*time.Millisecond))
}

func TestWaitForWDA_BecomesReady(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"value":{}}`))
	}))
	defer server.Close()

	ok := WaitForWDA(context.Background(), server.URL, 2*time.Second, 10*time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForWDA_TimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	start := time.Now()
	ok := WaitForWDA(context.Background(), server.URL, 100*time.Millisecond, 20*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPortFromURL(t *testing.T) {
	assert.Equal(t, 8100, PortFromURL("http://localhost:8100"))
	assert.Equal(t, 9200, PortFromURL("http://127.0.0.1:9200/"))
	assert.Equal(t, 8100, PortFromURL("http://localhost"))
	assert.Equal(t, 8100, PortFromURL("::bad"))
}

func TestFindWDAProject_EnvPathWins(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "WebDriverAgent.xcodeproj")
	require.NoError(t, os.Mkdir(project, 0o755))

	assert.Equal(t, project, FindWDAProject(project))
}

func TestWDASetupInstructions_ShortensUDID(t *testing.T) {
	text := WDASetupInstructions("00008110-001A2B3C4D5E6F70")
	assert.Contains(t, text, "00008110-001A2B3C...")
	assert.Contains(t, text, "git clone https://github.com/appium/WebDriverAgent.git")
}

func TestWDARunner_BuildFailed(t *testing.T) {
	stubLookPath(t, true)
	runner := newFakeRunner()
	runner.process = newFakeProcess("")

	r := NewWDARunner(runner, "udid-1", "/tmp/WebDriverAgent.xcodeproj", 5*time.Second)
	go func() {
		time.Sleep(50 * time.Millisecond)
		runner.process.write("** BUILD FAILED **\n")
	}()

	_, err := r.Start(context.Background())
	assert.ErrorContains(t, err, "WDA build failed")
	assert.True(t, runner.process.wasStopped())
	assert.Contains(t, runner.Calls(),
		"xcodebuild test -project /tmp/WebDriverAgent.xcodeproj -scheme WebDriverAgentRunner -destination id=udid-1 -allowProvisioningUpdates")
}

func TestWDARunner_TimeoutWhileRunningKeepsProcess(t *testing.T) {
	stubLookPath(t, true)
	runner := newFakeRunner()
	runner.process = newFakeProcess("Compiling...\n")

	r := NewWDARunner(runner, "udid-1", "/tmp/WebDriverAgent.xcodeproj", 100*time.Millisecond)
	process, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, process)
	assert.False(t, runner.process.wasStopped())
}

func TestWDARunner_MissingXcodebuild(t *testing.T) {
	stubLookPath(t, false)

	_, err := NewWDARunner(newFakeRunner(), "udid", "", 0).Start(context.Background())
	assert.ErrorContains(t, err, "xcodebuild not found")
}
