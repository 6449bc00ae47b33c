package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/antcore/internal/domain/runtime"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/antcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/antcore/internal/storage/codestore"
)

const startApp = "function start(){return 'Success'}"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Runtime.AppDir = t.TempDir()
	cfg.Runtime.LoadTimeout = time.Second
	cfg.Runtime.StartTimeout = time.Second
	cfg.Runtime.InfoTimeout = time.Second
	cfg.Metrics.Enabled = false
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	srv, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Manager().Close() })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func assertResult(t *testing.T, w *httptest.ResponseRecorder, want runtime.Result) {
	t.Helper()
	assert.Equal(t, want.Code, w.Code)
	assert.Equal(t, want.Message, w.Body.String())
	assert.Equal(t, strconv.Itoa(len(want.Message)), w.Header().Get("Content-Length"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodGet, "/", ""), runtime.Alive)
	assertResult(t, do(t, srv, http.MethodGet, "//", ""), runtime.Alive)
}

func TestFreshProcess(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodGet, "/runtime/currentApp", ""), runtime.NoAppInstalled)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", "start"), runtime.OperationFailed)
	assert.Equal(t, runtime.StateUninstalled, srv.Manager().Snapshot().State)

	w := do(t, srv, http.MethodGet, "/runtime/currentApp/code", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestInstallAndStart(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp", startApp), runtime.Success)
	assert.Equal(t, runtime.StateInstalled, srv.Manager().Snapshot().State)

	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", "start"), runtime.Success)
	assert.Equal(t, runtime.StateRunning, srv.Manager().Snapshot().State)

	w := do(t, srv, http.MethodGet, "/runtime/currentApp", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "running", status["state"])
	assert.Equal(t, float64(len(startApp)), status["size"])
	assert.NotEmpty(t, status["digest"])
	assert.NotEmpty(t, status["started_at"])
}

func TestCodeRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	code := "// héllo\nfunction start(){\r\n  return 'Success';\n}\n\n"

	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp", code), runtime.Success)

	w := do(t, srv, http.MethodGet, "/runtime/currentApp/code", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, code, w.Body.String())
	assert.Equal(t, strconv.Itoa(len(code)), w.Header().Get("Content-Length"))
}

func TestInstallFailureKeepsCode(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp", "var notAnApp = 1;"), runtime.OperationFailed)
	assert.Equal(t, runtime.StateUninstalled, srv.Manager().Snapshot().State)
	assert.Equal(t, "var notAnApp = 1;", do(t, srv, http.MethodGet, "/runtime/currentApp/code", "").Body.String())
	assertResult(t, do(t, srv, http.MethodGet, "/runtime/currentApp", ""), runtime.NoAppInstalled)
}

func TestRemoveAndStopUnimplemented(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodDelete, "/runtime/currentApp", ""), runtime.Unimplemented)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp", startApp), runtime.Success)
	assertResult(t, do(t, srv, http.MethodDelete, "/runtime/currentApp", ""), runtime.Unimplemented)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", "stop"), runtime.Unimplemented)
	assert.Equal(t, runtime.StateInstalled, srv.Manager().Snapshot().State)
}

func TestInvalidCommand(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", "restart"), runtime.InvalidCommand)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", ""), runtime.InvalidCommand)
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/runtime/currentApp"},
		{http.MethodPost, "/"},
		{http.MethodDelete, "/"},
		{http.MethodGet, "/runtime"},
		{http.MethodGet, "/metrics"},
		{http.MethodGet, "/runtime/currentApp/code/extra"},
		{http.MethodPost, "/runtime/currentApp/code"},
		{http.MethodGet, "/runtime/currentApp/command"},
		{http.MethodPatch, "/runtime/currentApp/command"},
		{http.MethodGet, "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assertResult(t, do(t, srv, tt.method, tt.path, ""), runtime.NotFound)
		})
	}
}

func TestEscapedSlashIsNotASeparator(t *testing.T) {
	srv := newTestServer(t, nil)

	assertResult(t, do(t, srv, http.MethodGet, "/runtime%2FcurrentApp", ""), runtime.NotFound)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp%2Fcommand", "start"), runtime.NotFound)
	assertResult(t, do(t, srv, http.MethodGet, "/runtime/currentApp", ""), runtime.NoAppInstalled)
}

func TestStartTimeoutIndependentOfLoadTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runtime.LoadTimeout = 100 * time.Millisecond
	cfg.Runtime.StartTimeout = 5 * time.Second
	srv := newTestServer(t, cfg)

	app := "function start(){ var end = Date.now() + 400; while (Date.now() < end) {} return 'Success'; }"
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp", app), runtime.Success)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", "start"), runtime.Success)
	assert.Equal(t, runtime.StateRunning, srv.Manager().Snapshot().State)
}

func TestStartTimeoutFailsClosed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Runtime.StartTimeout = 100 * time.Millisecond
	srv := newTestServer(t, cfg)

	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp", "function start(){ while(true){} }"), runtime.Success)
	assertResult(t, do(t, srv, http.MethodPost, "/runtime/currentApp/command", "start"), runtime.OperationFailed)
	assert.Equal(t, runtime.StateInstalled, srv.Manager().Snapshot().State)
}

func TestPersistedAppReportedNotReloaded(t *testing.T) {
	cfg := testConfig(t)
	store, err := codestore.New(cfg.Runtime.AppDir)
	require.NoError(t, err)
	digest, err := store.Save([]byte(startApp))
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	srv, err := New(cfg, &logging.Logger{Logger: zap.New(core)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Manager().Close() })

	found := logs.FilterMessage("Found app from a previous run, not reloading").All()
	require.Len(t, found, 1)
	assert.Equal(t, digest, found[0].ContextMap()["digest"])
	assert.Equal(t, runtime.StateUninstalled, srv.Manager().Snapshot().State)

	// A fresh directory logs nothing
	core, logs = observer.New(zap.InfoLevel)
	_, err = New(testConfig(t), &logging.Logger{Logger: zap.New(core)})
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("Found app from a previous run, not reloading").Len())
}

func TestGzipUpload(t *testing.T) {
	srv := newTestServer(t, nil)

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	_, err := zw.Write([]byte(startApp))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runtime/currentApp", &compressed)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assertResult(t, w, runtime.Success)

	assert.Equal(t, startApp, do(t, srv, http.MethodGet, "/runtime/currentApp/code", "").Body.String())
}

func TestBodyErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MaxBodyBytes = 16
	srv := newTestServer(t, cfg)

	t.Run("too large", func(t *testing.T) {
		w := do(t, srv, http.MethodPost, "/runtime/currentApp", strings.Repeat("x", 17))
		assertResult(t, w, runtime.PayloadTooLarge)
		assert.Equal(t, runtime.StateUninstalled, srv.Manager().Snapshot().State)
		assert.Empty(t, do(t, srv, http.MethodGet, "/runtime/currentApp/code", "").Body.String())
	})

	t.Run("unsupported encoding", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/runtime/currentApp", strings.NewReader("abc"))
		req.Header.Set("Content-Encoding", "br")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assertResult(t, w, runtime.BadRequest)
	})
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, nil)

	w := do(t, srv, http.MethodGet, "/", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 1
	srv := newTestServer(t, cfg)

	assertResult(t, do(t, srv, http.MethodGet, "/", ""), runtime.Alive)
	assertResult(t, do(t, srv, http.MethodGet, "/", ""), runtime.TooManyRequests)
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t, nil)

	do(t, srv, http.MethodPost, "/runtime/currentApp", startApp)
	do(t, srv, http.MethodGet, "/nowhere", "")

	w := httptest.NewRecorder()
	srv.metricsEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `antcore_http_requests_total{method="POST",route="install",status="200"} 1`)
	assert.Contains(t, body, `antcore_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "antcore_app_state 1")
}

func TestServeAndShutdown(t *testing.T) {
	srv := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Alive", string(body))
	assert.Equal(t, int64(5), resp.ContentLength)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
