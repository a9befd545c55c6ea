// internal/browser/browser_helper_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/puppetry-cli/internal/config"
)

// globalProcessSemaphore limits concurrent browser processes across the
// package; Chrome under -race is heavy enough that unbounded parallelism
// causes spurious timeouts.
var (
	globalProcessSemaphore     *semaphore.Weighted
	globalProcessSemaphoreOnce sync.Once

	chromePath     string
	chromePathOnce sync.Once
)

const (
	maxTestConcurrency      = 2
	shutdownTimeout         = 15 * time.Second
	defaultBrowserTimeout   = 120 * time.Second
	testCleanupGracePeriod  = 1 * time.Second
	semaphoreAcquireTimeout = 10 * time.Second
)

func getGlobalProcessSemaphore() *semaphore.Weighted {
	globalProcessSemaphoreOnce.Do(func() {
		concurrency := int64(runtime.GOMAXPROCS(0))
		if concurrency > maxTestConcurrency {
			concurrency = maxTestConcurrency
		}
		if concurrency < 1 {
			concurrency = 1
		}
		globalProcessSemaphore = semaphore.NewWeighted(concurrency)
	})
	return globalProcessSemaphore
}

// findChrome locates a usable browser binary, or returns "" when none is
// installed so integration tests can skip.
func findChrome() string {
	chromePathOnce.Do(func() {
		for _, name := range []string{
			"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell",
		} {
			if path, err := exec.LookPath(name); err == nil {
				chromePath = path
				return
			}
		}
	})
	return chromePath
}

// testFixture is a sandboxed browser environment for one test.
type testFixture struct {
	Config  *config.Config
	Manager *Manager
	Logger  *zap.Logger
	RootCtx context.Context
}

type fixtureConfigurator func(*config.Config)

func createTestConfig(execPath string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Browser.ExecPath = execPath
	cfg.Browser.Headless = true
	cfg.Browser.DisableCache = true
	cfg.Browser.IgnoreTLSErrors = true
	cfg.Browser.LaunchTimeout = 60 * time.Second
	// Shared memory in CI containers is tiny; without this Chrome crashes
	// under -race.
	cfg.Browser.Args = []string{"--disable-dev-shm-usage"}
	cfg.Network.NavigationTimeout = 60 * time.Second
	cfg.Network.ActionTimeout = 30 * time.Second
	cfg.Network.PostLoadWait = 0
	return cfg
}

// newTestFixture acquires a browser slot, launches an isolated browser, and
// registers teardown in LIFO order: manager shutdown, then semaphore release.
func newTestFixture(t *testing.T, configurators ...fixtureConfigurator) *testFixture {
	t.Helper()

	execPath := findChrome()
	if execPath == "" {
		t.Skip("no Chrome/Chromium binary found in PATH; skipping browser integration test")
	}

	logger := testLogger(t)

	deadline, ok := t.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultBrowserTimeout)
	}
	rootCtx, rootCancel := context.WithDeadline(context.Background(), deadline.Add(-testCleanupGracePeriod))
	t.Cleanup(rootCancel)

	sem := getGlobalProcessSemaphore()
	acquireCtx, acquireCancel := context.WithTimeout(rootCtx, semaphoreAcquireTimeout)
	err := sem.Acquire(acquireCtx, 1)
	acquireCancel()
	require.NoError(t, err, "failed to acquire browser process slot")
	t.Cleanup(func() { sem.Release(1) })

	cfg := createTestConfig(execPath)
	for _, configure := range configurators {
		configure(cfg)
	}

	manager, err := NewManager(rootCtx, cfg, logger)
	require.NoError(t, err, "failed to launch test browser")
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			t.Logf("warning: browser manager shutdown: %v", err)
		}
	})

	return &testFixture{
		Config:  cfg,
		Manager: manager,
		Logger:  logger,
		RootCtx: rootCtx,
	}
}

// newTestSession opens a session on the fixture's manager with cleanup.
func (f *testFixture) newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := f.Manager.NewSession(f.RootCtx)
	require.NoError(t, err, "failed to open session")
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Close(closeCtx)
	})
	return s
}

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t).With(zap.String("test", t.Name()))
}

func createTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func createStaticTestServer(t *testing.T, htmlContent string) *httptest.Server {
	t.Helper()
	return createTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, htmlContent)
	}))
}
