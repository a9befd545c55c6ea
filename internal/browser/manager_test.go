// internal/browser/manager_test.go
package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSessionLifecycle(t *testing.T) {
	f := newTestFixture(t)

	s := f.newTestSession(t)
	assert.NotEmpty(t, s.ID())
	assert.Contains(t, f.Manager.Sessions(), s.ID())

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	require.NoError(t, s.Close(closeCtx))

	assert.NotContains(t, f.Manager.Sessions(), s.ID(), "closed sessions must deregister")

	// Close is idempotent.
	require.NoError(t, s.Close(closeCtx))
	assert.NotContains(t, f.Manager.Sessions(), s.ID())
}

func TestManagerMultipleSessionsAreIsolated(t *testing.T) {
	f := newTestFixture(t)
	server := createStaticTestServer(t, `<html><head><title>isolated</title></head><body>ok</body></html>`)

	s1 := f.newTestSession(t)
	s2 := f.newTestSession(t)
	require.NotEqual(t, s1.ID(), s2.ID())
	assert.Len(t, f.Manager.Sessions(), 2)

	require.NoError(t, s1.Navigate(f.RootCtx, server.URL))

	// s2 never navigated; it must still be on the blank target.
	loc, err := s2.Location(f.RootCtx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", loc)
}

func TestManagerCloseAll(t *testing.T) {
	f := newTestFixture(t)

	f.newTestSession(t)
	f.newTestSession(t)
	require.Len(t, f.Manager.Sessions(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	require.NoError(t, f.Manager.CloseAll(ctx))
	assert.Empty(t, f.Manager.Sessions())
}

func TestManagerShutdown(t *testing.T) {
	f := newTestFixture(t)
	f.newTestSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	require.NoError(t, f.Manager.Shutdown(ctx))

	// Idempotent.
	require.NoError(t, f.Manager.Shutdown(ctx))

	// No new sessions after shutdown.
	_, err := f.Manager.NewSession(context.Background())
	assert.Error(t, err)
}

func TestManagerShutdownRacesNewSession(t *testing.T) {
	f := newTestFixture(t)
	f.newTestSession(t)

	// Open sessions while Shutdown runs. Each attempt either gets refused
	// or yields a session Shutdown accounts for; either way the bounded
	// wait below must not hang and nothing may outlive it.
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.Manager.NewSession(context.Background())
			if err != nil {
				return
			}
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			s.Close(closeCtx)
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	require.NoError(t, f.Manager.Shutdown(ctx))
	wg.Wait()

	assert.Empty(t, f.Manager.Sessions(), "no session may outlive shutdown")
}

func TestManagerRejectsUnreachableRemote(t *testing.T) {
	if findChrome() == "" {
		t.Skip("no Chrome/Chromium binary found in PATH; skipping browser integration test")
	}

	cfg := createTestConfig("")
	cfg.Browser.RemoteURL = "ws://127.0.0.1:1/devtools/browser/dead"
	cfg.Browser.LaunchTimeout = 3 * time.Second

	_, err := NewManager(context.Background(), cfg, testLogger(t))
	assert.Error(t, err, "attaching to a dead endpoint must fail the probe")
}
