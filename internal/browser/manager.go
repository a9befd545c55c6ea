// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/puppetry-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process (or the attachment to a remote one) and
// tracks every live session for bulk cleanup.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	// allocatorCtx manages the browser process. All session contexts are
	// derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	// wg tracks active sessions so Shutdown can wait for them.
	wg sync.WaitGroup
}

// NewManager builds the allocator, launches (or attaches to) the browser,
// and verifies it is responsive.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}

	if cfg.Browser.RemoteURL != "" {
		m.logger.Info("Attaching to remote browser.", zap.String("url", cfg.Browser.RemoteURL))
		m.allocatorCtx, m.allocatorCancel = chromedp.NewRemoteAllocator(ctx, cfg.Browser.RemoteURL)
	} else {
		m.logger.Info("Initializing browser allocator.")
		m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, buildAllocatorOptions(cfg)...)
	}

	if err := m.probe(); err != nil {
		m.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser is up and responsive.")
	return m, nil
}

// probe confirms the browser starts and answers commands within the
// configured launch timeout.
func (m *Manager) probe() error {
	probeCtx, cancelTimeout := context.WithTimeout(m.allocatorCtx, m.cfg.Browser.LaunchTimeout)
	defer cancelTimeout()

	probeCtx, cancelProbe := chromedp.NewContext(probeCtx)
	defer cancelProbe()

	return chromedp.Run(probeCtx, chromedp.Navigate("about:blank"))
}

// buildAllocatorOptions assembles launch flags from the configuration.
func buildAllocatorOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		// Later flags override the defaults, so headless follows config.
		chromedp.Flag("headless", cfg.Browser.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(cfg.Browser.WindowWidth, cfg.Browser.WindowHeight),
	)

	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}
	if cfg.Browser.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Browser.ProxyServer))
	}
	if cfg.Browser.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	// Custom args from config: "--flag" or "--flag=value".
	for _, arg := range cfg.Browser.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Containers on Linux need these to run at all.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// NewSession opens an isolated tab, applies configured defaults (cache,
// emulation), starts artifact harvesting, and registers the session.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	// The wg.Add must happen under the same lock hold as the closed check,
	// or a concurrent Shutdown could pass wg.Wait before this session is
	// counted.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	s := newSession(m.allocatorCtx, m.cfg, m.logger)
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", s.ID()))
	}

	if err := s.bootstrap(ctx); err != nil {
		// Cleanup must not depend on the (possibly dead) caller context.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		// Shutdown ran while the tab was bootstrapping. The session never
		// made it into the map, so CloseAll missed it; close it ourselves.
		m.mu.Unlock()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Close(cleanupCtx)
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// Sessions returns the IDs of all live sessions.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll closes every live session concurrently and returns the first
// close error encountered.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.RLock()
	toClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		toClose = append(toClose, s)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, s := range toClose {
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error closing session.", zap.String("session_id", s.ID()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown closes all sessions, waits for them bounded by ctx, then
// terminates the browser process. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("Browser manager shutting down.")

	err := m.CloseAll(ctx)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close; forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()

		select {
		case <-m.allocatorCtx.Done():
		case <-time.After(shutdownGracePeriod):
			m.logger.Warn("Browser process did not confirm termination in time.")
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	return err
}
