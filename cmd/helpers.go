// -- cmd/helpers.go --
package cmd

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
	"github.com/xkilldash9x/puppetry-cli/internal/observability"
	"github.com/xkilldash9x/puppetry-cli/internal/output"
)

const managerShutdownTimeout = 20 * time.Second

// withSession spins up a manager and one session, runs fn, and tears
// everything down regardless of fn's outcome.
func withSession(ctx context.Context, fn func(ctx context.Context, s *browser.Session) error) error {
	logger := observability.GetLogger()

	mgr, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		// Shutdown must proceed even when ctx was the reason fn failed.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), managerShutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown reported an error.", zap.Error(err))
		}
	}()

	session, err := mgr.NewSession(ctx)
	if err != nil {
		return err
	}

	return fn(ctx, session)
}

// newArtifactWriter builds the output writer, honoring an explicit output
// path: "-o dir/name.png" redirects both directory and filename.
func newArtifactWriter(outPath string) (*output.Writer, string) {
	logger := observability.GetLogger()
	if outPath == "" {
		return output.NewWriter(cfg.Capture.OutputDir, logger), ""
	}
	return output.NewWriter(filepath.Dir(outPath), logger), filepath.Base(outPath)
}
