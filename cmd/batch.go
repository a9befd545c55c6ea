// -- cmd/batch.go --
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/puppetry-cli/internal/browser"
	"github.com/xkilldash9x/puppetry-cli/internal/observability"
	"github.com/xkilldash9x/puppetry-cli/internal/output"
)

var batchFlags struct {
	concurrency int
	rps         float64
	fullPage    bool
	format      string
}

var batchCmd = &cobra.Command{
	Use:   "batch <url-file>",
	Short: "Capture screenshots for a list of URLs",
	Long: `Read URLs (one per line, '#' comments allowed) from a file or from
stdin when the argument is "-", and capture a screenshot for each against a
shared browser process. Failures are logged and do not stop the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, err := readURLList(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs to capture")
		}

		logger := observability.GetLogger()
		ctx := cmd.Context()

		mgr, err := browser.NewManager(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), managerShutdownTimeout)
			defer cancel()
			if err := mgr.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Browser shutdown reported an error.", zap.Error(err))
			}
		}()

		writer := output.NewWriter(cfg.Capture.OutputDir, logger)
		limiter := batchLimiter(batchFlags.rps)
		opts := browser.CaptureOptions{
			Format:  pickString(batchFlags.format, cfg.Capture.Format),
			Quality: cfg.Capture.Quality,
		}

		var failures atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchFlags.concurrency)

		results := make([]string, len(urls))
		for i, url := range urls {
			g.Go(func() error {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				path, err := captureOne(gctx, mgr, writer, url, opts)
				if err != nil {
					logger.Error("Capture failed.", zap.String("url", url), zap.Error(err))
					failures.Add(1)
					return nil // keep the batch going
				}
				results[i] = path
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, path := range results {
			if path != "" {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
		}
		if n := failures.Load(); n > 0 {
			return fmt.Errorf("%d of %d captures failed", n, len(urls))
		}
		return nil
	},
}

// batchLimiter builds the navigation throttle. A non-positive rate means
// unthrottled, not "a limiter that never fires".
func batchLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// captureOne runs a full navigate-and-capture cycle in its own session.
func captureOne(ctx context.Context, mgr *browser.Manager, writer *output.Writer, url string, opts browser.CaptureOptions) (string, error) {
	session, err := mgr.NewSession(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		session.Close(closeCtx)
	}()

	if err := session.Navigate(ctx, url); err != nil {
		return "", err
	}

	var data []byte
	if batchFlags.fullPage {
		data, err = session.FullScreenshot(ctx, opts)
	} else {
		data, err = session.Screenshot(ctx, opts)
	}
	if err != nil {
		return "", err
	}

	return writer.Write(writer.DefaultName(url, opts.Format), data)
}

// readURLList parses one URL per line, skipping blanks and '#' comments.
func readURLList(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open URL list: %w", err)
		}
		defer f.Close()
		r = f
	}

	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return urls, nil
}

func init() {
	f := batchCmd.Flags()
	f.IntVar(&batchFlags.concurrency, "concurrency", 3, "maximum concurrent tabs")
	f.Float64Var(&batchFlags.rps, "rps", 2, "navigation rate limit in requests per second (0 disables)")
	f.BoolVar(&batchFlags.fullPage, "full-page", false, "capture the entire scrollable page")
	f.StringVar(&batchFlags.format, "format", "", "image format: png, jpeg or webp")

	rootCmd.AddCommand(batchCmd)
}
