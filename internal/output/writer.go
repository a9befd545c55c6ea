// internal/output/writer.go
package output

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Writer lands capture artifacts on a filesystem. The fs is injected so
// tests can use an in-memory one.
type Writer struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewWriter creates a Writer rooted at dir on the OS filesystem.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return NewWriterFs(afero.NewOsFs(), dir, logger)
}

// NewWriterFs creates a Writer on an explicit filesystem.
func NewWriterFs(fs afero.Fs, dir string, logger *zap.Logger) *Writer {
	return &Writer{
		fs:     fs,
		dir:    dir,
		logger: logger.Named("output"),
		now:    time.Now,
	}
}

// Write stores data under the given name inside the output directory,
// creating it as needed, and returns the full path.
func (w *Writer) Write(name string, data []byte) (string, error) {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir %q: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, name)
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", path, err)
	}

	w.logger.Info("Artifact written.", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// DefaultName builds a timestamped filename from a page URL, e.g.
// "example.com_20260831-154500.png".
func (w *Writer) DefaultName(pageURL, ext string) string {
	stem := "page"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		stem = sanitize(u.Host)
	}
	return fmt.Sprintf("%s_%s.%s", stem, w.now().Format("20060102-150405"), strings.TrimPrefix(ext, "."))
}

// sanitize keeps filenames portable.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
