// internal/browser/waiter_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/puppetry-cli/internal/config"
)

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Op: "navigate to https://example.com", Timeout: 5 * time.Second}

	t.Run("MessageNamesOperationAndDeadline", func(t *testing.T) {
		assert.Equal(t, "navigate to https://example.com timed out after 5s", err.Error())
	})

	t.Run("MatchesSentinel", func(t *testing.T) {
		assert.True(t, errors.Is(err, ErrTimeout), "a TimeoutError must satisfy errors.Is(err, ErrTimeout)")
	})

	t.Run("MatchesSentinelThroughWrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("capture failed: %w", err)
		assert.True(t, errors.Is(wrapped, ErrTimeout))

		var te *TimeoutError
		require.True(t, errors.As(wrapped, &te))
		assert.Equal(t, 5*time.Second, te.Timeout)
	})

	t.Run("DistinguishableFromCancellation", func(t *testing.T) {
		// Callers rely on this split to decide between retrying (timeout)
		// and aborting (cancellation / session death).
		assert.False(t, errors.Is(err, context.Canceled))
		assert.False(t, errors.Is(context.Canceled, ErrTimeout))
		assert.False(t, errors.Is(context.DeadlineExceeded, ErrTimeout))
	})
}

// newBareSession builds a Session whose tab context is not a chromedp
// context, so every Run fails immediately and RunTimed's error
// classification can be exercised without a browser.
func newBareSession(t *testing.T, sessionCtx context.Context) *Session {
	t.Helper()
	return &Session{
		id:     "bare",
		cfg:    config.NewDefaultConfig(),
		logger: zaptest.NewLogger(t),
		ctx:    sessionCtx,
	}
}

func TestRunTimedClassification(t *testing.T) {
	noop := chromedp.ActionFunc(func(context.Context) error { return nil })

	t.Run("ExpiredCallerDeadlineIsNotATimeout", func(t *testing.T) {
		s := newBareSession(t, context.Background())

		callerCtx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := s.RunTimed(callerCtx, "inspect state", 15*time.Second, noop)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, errors.Is(err, ErrTimeout),
			"a breach of the caller's own deadline must not be reported as an operation timeout")
	})

	t.Run("CanceledCallerWins", func(t *testing.T) {
		s := newBareSession(t, context.Background())

		callerCtx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.RunTimed(callerCtx, "inspect state", 15*time.Second, noop)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, ErrTimeout))
	})

	t.Run("DeadSessionWinsOverEverything", func(t *testing.T) {
		sessionCtx, cancelSession := context.WithCancel(context.Background())
		cancelSession()
		s := newBareSession(t, sessionCtx)

		callerCtx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := s.RunTimed(callerCtx, "inspect state", 15*time.Second, noop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session closed")
		assert.False(t, errors.Is(err, ErrTimeout))
	})

	t.Run("TransportErrorPassesThrough", func(t *testing.T) {
		s := newBareSession(t, context.Background())

		// Live caller, generous budget: the underlying run error (an invalid
		// chromedp context here) must come back as-is.
		err := s.RunTimed(context.Background(), "inspect state", 15*time.Second, noop)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrTimeout))
		assert.NotContains(t, err.Error(), "session closed")
	})
}

func TestEvalError(t *testing.T) {
	err := &EvalError{Text: "ReferenceError: foo is not defined"}
	assert.Contains(t, err.Error(), "ReferenceError")
	assert.False(t, errors.Is(err, ErrTimeout), "a script exception is not a timeout")
}
