// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitDone blocks until ctx is done or the test patience runs out.
func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled in time")
	}
}

func TestCombineContext(t *testing.T) {
	t.Run("SecondaryCancellationPropagates", func(t *testing.T) {
		primary := context.Background()
		secondary, cancelSecondary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		require.NoError(t, combined.Err())
		cancelSecondary()
		waitDone(t, combined)
	})

	t.Run("PrimaryCancellationPropagates", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())

		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		waitDone(t, combined)
	})

	t.Run("ValuesComeFromPrimary", func(t *testing.T) {
		type key string
		primary := context.WithValue(context.Background(), key("target"), "tab-1")
		secondary := context.WithValue(context.Background(), key("target"), "tab-2")

		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		// The session context carries the CDP target; the caller's context
		// must never shadow it.
		assert.Equal(t, "tab-1", combined.Value(key("target")))
	})

	t.Run("ExplicitCancel", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		waitDone(t, combined)
	})
}

func TestDetach(t *testing.T) {
	type key string
	parent, cancel := context.WithTimeout(
		context.WithValue(context.Background(), key("target"), "tab-1"),
		10*time.Millisecond)
	defer cancel()

	detached := Detach(parent)
	cancel()

	assert.NoError(t, detached.Err(), "detached context must survive parent cancellation")
	assert.Nil(t, detached.Done())
	assert.Equal(t, "tab-1", detached.Value(key("target")), "values must survive detachment")

	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline, "detached context must drop the parent deadline")
}
