// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary (the session context, which
// carries the CDP target) that is additionally canceled when secondary (the
// caller's operational context) is done. Chromedp requires the target values
// from primary, so the derivation direction matters.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values (CDP target info) from its parent but
// ignores the parent's deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps ctx's values but outlives its
// cancellation. Used for cleanup work against a tab whose parent operation
// already failed.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
