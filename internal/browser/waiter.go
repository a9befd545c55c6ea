// internal/browser/waiter.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrTimeout is the sentinel all deadline breaches match via errors.Is.
var ErrTimeout = errors.New("operation timed out")

// TimeoutError reports that a protocol operation outlived its deadline. It
// is distinguishable from session death and caller cancellation, both of
// which are surfaced as plain context errors.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) match any TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RunTimed executes a batch of actions racing against the given deadline.
// Precedence of failure causes: a dead session wins over everything, then
// the caller's own cancellation, then the operation deadline (reported as a
// TimeoutError), then whatever the protocol returned.
func (s *Session) RunTimed(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.Run(opCtx, actions...)
	if err == nil {
		return nil
	}

	if s.ctx.Err() != nil {
		return fmt.Errorf("%s: session closed: %w", op, s.ctx.Err())
	}
	// The caller's own cancellation or deadline always wins; only a breach
	// of the operation budget itself is a TimeoutError.
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WaitEvent blocks until a target event matching the predicate arrives, the
// deadline is breached (TimeoutError), or the session/caller context dies.
// The subscription is removed when WaitEvent returns.
func (s *Session) WaitEvent(ctx context.Context, op string, timeout time.Duration, match func(ev interface{}) bool) error {
	waitCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	matched := make(chan struct{}, 1)
	chromedp.ListenTarget(waitCtx, func(ev interface{}) {
		if match(ev) {
			select {
			case matched <- struct{}{}:
			default:
			}
		}
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-matched:
		return nil
	case <-timer.C:
		return &TimeoutError{Op: op, Timeout: timeout}
	case <-waitCtx.Done():
		if s.ctx.Err() != nil {
			return fmt.Errorf("%s: session closed: %w", op, s.ctx.Err())
		}
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// WaitLoad waits for the next page load event.
func (s *Session) WaitLoad(ctx context.Context, timeout time.Duration) error {
	return s.WaitEvent(ctx, "wait for load event", timeout, func(ev interface{}) bool {
		_, ok := ev.(*page.EventLoadEventFired)
		return ok
	})
}

// WaitVisible waits until the selector matches a visible node.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.RunTimed(ctx, fmt.Sprintf("wait for %q visible", selector), timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitReady waits until the selector matches a node attached to the DOM.
func (s *Session) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	return s.RunTimed(ctx, fmt.Sprintf("wait for %q ready", selector), timeout,
		chromedp.WaitReady(selector, chromedp.ByQuery))
}

// WaitIdle waits for the network to go quiet: no in-flight requests for the
// configured quiet period, bounded by the given deadline.
func (s *Session) WaitIdle(ctx context.Context, timeout time.Duration) error {
	if s.harvester == nil {
		return nil
	}
	idleCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return s.harvester.WaitIdle(idleCtx, s.cfg.Network.IdleQuietPeriod, timeout)
}
