// internal/browser/harvester.go
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// idlePollInterval is how often WaitIdle re-checks the in-flight counter.
const idlePollInterval = 50 * time.Millisecond

// maxCapturedBodyBytes caps how much of a response body the ledger keeps.
const maxCapturedBodyBytes = 64 * 1024

// Harvester records console messages and a network request ledger for one
// session, and tracks in-flight requests for network-idle detection.
type Harvester struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	// captureBodies fetches response bodies of finished requests into the
	// ledger, truncated to maxCapturedBodyBytes.
	captureBodies bool

	mu           sync.RWMutex
	console      []ConsoleLog
	requests     map[network.RequestID]*RequestRecord
	order        []network.RequestID
	inflight     int
	lastActivity time.Time
	running      bool
}

// NewHarvester creates a Harvester bound to the given session context.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger, captureBodies bool) *Harvester {
	ctx, cancel := context.WithCancel(sessionCtx)
	return &Harvester{
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.Named("harvester"),
		captureBodies: captureBodies,
		requests:      make(map[network.RequestID]*RequestRecord),
		lastActivity:  time.Now(),
	}
}

// Start enables the relevant protocol domains and subscribes to target
// events. Safe to call once per session.
func (h *Harvester) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	chromedp.ListenTarget(h.ctx, h.handleEvent)

	// Console events flow without opt-in; network and log entries don't.
	return chromedp.Run(h.ctx,
		network.Enable(),
		cdplog.Enable(),
	)
}

// Stop unsubscribes from events. The captured data stays available.
func (h *Harvester) Stop() {
	h.cancel()
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func (h *Harvester) handleEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.mu.Lock()
		if _, seen := h.requests[ev.RequestID]; !seen {
			h.requests[ev.RequestID] = &RequestRecord{
				RequestID: string(ev.RequestID),
				URL:       ev.Request.URL,
				Method:    ev.Request.Method,
				StartedAt: time.Now(),
			}
			h.order = append(h.order, ev.RequestID)
			h.inflight++
		}
		h.lastActivity = time.Now()
		h.mu.Unlock()

	case *network.EventResponseReceived:
		h.mu.Lock()
		if rec, ok := h.requests[ev.RequestID]; ok {
			rec.Status = ev.Response.Status
			rec.MimeType = ev.Response.MimeType
		}
		h.lastActivity = time.Now()
		h.mu.Unlock()

	case *network.EventLoadingFinished:
		h.finishRequest(ev.RequestID, "", false)
		if h.captureBodies {
			go h.fetchBody(ev.RequestID)
		}

	case *network.EventLoadingFailed:
		h.finishRequest(ev.RequestID, ev.ErrorText, true)

	case *runtime.EventConsoleAPICalled:
		h.mu.Lock()
		h.console = append(h.console, ConsoleLog{
			Level:     string(ev.Type),
			Text:      consoleArgsText(ev.Args),
			Timestamp: time.Now(),
		})
		h.mu.Unlock()

	case *cdplog.EventEntryAdded:
		h.mu.Lock()
		h.console = append(h.console, ConsoleLog{
			Level:     string(ev.Entry.Level),
			Text:      ev.Entry.Text,
			URL:       ev.Entry.URL,
			Timestamp: time.Now(),
		})
		h.mu.Unlock()
	}
}

func (h *Harvester) finishRequest(id network.RequestID, errText string, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.requests[id]
	if !ok {
		return
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now()
		rec.Failed = failed
		rec.Error = errText
		if h.inflight > 0 {
			h.inflight--
		}
	}
	h.lastActivity = time.Now()
}

// fetchBody pulls the response body of a finished request into its ledger
// entry. Runs off the event loop; Network.getResponseBody only answers once
// loading finished.
func (h *Harvester) fetchBody(id network.RequestID) {
	var body []byte
	err := chromedp.Run(h.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		// Bodiless responses (204, redirects) and evicted entries fail here;
		// that is not worth surfacing.
		h.logger.Debug("Could not fetch response body.", zap.String("request_id", string(id)), zap.Error(err))
		return
	}
	if len(body) > maxCapturedBodyBytes {
		body = body[:maxCapturedBodyBytes]
	}

	h.mu.Lock()
	if rec, ok := h.requests[id]; ok {
		rec.Body = string(body)
	}
	h.mu.Unlock()
}

// WaitIdle blocks until there are no in-flight requests for at least the
// quiet period, or fails with a TimeoutError when the deadline passes.
func (h *Harvester) WaitIdle(ctx context.Context, quiet, timeout time.Duration) error {
	if quiet <= 0 {
		quiet = idlePollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(idlePollInterval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			h.mu.RLock()
			idle := h.inflight == 0 && time.Since(h.lastActivity) >= quiet
			h.mu.RUnlock()
			if idle {
				return nil
			}
		case <-deadline.C:
			h.mu.RLock()
			pending := h.inflight
			h.mu.RUnlock()
			h.logger.Debug("Network idle wait timed out.", zap.Int("inflight", pending))
			return &TimeoutError{Op: "wait for network idle", Timeout: timeout}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ConsoleLogs returns a copy of the captured console messages.
func (h *Harvester) ConsoleLogs() []ConsoleLog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ConsoleLog, len(h.console))
	copy(out, h.console)
	return out
}

// Requests returns the network ledger in arrival order.
func (h *Harvester) Requests() []RequestRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RequestRecord, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, *h.requests[id])
	}
	return out
}

// consoleArgsText renders console call arguments into one line the way the
// devtools console would, preferring primitive values over descriptions.
func consoleArgsText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case arg.Value != nil:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}
