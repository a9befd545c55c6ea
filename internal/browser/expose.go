// internal/browser/expose.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ExposedFunc is a Go function callable from page JavaScript. It receives
// the string payload the page passed and returns the value the call's
// promise resolves with; a non-nil error rejects the promise instead.
type ExposedFunc func(payload string) (string, error)

// exposeShimJS wraps the raw CDP binding in a promise-returning function.
// The raw binding only accepts a string and returns nothing, so calls are
// tagged with a sequence id and settled later through __deliver.
const exposeShimJS = `(() => {
	const name = %[1]s;
	const binding = window[name];
	if (!binding || binding.__wrapped) { return; }
	const pending = new Map();
	let seq = 0;
	const wrapper = (payload) => new Promise((resolve, reject) => {
		const id = ++seq;
		pending.set(id, { resolve, reject });
		binding(JSON.stringify({ id, payload: payload === undefined ? "" : String(payload) }));
	});
	wrapper.__wrapped = true;
	wrapper.__deliver = (id, result, error) => {
		const call = pending.get(id);
		if (!call) { return; }
		pending.delete(id);
		if (error) { call.reject(new Error(error)); } else { call.resolve(result); }
	};
	window[name] = wrapper;
})()`

// bindingCall is the envelope the shim sends through the binding.
type bindingCall struct {
	ID      int64  `json:"id"`
	Payload string `json:"payload"`
}

// Expose makes fn callable from page JavaScript as window[name](payload),
// returning a promise. The binding and its shim survive navigations within
// the session.
func (s *Session) Expose(ctx context.Context, name string, fn ExposedFunc) error {
	shim := fmt.Sprintf(exposeShimJS, jsonEncode(name))

	err := s.RunTimed(ctx, fmt.Sprintf("expose %q", name), s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := runtime.AddBinding(name).Do(ctx); err != nil {
				return fmt.Errorf("failed to add binding %q: %w", name, err)
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(shim).Do(ctx); err != nil {
				return fmt.Errorf("failed to install shim for %q: %w", name, err)
			}
			// The current document already has the raw binding; wrap it too.
			return chromedp.Evaluate(shim, nil).Do(ctx)
		}))
	if err != nil {
		return err
	}

	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		call, ok := ev.(*runtime.EventBindingCalled)
		if !ok || call.Name != name {
			return
		}
		// Dispatch off the event loop: fn may take a while, and delivery
		// issues its own protocol command.
		go s.dispatchBinding(name, fn, call.Payload)
	})

	s.logger.Debug("Exposed function to page.", zap.String("name", name))
	return nil
}

func (s *Session) dispatchBinding(name string, fn ExposedFunc, raw string) {
	var call bindingCall
	if err := jsonCodec.UnmarshalFromString(raw, &call); err != nil {
		s.logger.Error("Malformed payload for exposed function.",
			zap.String("name", name), zap.Error(err), zap.String("payload", raw))
		return
	}

	result, err := s.invokeExposed(name, fn, call.Payload)
	errText := ""
	if err != nil {
		errText = err.Error()
	}

	deliver := fmt.Sprintf("window[%s].__deliver(%d, %s, %s)",
		jsonEncode(name), call.ID, jsonEncode(result), jsonEncode(errText))
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(deliver, nil)); err != nil {
		s.logger.Warn("Could not deliver exposed function result.",
			zap.String("name", name), zap.Error(err))
	}
}

// invokeExposed calls fn, converting a panic into a rejection rather than
// tearing down the session.
func (s *Session) invokeExposed(name string, fn ExposedFunc, payload string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in exposed function.",
				zap.String("name", name), zap.Any("panic", r))
			err = fmt.Errorf("exposed function %q panicked: %v", name, r)
		}
	}()
	return fn(payload)
}
