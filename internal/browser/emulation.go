// internal/browser/emulation.go
package browser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetry-cli/internal/config"
)

const captureTimeout = 30 * time.Second

// restoreTimeout bounds the emulation rollback after a capture, which runs
// detached from the capture's own (possibly dead) context.
const restoreTimeout = 5 * time.Second

// Device describes a device metrics + identity override.
type Device struct {
	Name      string
	UserAgent string
	Width     int64
	Height    int64
	Scale     float64
	Mobile    bool
	Touch     bool
	Landscape bool
}

// devicePresets is the built-in emulation catalog, keyed by preset name.
var devicePresets = map[string]Device{
	"iphone-se": {
		Name:      "iphone-se",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		Width:     375, Height: 667, Scale: 2, Mobile: true, Touch: true,
	},
	"iphone-13": {
		Name:      "iphone-13",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		Width:     390, Height: 844, Scale: 3, Mobile: true, Touch: true,
	},
	"pixel-7": {
		Name:      "pixel-7",
		UserAgent: "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
		Width:     412, Height: 915, Scale: 2.625, Mobile: true, Touch: true,
	},
	"ipad-mini": {
		Name:      "ipad-mini",
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
		Width:     768, Height: 1024, Scale: 2, Mobile: true, Touch: true,
	},
	"macbook-16": {
		Name:  "macbook-16",
		Width: 1728, Height: 1117, Scale: 2,
	},
	"desktop-1080p": {
		Name:  "desktop-1080p",
		Width: 1920, Height: 1080, Scale: 1,
	},
	"desktop-4k": {
		Name:  "desktop-4k",
		Width: 3840, Height: 2160, Scale: 1,
	},
}

// DevicePreset looks up a built-in device by name.
func DevicePreset(name string) (Device, bool) {
	d, ok := devicePresets[strings.ToLower(name)]
	return d, ok
}

// DeviceNames returns the preset names, sorted.
func DeviceNames() []string {
	names := make([]string, 0, len(devicePresets))
	for name := range devicePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// deviceFromConfig resolves the emulation section into a Device, or nil when
// no emulation is configured.
func deviceFromConfig(cfg config.EmulationConfig) *Device {
	if cfg.Device != "" {
		if d, ok := DevicePreset(cfg.Device); ok {
			d.Landscape = cfg.Landscape
			return &d
		}
		return nil
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil
	}
	return &Device{
		Name:      "custom",
		Width:     cfg.Width,
		Height:    cfg.Height,
		Scale:     cfg.Scale,
		Mobile:    cfg.Mobile,
		Touch:     cfg.Touch,
		Landscape: cfg.Landscape,
	}
}

// apply issues the emulation override commands for the device.
func (d Device) apply(ctx context.Context) error {
	width, height := d.Width, d.Height
	orientation := &emulation.ScreenOrientation{Type: emulation.OrientationTypePortraitPrimary, Angle: 0}
	if d.Landscape {
		width, height = height, width
		orientation = &emulation.ScreenOrientation{Type: emulation.OrientationTypeLandscapePrimary, Angle: 90}
	}

	scale := d.Scale
	if scale <= 0 {
		scale = 1
	}

	err := emulation.SetDeviceMetricsOverride(width, height, scale, d.Mobile).
		WithScreenOrientation(orientation).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to override device metrics: %w", err)
	}

	touch := emulation.SetTouchEmulationEnabled(d.Touch)
	if d.Touch {
		touch = touch.WithMaxTouchPoints(5)
	}
	if err := touch.Do(ctx); err != nil {
		return fmt.Errorf("failed to set touch emulation: %w", err)
	}

	if d.UserAgent != "" {
		if err := emulationSetUserAgent(ctx, d.UserAgent); err != nil {
			return err
		}
	}
	return nil
}

func emulationSetUserAgent(ctx context.Context, ua string) error {
	if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
		return fmt.Errorf("failed to override user agent: %w", err)
	}
	return nil
}

// EmulateDevice applies a device override to the session and remembers it so
// capture helpers can restore it.
func (s *Session) EmulateDevice(ctx context.Context, d Device) error {
	err := s.RunTimed(ctx, fmt.Sprintf("emulate device %q", d.Name), s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(d.apply))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.emulated = &d
	s.mu.Unlock()
	return nil
}

// EmulateViewport applies a bare viewport override.
func (s *Session) EmulateViewport(ctx context.Context, width, height int64) error {
	return s.EmulateDevice(ctx, Device{Name: "viewport", Width: width, Height: height, Scale: 1})
}

// ClearEmulation removes any device metrics override.
func (s *Session) ClearEmulation(ctx context.Context) error {
	err := s.RunTimed(ctx, "clear emulation", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.ClearDeviceMetricsOverride().Do(ctx)
		}))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.emulated = nil
	s.mu.Unlock()
	return nil
}

// currentEmulation returns a copy of the active device override, if any.
func (s *Session) currentEmulation() *Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emulated == nil {
		return nil
	}
	d := *s.emulated
	return &d
}

// CaptureOptions configures screenshot output.
type CaptureOptions struct {
	Format  string // png, jpeg, webp
	Quality int    // jpeg/webp only
}

func (o CaptureOptions) format() page.CaptureScreenshotFormat {
	switch strings.ToLower(o.Format) {
	case "jpeg", "jpg":
		return page.CaptureScreenshotFormatJpeg
	case "webp":
		return page.CaptureScreenshotFormatWebp
	default:
		return page.CaptureScreenshotFormatPng
	}
}

// Screenshot captures the current viewport.
func (s *Session) Screenshot(ctx context.Context, opts CaptureOptions) ([]byte, error) {
	var buf []byte
	err := s.RunTimed(ctx, "screenshot", captureTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(opts.format()).
				WithQuality(int64(opts.Quality)).
				WithFromSurface(true).
				Do(ctx)
			return err
		}))
	return buf, err
}

// pageMetrics is the JS-measured scrollable document size in CSS pixels.
type pageMetrics struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const measurePageJS = `({
	width: Math.max(
		document.documentElement.scrollWidth,
		document.body ? document.body.scrollWidth : 0
	),
	height: Math.max(
		document.documentElement.scrollHeight,
		document.body ? document.body.scrollHeight : 0
	)
})`

// FullScreenshot captures the whole page by temporarily widening the device
// metrics override to the document's scroll size. The previous emulation
// state is restored whether or not the capture succeeds.
func (s *Session) FullScreenshot(ctx context.Context, opts CaptureOptions) ([]byte, error) {
	prior := s.currentEmulation()

	var buf []byte
	err := s.RunTimed(ctx, "full-page screenshot", captureTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var metrics pageMetrics
			if err := chromedp.Evaluate(measurePageJS, &metrics).Do(ctx); err != nil {
				return fmt.Errorf("failed to measure page: %w", err)
			}
			width := int64(math.Ceil(metrics.Width))
			height := int64(math.Ceil(metrics.Height))
			if width <= 0 || height <= 0 {
				return fmt.Errorf("page reports degenerate size %dx%d", width, height)
			}

			override := Device{Name: "fullpage", Width: width, Height: height, Scale: 1}
			if prior != nil {
				override.Scale = prior.Scale
				override.Mobile = prior.Mobile
				override.Touch = prior.Touch
			}
			if err := override.apply(ctx); err != nil {
				return err
			}

			// Restore runs on every exit path, capture error or not. It gets
			// its own deadline on a detached context: if the capture burned
			// the operation budget, the restore must still go through.
			defer func() {
				restoreCtx, cancelRestore := context.WithTimeout(Detach(ctx), restoreTimeout)
				defer cancelRestore()
				if err := s.restoreEmulation(restoreCtx, prior); err != nil {
					s.logger.Warn("Failed to restore emulation after full-page capture.", zap.Error(err))
				}
			}()

			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(opts.format()).
				WithQuality(int64(opts.Quality)).
				WithFromSurface(true).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}))
	return buf, err
}

// restoreEmulation puts the session back into its pre-capture state.
func (s *Session) restoreEmulation(ctx context.Context, prior *Device) error {
	if err := emulation.ClearDeviceMetricsOverride().Do(ctx); err != nil {
		return err
	}
	if prior != nil {
		return prior.apply(ctx)
	}
	return nil
}

// elementBox is the scroll-adjusted border box of an element, measured in
// CSS pixels relative to the document origin.
type elementBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// measureElementJS yields the element's document-absolute border box, or
// null when the selector matches nothing.
const measureElementJS = `(function(sel) {
	const node = document.querySelector(sel);
	if (!node) return null;
	const rect = node.getBoundingClientRect();
	return {
		x: rect.left + window.scrollX,
		y: rect.top + window.scrollY,
		width: rect.width,
		height: rect.height
	};
})(%s)`

// ElementScreenshot captures the region covered by the first node matching
// the selector, using a protocol-level clip.
func (s *Session) ElementScreenshot(ctx context.Context, selector string, opts CaptureOptions) ([]byte, error) {
	var buf []byte
	err := s.RunTimed(ctx, fmt.Sprintf("screenshot of %q", selector), captureTimeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var box *elementBox
			script := fmt.Sprintf(measureElementJS, jsonEncode(selector))
			if err := chromedp.Evaluate(script, &box).Do(ctx); err != nil {
				return fmt.Errorf("failed to measure element: %w", err)
			}
			if box == nil {
				return fmt.Errorf("no element matches selector %q", selector)
			}
			if box.Width <= 0 || box.Height <= 0 {
				return fmt.Errorf("element %q has no visible extent", selector)
			}

			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(opts.format()).
				WithQuality(int64(opts.Quality)).
				WithFromSurface(true).
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{
					X:      box.X,
					Y:      box.Y,
					Width:  box.Width,
					Height: box.Height,
					Scale:  1,
				}).
				Do(ctx)
			return err
		}))
	return buf, err
}

// PDFOptions configures Page.printToPDF output.
type PDFOptions struct {
	Landscape       bool
	PrintBackground bool
	Scale           float64
	PaperWidth      float64 // inches; zero keeps the browser default
	PaperHeight     float64 // inches
}

// paperSizes maps common paper names to width x height in inches.
var paperSizes = map[string][2]float64{
	"a4":     {8.27, 11.69},
	"a3":     {11.69, 16.54},
	"letter": {8.5, 11},
	"legal":  {8.5, 14},
}

// PaperSize resolves a named paper format.
func PaperSize(name string) (width, height float64, ok bool) {
	size, ok := paperSizes[strings.ToLower(name)]
	return size[0], size[1], ok
}

// PDF renders the current page to PDF.
func (s *Session) PDF(ctx context.Context, opts PDFOptions) ([]byte, error) {
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}

	var buf []byte
	err := s.RunTimed(ctx, "print to pdf", captureTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			params := page.PrintToPDF().
				WithLandscape(opts.Landscape).
				WithPrintBackground(opts.PrintBackground).
				WithScale(scale)
			if opts.PaperWidth > 0 && opts.PaperHeight > 0 {
				params = params.WithPaperWidth(opts.PaperWidth).WithPaperHeight(opts.PaperHeight)
			}

			var err error
			buf, _, err = params.Do(ctx)
			return err
		}))
	return buf, err
}

// jsonEncode safely embeds a Go value into a JS source string.
func jsonEncode(v interface{}) string {
	b, err := jsCodec.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
