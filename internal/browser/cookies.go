// internal/browser/cookies.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// jsonCodec is used for cookie jars and other JSON artifacts.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// jsCodec marshals values destined for embedding in JavaScript source.
// HTML escaping is off: ">" inside a selector would change what the
// script queries.
var jsCodec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// CookieJar is the on-disk cookie export format: a flat list of params that
// can be fed straight back into Storage.setCookies.
type CookieJar struct {
	SavedAt time.Time              `json:"saved_at"`
	Cookies []*network.CookieParam `json:"cookies"`
}

// Encode serializes the jar.
func (j *CookieJar) Encode() ([]byte, error) {
	data, err := jsonCodec.MarshalIndent(j, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode cookie jar: %w", err)
	}
	return data, nil
}

// DecodeCookieJar parses a jar previously produced by Encode.
func DecodeCookieJar(data []byte) (*CookieJar, error) {
	var jar CookieJar
	if err := jsonCodec.Unmarshal(data, &jar); err != nil {
		return nil, fmt.Errorf("failed to decode cookie jar: %w", err)
	}
	return &jar, nil
}

// NewCookieJar converts browser cookies into an exportable jar.
func NewCookieJar(cookies []*network.Cookie) *CookieJar {
	jar := &CookieJar{SavedAt: time.Now(), Cookies: make([]*network.CookieParam, 0, len(cookies))}
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
		}
		// Expires <= 0 marks a session cookie; leave the param open-ended.
		if c.Expires > 0 {
			expiry := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expiry
		}
		jar.Cookies = append(jar.Cookies, param)
	}
	return jar
}

// Cookies returns all cookies visible to the session, HttpOnly included.
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := s.RunTimed(ctx, "get cookies", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}))
	return cookies, err
}

// SetCookies installs the given cookies into the browser.
func (s *Session) SetCookies(ctx context.Context, cookies []*network.CookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	return s.RunTimed(ctx, "set cookies", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return storage.SetCookies(cookies).Do(ctx)
		}))
}

// ClearCookies removes all cookies.
func (s *Session) ClearCookies(ctx context.Context) error {
	return s.RunTimed(ctx, "clear cookies", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return storage.ClearCookies().Do(ctx)
		}))
}

// ImportJar loads a cookie jar into the session, skipping entries that have
// already expired.
func (s *Session) ImportJar(ctx context.Context, jar *CookieJar) error {
	now := time.Now()
	live := make([]*network.CookieParam, 0, len(jar.Cookies))
	for _, c := range jar.Cookies {
		if c.Expires != nil && time.Time(*c.Expires).Before(now) {
			s.logger.Debug("Skipping expired cookie from jar.",
				zap.String("name", c.Name), zap.String("domain", c.Domain))
			continue
		}
		live = append(live, c)
	}
	if len(live) == 0 {
		return nil
	}
	return s.SetCookies(ctx, live)
}
