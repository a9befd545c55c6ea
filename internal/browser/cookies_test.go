// internal/browser/cookies_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCookieJar(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour).Unix()
	cookies := []*network.Cookie{
		{
			Name:     "sid",
			Value:    "abc123",
			Domain:   "example.com",
			Path:     "/",
			Expires:  float64(expiry),
			Secure:   true,
			HTTPOnly: true,
			SameSite: network.CookieSameSiteLax,
		},
		{
			Name:    "prefs",
			Value:   "dark",
			Domain:  "example.com",
			Path:    "/",
			Expires: -1, // session cookie
		},
	}

	jar := NewCookieJar(cookies)
	require.Len(t, jar.Cookies, 2)
	assert.False(t, jar.SavedAt.IsZero())

	sid := jar.Cookies[0]
	assert.Equal(t, "sid", sid.Name)
	assert.Equal(t, "abc123", sid.Value)
	assert.True(t, sid.Secure)
	assert.True(t, sid.HTTPOnly)
	assert.Equal(t, network.CookieSameSiteLax, sid.SameSite)
	require.NotNil(t, sid.Expires)
	assert.Equal(t, expiry, time.Time(*sid.Expires).Unix())

	assert.Nil(t, jar.Cookies[1].Expires, "session cookies must stay open-ended")
}

func TestCookieJarRoundTrip(t *testing.T) {
	expiry := cdp.TimeSinceEpoch(time.Unix(1924992000, 0))
	jar := &CookieJar{
		SavedAt: time.Unix(1756000000, 0).UTC(),
		Cookies: []*network.CookieParam{
			{Name: "sid", Value: "abc123", Domain: "example.com", Path: "/", Expires: &expiry, Secure: true},
			{Name: "prefs", Value: "dark", Domain: "example.com", Path: "/"},
		},
	}

	data, err := jar.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sid"`)

	decoded, err := DecodeCookieJar(data)
	require.NoError(t, err)
	require.Len(t, decoded.Cookies, 2)

	assert.Equal(t, "sid", decoded.Cookies[0].Name)
	assert.Equal(t, "abc123", decoded.Cookies[0].Value)
	assert.True(t, decoded.Cookies[0].Secure)
	require.NotNil(t, decoded.Cookies[0].Expires)
	assert.Equal(t, time.Time(expiry).Unix(), time.Time(*decoded.Cookies[0].Expires).Unix())
	assert.Nil(t, decoded.Cookies[1].Expires)
}

func TestDecodeCookieJarRejectsGarbage(t *testing.T) {
	_, err := DecodeCookieJar([]byte(`{not json`))
	assert.Error(t, err)
}

func TestImportJarSkipsExpired(t *testing.T) {
	// A session with a non-browser context: any protocol call would fail,
	// so a clean return proves the expired entries never reached the wire.
	s := newBareSession(t, context.Background())

	stale := cdp.TimeSinceEpoch(time.Now().Add(-time.Hour))
	jar := &CookieJar{
		SavedAt: time.Now(),
		Cookies: []*network.CookieParam{
			{Name: "gone", Value: "1", Domain: "example.com", Path: "/", Expires: &stale},
			{Name: "also-gone", Value: "2", Domain: "example.com", Path: "/", Expires: &stale},
		},
	}

	require.NoError(t, s.ImportJar(context.Background(), jar))
}
