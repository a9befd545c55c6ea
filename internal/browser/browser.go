// internal/browser/browser.go
package browser

import (
	"time"

	"github.com/chromedp/cdproto/network"
)

// ConsoleLog is a single console message captured from the page.
type ConsoleLog struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestRecord is one entry in the session's network ledger.
type RequestRecord struct {
	RequestID string    `json:"request_id"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Status    int64     `json:"status,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
	Body      string    `json:"body,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Artifacts bundles everything a session can hand back when it is done.
type Artifacts struct {
	FinalURL    string            `json:"final_url"`
	Title       string            `json:"title"`
	HTML        string            `json:"html,omitempty"`
	ConsoleLogs []ConsoleLog      `json:"console_logs,omitempty"`
	Requests    []RequestRecord   `json:"requests,omitempty"`
	Cookies     []*network.Cookie `json:"cookies,omitempty"`
}
