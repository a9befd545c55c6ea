// internal/browser/extract_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	const content = `<!DOCTYPE html>
<html><body>
  <a href="/about">About</a>
  <a href="https://other.example/page">External</a>
  <a href="/about">Duplicate</a>
  <a href="#section">Fragment only</a>
  <a href="javascript:void(0)">Script</a>
  <a href="  /trimmed  ">Whitespace</a>
  <a>No href</a>
  <div><a href="nested/relative">Nested</a></div>
</body></html>`

	links, err := extractLinks(content, "https://example.com/docs/")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/about",
		"https://other.example/page",
		"https://example.com/trimmed",
		"https://example.com/docs/nested/relative",
	}, links)
}

func TestExtractLinksEmptyDocument(t *testing.T) {
	links, err := extractLinks("<html><body></body></html>", "https://example.com/")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestExtractLinksInvalidBase(t *testing.T) {
	_, err := extractLinks("<a href='/x'>x</a>", "://not-a-url")
	assert.Error(t, err)
}
