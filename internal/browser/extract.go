// internal/browser/extract.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Links returns the deduplicated absolute URLs of all anchors on the current
// page, resolved against the page location.
func (s *Session) Links(ctx context.Context) ([]string, error) {
	content, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	location, err := s.Location(ctx)
	if err != nil {
		return nil, err
	}
	return extractLinks(content, location)
}

// extractLinks walks the parsed document collecting a[href] values.
func extractLinks(content, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []string
	seen := make(map[string]struct{})

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") ||
					strings.HasPrefix(strings.ToLower(href), "javascript:") {
					break
				}
				ref, err := url.Parse(href)
				if err != nil {
					break
				}
				abs := base.ResolveReference(ref).String()
				if _, dup := seen[abs]; !dup {
					seen[abs] = struct{}{}
					links = append(links, abs)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}
