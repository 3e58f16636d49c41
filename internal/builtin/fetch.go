// Copyright 2025 The toolbridge authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"toolbridge/internal/registry"
	"toolbridge/internal/transport"
	tberrors "toolbridge/pkg/errors"
	"toolbridge/pkg/httpclient"
)

const (
	// maxContentChars caps the cleaned text returned for a single page.
	maxContentChars = 50000

	// defaultMaxPages bounds a fetch_documentation crawl when the caller
	// does not say otherwise.
	defaultMaxPages = 10

	// excerptChars is the per-page excerpt length in multi-page output.
	excerptChars = 500

	fetcherUserAgent = "Mozilla/5.0 (compatible; toolbridge-fetcher/1.0)"
)

// mdLink matches markdown links with absolute http(s) targets, the format
// llms.txt indexes use.
var mdLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^\)]+)\)`)

// Fetcher serves the document-fetcher built-in server: fetching pages,
// stripping them to plain text, and walking llms.txt indexes. Outgoing
// requests share a rate limiter so a documentation crawl cannot hammer
// one host.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewFetcher creates a document fetcher. Requests are limited to two per
// second with a small burst.
func NewFetcher(logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = fetcherUserAgent

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:  logger,
	}, nil
}

// Register wires the fetcher tools into the direct registry.
func (f *Fetcher) Register(reg *transport.DirectRegistry) {
	reg.Register(registry.BuiltinDocumentFetcher, "fetch_url", f.FetchURL)
	reg.Register(registry.BuiltinDocumentFetcher, "parse_llms_txt", f.ParseLlmsTxt)
	reg.Register(registry.BuiltinDocumentFetcher, "fetch_documentation", f.FetchDocumentation)
}

// page is one fetched and cleaned document.
type page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// docLink is one entry parsed out of an llms.txt index.
type docLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FetchURL fetches one page and returns its cleaned text.
// Arguments: url (required).
func (f *Fetcher) FetchURL(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "fetch_url requires a url argument")
	}

	p, err := f.fetchAndClean(ctx, url)
	if err != nil {
		return nil, err
	}

	return &transport.Payload{
		Text:       fmt.Sprintf("# %s\n\nURL: %s\n\n%s", p.Title, p.URL, p.Content),
		Structured: p,
	}, nil
}

// ParseLlmsTxt fetches an llms.txt index and extracts its document links.
// Arguments: url (required).
func (f *Fetcher) ParseLlmsTxt(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "parse_llms_txt requires a url argument")
	}

	links, err := f.parseIndex(ctx, url)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("# Documentation Links\n\n")
	for _, l := range links {
		fmt.Fprintf(&b, "- [%s](%s)\n", l.Title, l.URL)
	}

	return &transport.Payload{
		Text:       b.String(),
		Structured: map[string]interface{}{"links": links},
	}, nil
}

// FetchDocumentation fetches up to max_pages pages linked from an llms.txt
// index. Pages that fail to fetch are recorded with their error rather than
// aborting the crawl.
// Arguments: llms_txt_url (required), max_pages (optional, default 10).
func (f *Fetcher) FetchDocumentation(ctx context.Context, args map[string]interface{}) (*transport.Payload, error) {
	indexURL, _ := args["llms_txt_url"].(string)
	if indexURL == "" {
		return nil, tberrors.New(tberrors.ErrorTypeValidation, "fetch_documentation requires a llms_txt_url argument")
	}

	maxPages := defaultMaxPages
	if n, ok := args["max_pages"].(float64); ok && n > 0 {
		maxPages = int(n)
	}

	links, err := f.parseIndex(ctx, indexURL)
	if err != nil {
		return nil, err
	}
	if len(links) > maxPages {
		links = links[:maxPages]
	}

	pages := make([]page, 0, len(links))
	for _, l := range links {
		p, err := f.fetchAndClean(ctx, l.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			f.logger.Warn("skipping unfetchable page",
				slog.String("url", l.URL),
				slog.String("error", err.Error()))
			pages = append(pages, page{URL: l.URL, Title: l.Title, Content: "Error: " + err.Error()})
			continue
		}
		pages = append(pages, *p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Documentation (fetched %d pages)\n\n", len(pages))
	for _, p := range pages {
		excerpt := p.Content
		if len(excerpt) > excerptChars {
			excerpt = excerpt[:excerptChars]
		}
		fmt.Fprintf(&b, "## %s\n\nURL: %s\n\n%s...\n\n---\n\n", p.Title, p.URL, excerpt)
	}

	return &transport.Payload{
		Text:       b.String(),
		Structured: map[string]interface{}{"pages": pages},
	}, nil
}

// parseIndex fetches an llms.txt file and pulls out its markdown links.
func (f *Fetcher) parseIndex(ctx context.Context, url string) ([]docLink, error) {
	raw, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	matches := mdLink.FindAllStringSubmatch(raw, -1)
	links := make([]docLink, 0, len(matches))
	for _, m := range matches {
		title := strings.TrimSpace(m[1])
		target := strings.TrimSpace(m[2])
		if title == "" {
			title = target
		}
		links = append(links, docLink{Title: title, URL: target})
	}
	return links, nil
}

// fetchAndClean fetches one URL and strips it to plain text. Non-HTML
// responses pass through untouched apart from the length cap.
func (f *Fetcher) fetchAndClean(ctx context.Context, url string) (*page, error) {
	raw, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	p := &page{URL: url}

	lower := strings.ToLower(raw)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<head") || strings.Contains(lower, "<body") {
		title, text := cleanHTML(raw)
		p.Title = title
		p.Content = text
	} else {
		p.Content = raw
	}

	if p.Title == "" {
		p.Title = deriveTitle(url)
	}
	if len(p.Content) > maxContentChars {
		p.Content = p.Content[:maxContentChars]
	}
	return p, nil
}

// get performs a rate-limited GET and returns the body as a string.
func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", tberrors.Wrap(tberrors.ErrorTypeValidation, "invalid url", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", tberrors.NewConnection(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", tberrors.FromHTTPStatus(resp.StatusCode, "fetch failed for "+url)
	}

	// Read a little past the cap so truncation is detectable, but never
	// the whole body of an unbounded response.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxContentChars*4))
	if err != nil {
		return "", tberrors.Wrap(tberrors.ErrorTypeConnection, "failed to read response", err)
	}
	return string(raw), nil
}

// cleanHTML parses the document and returns its title and visible text.
// Script, style, and noscript subtrees are dropped. The title falls back
// from <title> to og:title to the first <h1>.
func cleanHTML(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// Tolerant parser; a hard failure means the input is hopeless.
		return "", strings.TrimSpace(raw)
	}

	var (
		b       strings.Builder
		ogTitle string
		h1Title string
		walk    func(n *html.Node)
	)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(textContent(n))
				}
				return
			case "meta":
				if ogTitle == "" && attrValue(n, "property") == "og:title" {
					ogTitle = strings.TrimSpace(attrValue(n, "content"))
				}
			case "h1":
				if h1Title == "" {
					h1Title = strings.TrimSpace(textContent(n))
				}
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if title == "" {
		title = ogTitle
	}
	if title == "" {
		title = h1Title
	}
	return title, normalizeWhitespace(b.String())
}

// textContent concatenates all text nodes under n.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// normalizeWhitespace trims each line and drops empty ones.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

// deriveTitle falls back to the last path segment of the URL.
func deriveTitle(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return url
}
