// Package fetch downloads web pages for the research pipeline and
// extracts readable text, stripping script/style content and markup.
// Fetches retry with exponential backoff; domains on the static
// blocklist fail immediately without any network attempt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/thelocalai/thelocalai/internal/httpkit"
)

// DefaultMaxBytes is the maximum response body size read per page (5 MB).
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// ErrBlockedDomain is returned when a URL's domain is on the blocklist.
// Callers treat this as an expected branch, not a transport failure.
var ErrBlockedDomain = errors.New("blocked domain")

// Page holds the fetched and extracted content from a URL.
type Page struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Fetcher downloads and extracts readable content from web pages.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	maxChars  int
	retries   int
	baseDelay time.Duration
	blocked   map[string]bool

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// Config controls fetch limits and retry behavior.
type Config struct {
	Timeout        time.Duration // per-attempt HTTP budget
	MaxChars       int           // extracted-text cap per page
	Retries        int           // attempts beyond the first
	BaseDelay      time.Duration // backoff base; doubles per attempt
	BlockedDomains []string      // static blocklist, matched on registrable host
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 14000
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 600 * time.Millisecond
	}

	blocked := make(map[string]bool, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		blocked[strings.ToLower(d)] = true
	}

	return &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(cfg.Timeout),
		),
		maxBytes:  DefaultMaxBytes,
		maxChars:  cfg.MaxChars,
		retries:   cfg.Retries,
		baseDelay: cfg.BaseDelay,
		blocked:   blocked,
		sleep:     time.Sleep,
	}
}

// DomainOf returns the lower-cased host of a URL with any leading
// "www." stripped, or an empty string when the URL is unparseable.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Blocked reports whether the URL's domain is on the static blocklist.
func (f *Fetcher) Blocked(rawURL string) bool {
	d := DomainOf(rawURL)
	return d != "" && f.blocked[d]
}

// Fetch downloads the URL and extracts the page title and plain-text
// body, truncated to the per-page character cap. A blocked domain
// fails immediately with ErrBlockedDomain; otherwise one attempt plus
// the configured retries are made with exponential backoff, and
// exhaustion fails with the last underlying error annotated with the
// URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if f.Blocked(rawURL) {
		return nil, fmt.Errorf("web_fetch: %w (skipped): %s", ErrBlockedDomain, DomainOf(rawURL))
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.sleep(f.baseDelay * (1 << (attempt - 1)))
		}
		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("web_fetch: failed after retries: %s: %w", rawURL, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	limited := io.LimitReader(resp.Body, f.maxBytes)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	title, text := extractHTML(string(body))

	truncated := false
	if len(text) > f.maxChars {
		cut := f.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + " …"
		truncated = true
	}

	return &Page{
		URL:       rawURL,
		Title:     title,
		Text:      text,
		Truncated: truncated,
	}, nil
}
