// Package search provides web search for the research pipeline.
//
// A search backend implements the [Provider] interface. The [Manager]
// wraps the configured provider and converts every failure mode
// (missing backend, transport error, bad response) into an empty
// result list, because callers must treat "no results" and "search
// unavailable" identically (graceful degradation, never a user error).
package search

import (
	"context"
	"log/slog"
)

// Result is a single search result in ranking order.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "searxng").
	Name() string

	// Search executes a query and returns results in ranking order.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager wraps the configured provider, if any, behind the degraded
// empty-result contract.
type Manager struct {
	provider Provider
	logger   *slog.Logger
}

// NewManager creates a search manager. provider may be nil when no
// search backend is configured; searches then return empty results.
func NewManager(provider Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{provider: provider, logger: logger}
}

// Available reports whether a search backend is configured. Computed
// once at construction, checked before use.
func (m *Manager) Available() bool {
	return m.provider != nil
}

// Search runs a query against the configured provider. An absent
// backend or any provider error yields an empty list, logged but not
// surfaced: empty means "no results", never "failure".
func (m *Manager) Search(ctx context.Context, query string, maxResults int) []Result {
	if m.provider == nil {
		m.logger.Warn("no search backend configured; web search disabled for this run")
		return nil
	}

	results, err := m.provider.Search(ctx, query, Options{Count: maxResults})
	if err != nil {
		m.logger.Warn("web search failed", "provider", m.provider.Name(), "error", err)
		return nil
	}

	// Drop results without a URL; the pipeline cannot use them.
	usable := results[:0]
	for _, r := range results {
		if r.URL != "" {
			usable = append(usable, r)
		}
	}
	return usable
}
