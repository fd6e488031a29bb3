package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func TestDomainOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.Example.COM/page", "example.com"},
		{"https://sub.example.com/x", "sub.example.com"},
		{"http://twitter.com", "twitter.com"},
		{"://bad", ""},
	}
	for _, tt := range tests {
		if got := DomainOf(tt.url); got != tt.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestFetchBlockedDomain(t *testing.T) {
	f := New(Config{BlockedDomains: []string{"medium.com"}})

	if !f.Blocked("https://www.medium.com/story") {
		t.Error("expected www.medium.com to be blocked")
	}
	if f.Blocked("https://example.com") {
		t.Error("expected example.com not to be blocked")
	}

	_, err := f.Fetch(context.Background(), "https://medium.com/story")
	if !errors.Is(err, ErrBlockedDomain) {
		t.Errorf("expected ErrBlockedDomain, got %v", err)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`<html><head><title>Recovered</title></head><body><p>all good now</p></body></html>`))
	}))
	defer srv.Close()

	var slept []time.Duration
	f := New(Config{Retries: 2, BaseDelay: 100 * time.Millisecond})
	f.sleep = func(d time.Duration) { slept = append(slept, d) }

	page, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.Title != "Recovered" {
		t.Errorf("expected title Recovered, got %q", page.Title)
	}
	if !strings.Contains(page.Text, "all good now") {
		t.Errorf("expected body text, got %q", page.Text)
	}

	// Backoff doubles per attempt.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(slept))
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %s, got %s", i, want[i], slept[i])
		}
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permanent failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{Retries: 1})
	f.sleep = func(time.Duration) {}

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if !strings.Contains(err.Error(), "failed after retries") {
		t.Errorf("expected retries annotation, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("expected last cause embedded, got %v", err)
	}
}

func TestFetchCapsExtractedText(t *testing.T) {
	long := strings.Repeat("word ", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{MaxChars: 500})
	page, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !page.Truncated {
		t.Error("expected page marked truncated")
	}
	if !strings.HasSuffix(page.Text, " …") {
		t.Errorf("expected ellipsis suffix, got tail %q", page.Text[len(page.Text)-10:])
	}
	if len(page.Text) > 500+len(" …") {
		t.Errorf("text too long: %d chars", len(page.Text))
	}
}

func TestFetchCapBacksOffToRuneBoundary(t *testing.T) {
	// A 3-byte rune body with a cap that lands mid-rune on a byte cut.
	long := strings.Repeat("汉", 400)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer srv.Close()

	f := New(Config{MaxChars: 500})
	page, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !page.Truncated {
		t.Error("expected page marked truncated")
	}
	if !utf8.ValidString(page.Text) {
		t.Error("cap split a multi-byte rune")
	}
}
