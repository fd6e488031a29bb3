package ingest

import (
	"strings"
	"testing"
)

func TestParseChunks(t *testing.T) {
	content := `# Houseplant Care Guide

A reference for common indoor plants and their needs.

## Watering

Most houseplants prefer soil that dries slightly between waterings.

### Succulents

Water succulents every 2-3 weeks.

## Light Requirements

Different plants have different light needs.
`

	chunks := ParseChunks(content)

	expected := []struct {
		title   string
		hasText string
	}{
		{"Houseplant Care Guide", "indoor plants"},
		{"Houseplant Care Guide / Watering", "dries slightly"},
		{"Houseplant Care Guide / Watering / Succulents", "2-3 weeks"},
		{"Houseplant Care Guide / Light Requirements", "light needs"},
	}

	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(expected), len(chunks), chunks)
	}
	for i, exp := range expected {
		if chunks[i].Title != exp.title {
			t.Errorf("chunk %d: expected title %q, got %q", i, exp.title, chunks[i].Title)
		}
		if !strings.Contains(chunks[i].Content, exp.hasText) {
			t.Errorf("chunk %d: expected content to contain %q, got %q", i, exp.hasText, chunks[i].Content)
		}
	}
}

func TestParseChunksPreamble(t *testing.T) {
	content := `Intro text before any heading.

# First Heading

Body under the heading.
`
	chunks := ParseChunks(content)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Title != "" {
		t.Errorf("preamble chunk should have empty title, got %q", chunks[0].Title)
	}
	if !strings.Contains(chunks[0].Content, "Intro text") {
		t.Errorf("preamble content missing: %q", chunks[0].Content)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Houseplant Care Guide", "houseplant-care-guide"},
		{"Go 1.24 Notes!", "go-1-24-notes"},
		{"--edges--", "edges"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type recordingDocStore struct {
	topics  []string
	titles  []string
	sources []string
}

func (r *recordingDocStore) InsertDocument(topic, sourceURL, title, content string) (int64, error) {
	r.topics = append(r.topics, topic)
	r.titles = append(r.titles, title)
	r.sources = append(r.sources, sourceURL)
	return int64(len(r.topics)), nil
}

func TestIngestString(t *testing.T) {
	rec := &recordingDocStore{}
	in := New(rec)

	count, err := in.IngestString("notes", "file:///notes.md", "# Title\n\nBody text.\n")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 chunk stored, got %d", count)
	}
	if rec.topics[0] != "notes" || rec.titles[0] != "Title" || rec.sources[0] != "file:///notes.md" {
		t.Errorf("unexpected stored row: %+v", rec)
	}
}
