package voice

import (
	"strings"
	"testing"
)

func TestSentenceChunksShortText(t *testing.T) {
	got := sentenceChunks("Hello there.", 650)
	if len(got) != 1 || got[0] != "Hello there." {
		t.Errorf("expected single chunk, got %v", got)
	}
}

func TestSentenceChunksSplitsOnSentences(t *testing.T) {
	sentence := "This sentence is exactly forty chars ok. "
	text := strings.TrimSpace(strings.Repeat(sentence, 10))

	chunks := sentenceChunks(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d exceeds limit: %d chars", i, len(c))
		}
		if !strings.HasSuffix(c, "ok.") {
			t.Errorf("chunk %d not sentence-aligned: %q", i, c)
		}
	}

	// Nothing lost in the split.
	rejoined := strings.Join(chunks, " ")
	if rejoined != text {
		t.Errorf("content changed by chunking:\n%q\n%q", text, rejoined)
	}
}

func TestSentenceChunksOversizedSentence(t *testing.T) {
	// A single sentence longer than the limit still becomes one chunk;
	// the splitter never breaks mid-sentence.
	long := strings.Repeat("word ", 50) + "end."
	chunks := sentenceChunks(long+" Next.", 100)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[1] != "Next." {
		t.Errorf("expected trailing sentence in its own chunk, got %q", chunks[1])
	}
}

func TestBridgeUnavailableWithoutURL(t *testing.T) {
	b := Dial("", nil)
	if b.Available() {
		t.Error("expected unavailable bridge with empty URL")
	}
	// Speak on an unavailable bridge is a no-op, not a panic.
	b.Speak("hello")
	b.Close()
}
