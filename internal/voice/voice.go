// Package voice connects to an optional local speech service over a
// websocket. The bridge is an independent sink for reply text (TTS)
// and source of inbound transcripts (STT); its availability is
// computed once at dial time, and an absent service is a degraded
// mode, never an error surfaced to the pipeline.
package voice

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// maxChunkLen bounds each spoken chunk so the speech service never
// receives an unbounded utterance.
const maxChunkLen = 650

// message is the bridge wire format, both directions.
type message struct {
	Type string `json:"type"` // "speak" or "transcript"
	Text string `json:"text"`
}

// Bridge is a connected (or absent) speech service.
type Bridge struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu     sync.Mutex
	transcripts chan string
	closeOnce   sync.Once
}

// Dial connects to the speech bridge. A failed dial returns a Bridge
// that reports unavailable; callers check Available before use.
func Dial(bridgeURL string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{logger: logger, transcripts: make(chan string, 16)}

	if bridgeURL == "" {
		return b
	}

	conn, _, err := websocket.DefaultDialer.Dial(bridgeURL, nil)
	if err != nil {
		logger.Warn("voice bridge unavailable", "url", bridgeURL, "error", err)
		return b
	}

	b.conn = conn
	go b.readLoop()
	return b
}

// Available reports whether the speech service is connected.
func (b *Bridge) Available() bool {
	return b.conn != nil
}

// Transcripts returns the channel of inbound speech-to-text messages.
// The channel is closed when the bridge shuts down.
func (b *Bridge) Transcripts() <-chan string {
	return b.transcripts
}

// Speak sends reply text to the speech service, split into
// sentence-aligned chunks. A send failure is logged and swallowed;
// speaking is best-effort by design.
func (b *Bridge) Speak(text string) {
	if b.conn == nil {
		return
	}
	for _, chunk := range sentenceChunks(text, maxChunkLen) {
		b.writeMu.Lock()
		err := b.conn.WriteJSON(message{Type: "speak", Text: chunk})
		b.writeMu.Unlock()
		if err != nil {
			b.logger.Warn("voice bridge write failed", "error", err)
			return
		}
	}
}

// readLoop delivers inbound transcripts until the connection drops.
func (b *Bridge) readLoop() {
	defer close(b.transcripts)
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			b.logger.Debug("voice bridge read loop ended", "error", err)
			return
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil || m.Type != "transcript" {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		select {
		case b.transcripts <- text:
		default:
			// Drop transcripts when the consumer is behind.
		}
	}
}

// Close shuts down the bridge connection.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		if b.conn != nil {
			_ = b.conn.Close()
		}
	})
}

var sentenceEndRe = regexp.MustCompile(`(?:[.!?])\s+`)

// sentenceChunks splits text into chunks of at most maxLen characters,
// breaking on sentence boundaries where possible.
func sentenceChunks(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	var buf []string
	cur := 0

	for _, sentence := range splitSentences(text) {
		s := strings.TrimSpace(sentence)
		if s == "" {
			continue
		}
		if cur+len(s)+1 > maxLen && len(buf) > 0 {
			parts = append(parts, strings.Join(buf, " "))
			buf = []string{s}
			cur = len(s)
		} else {
			buf = append(buf, s)
			cur += len(s) + 1
		}
	}
	if len(buf) > 0 {
		parts = append(parts, strings.Join(buf, " "))
	}
	return parts
}

// splitSentences breaks text after terminal punctuation, keeping the
// punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		// Keep the punctuation (first byte of the match) with the sentence.
		out = append(out, text[last:loc[0]+1])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}
