// Package ingest imports markdown documents into the knowledge base.
// Documents are split into heading-delimited chunks so retrieval
// surfaces the relevant section instead of a whole file.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DocumentStore receives parsed chunks. Implemented by *store.Store.
type DocumentStore interface {
	InsertDocument(topic, sourceURL, title, content string) (int64, error)
}

// Chunk is one heading-delimited section of a document.
type Chunk struct {
	Title   string
	Content string
}

// Ingester parses markdown documents into knowledge-base rows.
type Ingester struct {
	store DocumentStore
}

// New creates a markdown ingester backed by the given store.
func New(store DocumentStore) *Ingester {
	return &Ingester{store: store}
}

// IngestFile reads a markdown file and stores its chunks under a topic
// derived from the file name. Returns the number of chunks stored.
func (in *Ingester) IngestFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	topic := slugify(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return in.IngestString(topic, "file://"+path, string(data))
}

// IngestString parses markdown content and stores its chunks.
func (in *Ingester) IngestString(topic, sourceURL, content string) (int, error) {
	chunks := ParseChunks(content)
	count := 0
	for _, c := range chunks {
		if _, err := in.store.InsertDocument(topic, sourceURL, c.Title, c.Content); err != nil {
			return count, fmt.Errorf("store chunk %q: %w", c.Title, err)
		}
		count++
	}
	return count, nil
}

// ParseChunks splits markdown into heading-delimited chunks using the
// document AST. Content before the first heading becomes a chunk with
// an empty title; headings nest into "h1 / h2" titles.
func ParseChunks(source string) []Chunk {
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var chunks []Chunk
	var titleStack []string
	var buf strings.Builder

	flush := func() {
		content := strings.TrimSpace(buf.String())
		buf.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Title:   strings.Join(titleStack, " / "),
			Content: content,
		})
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok {
			flush()
			title := string(nodeText(h, src))
			if h.Level <= len(titleStack) {
				titleStack = titleStack[:h.Level-1]
			}
			titleStack = append(titleStack, title)
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.Write(blockText(node, src))
	}
	flush()

	return chunks
}

// nodeText concatenates the text segments of an inline container.
func nodeText(n ast.Node, src []byte) []byte {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(src)...)
			continue
		}
		out = append(out, nodeText(c, src)...)
	}
	return out
}

// blockText renders a block node back to plain text, lines joined.
func blockText(n ast.Node, src []byte) []byte {
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		if lines.Len() > 0 {
			var out []byte
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				out = append(out, seg.Value(src)...)
			}
			return out
		}
	}

	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		part := blockText(c, src)
		if len(out) > 0 && len(part) > 0 {
			out = append(out, '\n')
		}
		out = append(out, part...)
	}
	return out
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify converts a title to a key-friendly format.
func slugify(s string) string {
	s = strings.ToLower(s)
	s = slugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
