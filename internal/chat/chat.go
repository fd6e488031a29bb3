// Package chat implements the reply pipeline: it classifies an
// incoming message into a command or a generation request, drives fact
// extraction, optional web research, prompt assembly, and the
// generation call, and returns a structured result.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/thelocalai/thelocalai/internal/fetch"
	"github.com/thelocalai/thelocalai/internal/llm"
	"github.com/thelocalai/thelocalai/internal/prompt"
	"github.com/thelocalai/thelocalai/internal/search"
	"github.com/thelocalai/thelocalai/internal/store"
)

// AppTitle names the assistant in prompts and rendered replies.
const AppTitle = "TheLocalAI"

// AboutText is the fixed reply to the `about` command and the
// ground-truth capability statement injected into every prompt.
const AboutText = `I'm ` + AppTitle + `, a local desktop app on your machine.

What I can do:
- Chat using your selected local Ollama model.
- Store simple "facts" you explicitly tell me (in a local SQLite DB).
- Optional web research only when you use commands like ` + "`web:` or `learn:`" + `.

What "model knowledge" means:
- The language model has patterns/skills from its training done by its original authors.
- Inside this app, I do NOT have direct access to the model's original training dataset, size, disk footprint, or exact cutoff date unless YOU provide that info.
- My reliable knowledge comes from:
  1) The model's built-in behavior (what it can generate),
  2) Your local memory + local knowledge base (KB),
  3) Web results that I fetch only when you explicitly request it.`

// webContextPerPageChars bounds each source's body inside the research
// context block, independent of the fetcher's own per-page cap.
const webContextPerPageChars = 3500

// directiveRe matches an explicit `word: argument` marker. Keyword
// presence alone never triggers directive handling.
var directiveRe = regexp.MustCompile(`(?i)\b(learn|web|kb)\s*:\s*(.*)$`)

// ChatResult is the outcome of one pipeline run.
type ChatResult struct {
	Assistant string             `json:"assistant"`
	Stored    []store.StoredFact `json:"stored"`
}

// Request describes one generation request.
type Request struct {
	Model   string
	Message string
	Params  llm.SamplingParams
}

// FactStore is the slice of the persistent store the pipeline needs.
// The harness passes a per-worker handle.
type FactStore interface {
	ExtractFacts(message string) ([]store.StoredFact, error)
	LatestPerKey() (string, error)
	ListKeys() ([]string, error)
	LastTopic() (string, error)
	SetLastTopic(topic string) error
	ClearDocuments() error
}

// Searcher is the web search collaborator. An unavailable backend
// returns empty results, never an error.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []search.Result
}

// PageFetcher is the page-fetch collaborator.
type PageFetcher interface {
	Blocked(url string) bool
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Generator produces text from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, params llm.SamplingParams) (string, error)
}

// ContextProvider optionally supplies a project-context block for
// messages that ask about local files or structure. Empty means the
// message did not trigger it.
type ContextProvider interface {
	For(message string) string
}

// Config holds the pipeline's research and budgeting knobs.
type Config struct {
	WebEnabled     bool
	MaxResults     int
	MaxPagesToRead int
	MemoryCapChars int
	WebCapChars    int
	MaxPromptChars int
}

// Pipeline executes one request at a time. It is stateless between
// requests; all durable state lives in the fact store.
type Pipeline struct {
	cfg       Config
	searcher  Searcher
	fetcher   PageFetcher
	generator Generator
	project   ContextProvider
	builder   *prompt.Builder
	logger    *slog.Logger
}

// New creates a pipeline. project may be nil.
func New(cfg Config, searcher Searcher, fetcher PageFetcher, generator Generator, project ContextProvider, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		searcher:  searcher,
		fetcher:   fetcher,
		generator: generator,
		project:   project,
		builder: &prompt.Builder{
			AppTitle: AppTitle,
			About:    AboutText,
			MaxChars: cfg.MaxPromptChars,
		},
		logger: logger,
	}
}

// GenerateReply runs the pipeline for one message.
//
// Fact extraction and the memory/last-topic reads always run first,
// even for command messages. Command dispatch takes precedence over
// directive scanning; directive scanning requires an explicit
// `keyword:` marker. A generation failure propagates untouched; the
// client layer already retried.
func (p *Pipeline) GenerateReply(ctx context.Context, st FactStore, req Request) (*ChatResult, error) {
	stored, err := st.ExtractFacts(req.Message)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	memory, err := st.LatestPerKey()
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	lastTopic, err := st.LastTopic()
	if err != nil {
		return nil, fmt.Errorf("load last topic: %w", err)
	}

	switch cmd := strings.ToLower(strings.TrimSpace(req.Message)); cmd {
	case "about":
		return &ChatResult{Assistant: AboutText, Stored: stored}, nil

	case "memorytopics", "memory topics", "memory_topics":
		keys, err := st.ListKeys()
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		text := "No personal memory stored yet."
		if len(keys) > 0 {
			text = "Stored memory keys:\n- " + strings.Join(keys, "\n- ")
		}
		return &ChatResult{Assistant: text, Stored: stored}, nil

	case "kbclear":
		if err := st.ClearDocuments(); err != nil {
			return nil, fmt.Errorf("clear knowledge base: %w", err)
		}
		return &ChatResult{Assistant: "Knowledge base cleared.", Stored: stored}, nil
	}

	directive, arg := scanDirective(req.Message)

	webUsed := directive == "learn" || directive == "web"
	var webContext string

	if webUsed {
		if !p.cfg.WebEnabled {
			return &ChatResult{Assistant: "Web mode is disabled.", Stored: stored}, nil
		}
		if arg == "" {
			return &ChatResult{
				Assistant: fmt.Sprintf("Usage: %s: <query/topic>", directive),
				Stored:    stored,
			}, nil
		}

		webContext = p.gatherWebContext(ctx, arg)
		if webContext == "" {
			return &ChatResult{Assistant: "No search results found.", Stored: stored}, nil
		}

		if err := st.SetLastTopic(arg); err != nil {
			p.logger.Warn("failed to record last topic", "error", err)
		}
	}

	var projectContext string
	if p.project != nil {
		projectContext = p.project.For(req.Message)
	}

	assembled := p.builder.Build(prompt.Input{
		Memory:         prompt.Cap(memory, p.cfg.MemoryCapChars),
		WebContext:     prompt.Cap(webContext, p.cfg.WebCapChars),
		ProjectContext: projectContext,
		LastTopic:      lastTopic,
		WebUsed:        webUsed,
		UserMessage:    req.Message,
	})

	response, err := p.generator.Generate(ctx, req.Model, assembled, req.Params)
	if err != nil {
		return nil, err
	}

	return &ChatResult{Assistant: response, Stored: stored}, nil
}

// scanDirective finds an explicit `word: argument` marker. It returns
// the lower-cased keyword and trimmed argument, or empty strings when
// no marker is present.
func scanDirective(message string) (string, string) {
	m := directiveRe.FindStringSubmatch(message)
	if m == nil {
		return "", ""
	}
	return strings.ToLower(m[1]), strings.TrimSpace(m[2])
}

// gatherWebContext runs the search and builds the structured research
// context block. Results are consumed in ranking order; blocked
// domains and failed fetches fall back to the search snippet, results
// with neither are skipped, and gathering stops once the page budget
// is reached. An empty return means zero usable results.
func (p *Pipeline) gatherWebContext(ctx context.Context, query string) string {
	results := p.searcher.Search(ctx, query, p.cfg.MaxResults)
	if len(results) == 0 {
		return ""
	}

	type page struct {
		url   string
		title string
		text  string
	}

	var pages []page
	for _, r := range results {
		if len(pages) >= p.cfg.MaxPagesToRead {
			break
		}
		if r.URL == "" {
			continue
		}

		snippet := strings.TrimSpace(r.Snippet)

		if p.fetcher.Blocked(r.URL) {
			if snippet != "" {
				pages = append(pages, page{url: r.URL, title: r.Title, text: "(Snippet) " + snippet})
			}
			continue
		}

		fetched, err := p.fetcher.Fetch(ctx, r.URL)
		if err != nil {
			p.logger.Debug("page fetch failed, falling back to snippet", "url", r.URL, "error", err)
			if snippet != "" {
				pages = append(pages, page{url: r.URL, title: r.Title, text: "(Snippet) " + snippet})
			}
			continue
		}

		title := fetched.Title
		if title == "" {
			title = r.Title
		}
		pages = append(pages, page{url: r.URL, title: title, text: fetched.Text})
	}

	if len(pages) == 0 {
		return ""
	}

	lines := []string{"QUERY/TOPIC: " + query, "", "SOURCES:"}
	for i, pg := range pages {
		lines = append(lines,
			fmt.Sprintf("[%d] %s", i+1, pg.title),
			"URL: "+pg.url,
			prompt.Cap(pg.text, webContextPerPageChars),
			"",
		)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
