// Package projectctx builds a project-snapshot context block for
// messages that ask about local files or repository structure. The
// snapshot lists top-level entries, a sample of source files, and
// paths scored against tokens from the user's question.
package projectctx

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const maxFiles = 500

var excludedDirs = map[string]bool{
	".git":         true,
	"data":         true,
	"vendor":       true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
}

var triggerPhrases = []string{
	"project structure",
	"repo structure",
	"codebase structure",
	"where is",
	"which file",
	"which module",
	"what file",
}

var (
	structureWordRe = regexp.MustCompile(`\b(file|files|folder|folders|directory|directories|repo|repository|codebase|module|modules|source)\b`)
	tokenRe         = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_\-]{2,}`)
)

// noiseTokens are question words and generic terms ignored when
// scoring paths against the message.
var noiseTokens = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "what": true, "where": true, "which": true, "about": true,
	"does": true, "know": true, "your": true, "repo": true, "files": true,
	"file": true, "code": true, "codebase": true, "project": true,
	"structure": true,
}

// Provider builds snapshots rooted at a fixed directory.
type Provider struct {
	root string
}

// New creates a provider rooted at dir.
func New(dir string) *Provider {
	return &Provider{root: dir}
}

// For returns a project-context block when the message asks about
// files or structure, or an empty string otherwise. Implements the
// pipeline's ContextProvider.
func (p *Provider) For(message string) string {
	if !Triggered(message) {
		return ""
	}
	return p.Build(message)
}

// Triggered reports whether the message asks about project structure
// or file locations.
func Triggered(message string) bool {
	low := strings.ToLower(strings.TrimSpace(message))
	if low == "" {
		return false
	}
	for _, phrase := range triggerPhrases {
		if strings.Contains(low, phrase) {
			return true
		}
	}
	return structureWordRe.MatchString(low)
}

// Build walks the project tree (bounded, excluded dirs skipped) and
// renders the snapshot block.
func (p *Provider) Build(message string) string {
	rels := p.listFiles()
	if len(rels) == 0 {
		return "Project context unavailable: no readable files found."
	}

	topLevelSet := map[string]bool{}
	for _, rel := range rels {
		topLevelSet[strings.SplitN(rel, "/", 2)[0]] = true
	}
	topLevel := make([]string, 0, len(topLevelSet))
	for e := range topLevelSet {
		topLevel = append(topLevel, e)
	}
	sort.Strings(topLevel)
	if len(topLevel) > 25 {
		topLevel = topLevel[:25]
	}

	var goFiles []string
	for _, rel := range rels {
		if strings.HasSuffix(rel, ".go") {
			goFiles = append(goFiles, rel)
			if len(goFiles) == 30 {
				break
			}
		}
	}

	matches := scorePaths(rels, messageTokens(message))

	lines := []string{
		"PROJECT SNAPSHOT:",
		"- Root: " + p.root,
		"- Total files indexed: " + strconv.Itoa(len(rels)) + " (capped at " + strconv.Itoa(maxFiles) + ")",
		"",
		"TOP-LEVEL ENTRIES:",
	}
	for _, e := range topLevel {
		lines = append(lines, "- "+e)
	}
	lines = append(lines, "", "GO FILES (sample):")
	for _, f := range goFiles {
		lines = append(lines, "- "+f)
	}

	if len(matches) > 0 {
		lines = append(lines, "", "PATHS RELEVANT TO USER QUESTION:")
		for _, m := range matches {
			lines = append(lines, "- "+m)
		}
	}

	lines = append(lines, "", "Use only these paths as evidence for structure/file-location answers.")
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// listFiles walks the root collecting up to maxFiles relative paths.
func (p *Provider) listFiles() []string {
	var rels []string
	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(rels) >= maxFiles {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] && path != p.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		rels = append(rels, filepath.ToSlash(rel))
		return nil
	})
	return rels
}

// messageTokens extracts lower-cased tokens from the message with
// noise words removed.
func messageTokens(message string) map[string]bool {
	tokens := map[string]bool{}
	for _, t := range tokenRe.FindAllString(strings.ToLower(message), -1) {
		if !noiseTokens[t] {
			tokens[t] = true
		}
	}
	return tokens
}

// scorePaths ranks paths by how many message tokens they contain,
// highest score first, then lexically, capped at 20.
func scorePaths(rels []string, tokens map[string]bool) []string {
	type scored struct {
		score int
		rel   string
	}
	var hits []scored
	for _, rel := range rels {
		low := strings.ToLower(rel)
		score := 0
		for t := range tokens {
			if strings.Contains(low, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{score, rel})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rel < hits[j].rel
	})
	if len(hits) > 20 {
		hits = hits[:20]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.rel
	}
	return out
}

