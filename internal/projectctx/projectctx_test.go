package projectctx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTriggered(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"what is the project structure?", true},
		{"where is the config loader?", true},
		{"which file handles retries?", true},
		{"do you know your codebase?", true},
		{"tell me about goroutines", false},
		{"what's the weather?", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Triggered(tt.message); got != tt.want {
			t.Errorf("Triggered(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func writeTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := []string{
		"cmd/app/main.go",
		"internal/config/config.go",
		"internal/fetch/fetch.go",
		"README.md",
		".git/HEAD",
		"node_modules/dep/index.js",
	}
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestBuildSnapshot(t *testing.T) {
	p := New(writeTestTree(t))
	got := p.Build("where is the config file?")

	for _, want := range []string{
		"PROJECT SNAPSHOT:",
		"TOP-LEVEL ENTRIES:",
		"- cmd",
		"- internal",
		"GO FILES (sample):",
		"cmd/app/main.go",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("snapshot missing %q", want)
		}
	}

	// Excluded directories never appear.
	for _, absent := range []string{".git", "node_modules"} {
		if strings.Contains(got, absent) {
			t.Errorf("excluded dir %q leaked into snapshot", absent)
		}
	}

	// "config" from the question scores the config path into the
	// relevance section.
	if !strings.Contains(got, "PATHS RELEVANT TO USER QUESTION:") {
		t.Fatal("expected relevance section")
	}
	if !strings.Contains(got, "internal/config/config.go") {
		t.Error("expected config path ranked as relevant")
	}
}

func TestForOnlyWhenTriggered(t *testing.T) {
	p := New(writeTestTree(t))
	if got := p.For("tell me a joke"); got != "" {
		t.Errorf("expected empty context for untriggered message, got %q", got)
	}
	if got := p.For("which file loads config?"); got == "" {
		t.Error("expected context for triggered message")
	}
}
