package prompt

import "strings"

// Builder assembles the final generation prompt from its optional
// context sections and applies the overall character ceiling.
type Builder struct {
	// AppTitle names the assistant in the system preamble.
	AppTitle string
	// About is the ground-truth capability statement injected into
	// every prompt (and returned verbatim by the `about` command).
	About string
	// MaxChars is the hard ceiling for the assembled prompt.
	MaxChars int
}

// Input carries the per-request context sections. Empty sections are
// omitted from the assembled prompt.
type Input struct {
	Memory         string
	KBMaterial     string
	WebContext     string
	ProjectContext string
	LastTopic      string
	WebUsed        bool
	UserMessage    string
}

// Build assembles the prompt: fixed system preamble, then each present
// context section, then the user message, truncated to MaxChars.
func (b *Builder) Build(in Input) string {
	webUsed := "NO"
	if in.WebUsed {
		webUsed = "YES"
	}

	parts := []string{
		"SYSTEM:",
		"You are " + b.AppTitle + ", a local desktop app using the user's selected local Ollama model.",
		"",
		"IMPORTANT APP CAPABILITIES:",
		"- The APP (not the model) can optionally SPEAK assistant responses when the user enables Voice (TTS).",
		"- Do not claim web browsing unless WEB CONTEXT is present.",
		"",
		"STRICT TRUTH RULES (IMPORTANT):",
		"- If asked who trained the model, the dataset size, the disk size of training data, or the training cutoff date: say you DO NOT know unless the user provides it.",
		"- Never claim you are trained by Google/OpenAI/etc unless the user provided that fact.",
		"- Do not invent URLs, sources, reports, or 'local news'.",
		"- If PROJECT CONTEXT is provided, use it for file/structure questions and do not invent filenames.",
		"",
		"WEB_USED: " + webUsed,
		"",
		"ABOUT (ground truth):",
		b.About,
		"",
	}

	if in.LastTopic != "" {
		parts = append(parts, "SESSION last_topic: "+in.LastTopic+"\n")
	}
	if strings.TrimSpace(in.Memory) != "" {
		parts = append(parts, "MEMORY:\n"+in.Memory+"\n")
	}
	if strings.TrimSpace(in.KBMaterial) != "" {
		parts = append(parts, "KB:\n"+in.KBMaterial+"\n")
	}
	if strings.TrimSpace(in.WebContext) != "" {
		parts = append(parts, "WEB CONTEXT:\n"+in.WebContext+"\n")
	}
	if strings.TrimSpace(in.ProjectContext) != "" {
		parts = append(parts, "PROJECT CONTEXT:\n"+in.ProjectContext+"\n")
	}

	parts = append(parts, "USER:\n"+strings.TrimSpace(in.UserMessage))
	parts = append(parts, "\nASSISTANT:")

	return Truncate(strings.Join(parts, "\n"), b.MaxChars)
}
