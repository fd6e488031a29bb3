package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/thelocalai/thelocalai/internal/agent"
	"github.com/thelocalai/thelocalai/internal/chat"
	"github.com/thelocalai/thelocalai/internal/config"
	"github.com/thelocalai/thelocalai/internal/devauth"
	"github.com/thelocalai/thelocalai/internal/llm"
	"github.com/thelocalai/thelocalai/internal/voice"
)

// voiceDisclaimer replaces replies where the model claims it has no
// voice. Speech is an app capability, not a model capability, and the
// model has no way to know whether the bridge is connected.
const voiceDisclaimer = "Voice is handled by the app. If you enable voice, I can speak responses aloud. The model itself only outputs text."

// console renders harness outcomes to the terminal and mirrors
// assistant replies to the voice bridge when one is connected. All
// render methods are called from the harness foreground loop; the
// mutex only guards against interleaving with the input prompt.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	bridge *voice.Bridge
}

func newConsole(out io.Writer, bridge *voice.Bridge) *console {
	return &console{out: out, bridge: bridge}
}

func (c *console) RenderResult(res *chat.ChatResult, elapsed time.Duration) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range res.Stored {
		fmt.Fprintf(c.out, "[MEMORY] %s = %s\n", f.Key, f.Value)
	}

	text := strings.TrimSpace(res.Assistant)
	low := strings.ToLower(text)
	if strings.Contains(low, "don't have a voice") ||
		strings.Contains(low, "doesnt have a voice") ||
		strings.Contains(low, "doesn't have a voice") {
		text = voiceDisclaimer
	}

	fmt.Fprintf(c.out, "%s: %s\n", chat.AppTitle, text)

	if c.bridge != nil && c.bridge.Available() {
		c.bridge.Speak(text)
	}
}

func (c *console) RenderError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[ERROR] %s\n", err)
}

func (c *console) RenderModels(models []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[MODELS] %s\n", strings.Join(models, ", "))
}

func (c *console) RenderTimeout(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[TIMEOUT] no response after %s; input unlocked, a late reply may still arrive\n",
		elapsed.Truncate(time.Second))
}

func (c *console) SetBusy(busy bool) {
	if !busy {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, "[...] thinking")
}

// printf writes a line outside the renderer callbacks.
func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// consoleLoop reads input lines and voice transcripts and dispatches
// them to the harness until EOF, "exit", or ctx cancellation. Local
// commands (dev mode, exit) are handled here; everything else goes
// through the pipeline.
func consoleLoop(ctx context.Context, stdin io.Reader, cfg *config.Config, harness *agent.Harness, bridge *voice.Bridge, ui *console, logger *slog.Logger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 64*1024), 64*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var transcripts <-chan string
	if bridge != nil {
		transcripts = bridge.Transcripts()
	}

	gate := devauth.New(cfg.DevAuthPath(), 0)

	send := func(message string) {
		req := chat.Request{
			Model:   cfg.Ollama.DefaultModel,
			Message: message,
			Params: llm.SamplingParams{
				NumPredict:  cfg.Ollama.NumPredict,
				Temperature: cfg.Ollama.Temperature,
			},
		}
		switch err := harness.Send(req); {
		case err == nil:
		case errors.Is(err, agent.ErrBusy):
			ui.printf("[BUSY] still working on the previous request")
		case errors.Is(err, agent.ErrClosing):
		default:
			ui.printf("[ERROR] %s", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			ui.printf("You (voice): %s", t)
			send(t)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			msg := strings.TrimSpace(line)
			if msg == "" {
				continue
			}
			switch {
			case msg == "exit" || msg == "quit":
				return nil
			case strings.HasPrefix(msg, "dev "):
				handleDevCommand(ui, gate, strings.TrimSpace(strings.TrimPrefix(msg, "dev ")), harness)
			default:
				send(msg)
			}
		}
	}
}

// handleDevCommand services the developer-mode gate and, when
// unlocked, the diagnostic status readout.
func handleDevCommand(ui *console, gate *devauth.Gate, cmd string, harness *agent.Harness) {
	verb, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "setpass":
		if arg == "" {
			ui.printf("Usage: dev setpass <password>")
			return
		}
		if err := gate.SetPassword(arg); err != nil {
			ui.printf("[ERROR] %s", err)
			return
		}
		ui.printf("Developer password set.")
	case "unlock":
		if !gate.Configured() {
			ui.printf("No developer password set. Use: dev setpass <password>")
			return
		}
		if gate.Unlock(arg) {
			ui.printf("Developer mode unlocked.")
		} else {
			ui.printf("Wrong password.")
		}
	case "lock":
		gate.Lock()
		ui.printf("Developer mode locked.")
	case "status":
		if !gate.Unlocked() {
			ui.printf("Developer mode is locked. Use: dev unlock <password>")
			return
		}
		ui.printf("processing=%v age=%s queue=%d last_generation=%s",
			harness.Processing(),
			harness.ProcessingAge().Truncate(time.Millisecond),
			harness.QueueDepth(),
			harness.LastGeneration())
	default:
		ui.printf("Unknown dev command: %s (setpass, unlock, lock, status)", verb)
	}
}
