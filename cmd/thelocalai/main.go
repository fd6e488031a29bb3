// TheLocalAI is a fully local AI assistant.
//
// It talks to a local Ollama instance for generation, keeps a
// persistent fact memory and knowledge base in SQLite, and can
// optionally research the web through a SearXNG-compatible search
// endpoint. Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	thelocalai run               Start the interactive console
//	thelocalai init [dir]        Initialize a working directory with defaults
//	thelocalai ingest <file.md>  Import a markdown document into the knowledge base
//	thelocalai version           Print version and build information
//	thelocalai -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thelocalai/thelocalai/internal/agent"
	"github.com/thelocalai/thelocalai/internal/buildinfo"
	"github.com/thelocalai/thelocalai/internal/chat"
	"github.com/thelocalai/thelocalai/internal/config"
	"github.com/thelocalai/thelocalai/internal/fetch"
	"github.com/thelocalai/thelocalai/internal/ingest"
	"github.com/thelocalai/thelocalai/internal/instance"
	"github.com/thelocalai/thelocalai/internal/llm"
	"github.com/thelocalai/thelocalai/internal/projectctx"
	"github.com/thelocalai/thelocalai/internal/search"
	"github.com/thelocalai/thelocalai/internal/store"
	"github.com/thelocalai/thelocalai/internal/telemetry"
	"github.com/thelocalai/thelocalai/internal/voice"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible
// to call run concurrently from tests, and the argument surface is
// small enough that manual parsing stays clear.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "run":
		return runConsole(ctx, stdin, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ingest":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: thelocalai ingest <file.md>")
		}
		return runIngest(stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "TheLocalAI - fully local AI assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: thelocalai [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run          Start the interactive console")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ingest       Import markdown docs into the knowledge base")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/thelocalai/config.yaml, /etc/thelocalai/config.yaml")
	return nil
}

// runIngest parses a markdown document into heading-delimited chunks
// and stores them in the knowledge base.
func runIngest(stdout io.Writer, configPath string, filePath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.Open(cfg.DBPath(), cfg.Memory.MaxRows)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	count, err := ingest.New(st).IngestFile(filePath)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	logger.Info("ingestion complete", "chunks", count, "file", filePath)
	fmt.Fprintf(stdout, "Successfully ingested %d chunks from %s\n", count, filePath)
	return nil
}

// runConsole is the primary operating mode: load config, take the
// single-instance lock, wire the pipeline and harness, and drive the
// interactive console until EOF or a shutdown signal.
func runConsole(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting TheLocalAI", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		// No config file is a supported setup: run on defaults.
		logger.Warn("no config file found, using defaults", "error", err)
		cfg = config.Default()
	} else {
		logger.Info("config loaded", "path", cfgPath)
	}

	if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger = newLogger(stdout, level)
	}

	lock, err := instance.Acquire(cfg.Instance.Host, cfg.Instance.Port)
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Generation client ---
	llmClient := llm.New(llm.Config{
		URL:            cfg.Ollama.URL,
		ConnectTimeout: time.Duration(cfg.Ollama.ConnectTimeout) * time.Second,
		ReadTimeout:    time.Duration(cfg.Ollama.ReadTimeout) * time.Second,
		Retries:        cfg.Ollama.Retries,
	}, logger)

	// --- Web research ---
	var provider search.Provider
	if cfg.Web.SearchURL != "" {
		provider = search.NewSearXNG(cfg.Web.SearchURL, time.Duration(cfg.Web.TimeoutSec)*time.Second)
	}
	searcher := search.NewManager(provider, logger)

	fetcher := fetch.New(fetch.Config{
		Timeout:        time.Duration(cfg.Web.TimeoutSec) * time.Second,
		MaxChars:       cfg.Web.MaxCharsPerPage,
		Retries:        cfg.Web.FetchRetries,
		BlockedDomains: cfg.Web.BlockedDomains,
	})

	// --- Pipeline ---
	wd, _ := os.Getwd()
	pipeline := chat.New(chat.Config{
		WebEnabled:     cfg.Web.Enabled,
		MaxResults:     cfg.Web.MaxResults,
		MaxPagesToRead: cfg.Web.MaxPagesToRead,
		MemoryCapChars: cfg.Chat.MemoryCapChars,
		WebCapChars:    cfg.Chat.WebCapChars,
		MaxPromptChars: cfg.Chat.MaxPromptChars,
	}, searcher, fetcher, llmClient, projectctx.New(wd), logger)

	// --- Voice bridge (optional) ---
	var bridge *voice.Bridge
	if cfg.Voice.Enabled {
		bridge = voice.Dial(cfg.Voice.BridgeURL, logger)
		defer bridge.Close()
	}

	ui := newConsole(stdout, bridge)

	// --- Harness ---
	openStore := func() (agent.WorkerStore, error) {
		return store.Open(cfg.DBPath(), cfg.Memory.MaxRows)
	}
	harness := agent.New(agent.Config{
		MaxUserChars:    cfg.Chat.MaxUserChars,
		PollInterval:    time.Duration(cfg.Chat.PollIntervalMS) * time.Millisecond,
		PollBatch:       cfg.Chat.PollBatch,
		WatchdogTick:    time.Duration(cfg.Chat.WatchdogTickSec) * time.Second,
		WatchdogTimeout: cfg.WatchdogTimeout(),
	}, pipeline, llmClient, openStore, ui, logger)
	defer harness.Close()

	go harness.Run(ctx)
	harness.RefreshModels(ctx)

	// --- Telemetry (optional) ---
	if cfg.Telemetry.Enabled && cfg.Telemetry.BrokerURL != "" {
		// A dedicated store handle for row counts; workers open their own.
		counts, err := store.Open(cfg.DBPath(), cfg.Memory.MaxRows)
		if err != nil {
			logger.Warn("telemetry store unavailable", "error", err)
		} else {
			defer counts.Close()
			sampler := telemetry.NewSampler(harness, counts, buildinfo.Version)
			pub := telemetry.NewPublisher(cfg.Telemetry.BrokerURL, cfg.Telemetry.TopicPrefix,
				time.Duration(cfg.Telemetry.IntervalSec)*time.Second, sampler, logger)
			go func() {
				if err := pub.Start(ctx); err != nil {
					logger.Warn("telemetry publisher stopped", "error", err)
				}
			}()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_ = pub.Stop(stopCtx)
			}()
		}
	}

	return consoleLoop(ctx, stdin, cfg, harness, bridge, ui, logger)
}

// newLogger builds a text slog logger at the given level.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig locates and parses the YAML configuration file. Returns
// the parsed config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
