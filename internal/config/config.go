// Package config handles TheLocalAI configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/thelocalai/config.yaml, /etc/thelocalai/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "thelocalai", "config.yaml"))
	}

	paths = append(paths, "/etc/thelocalai/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all TheLocalAI configuration.
type Config struct {
	Ollama    OllamaConfig    `yaml:"ollama"`
	Web       WebConfig       `yaml:"web"`
	Memory    MemoryConfig    `yaml:"memory"`
	Chat      ChatConfig      `yaml:"chat"`
	Voice     VoiceConfig     `yaml:"voice"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Instance  InstanceConfig  `yaml:"instance"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// OllamaConfig defines the generation backend connection.
type OllamaConfig struct {
	URL            string  `yaml:"url"`
	DefaultModel   string  `yaml:"default_model"`
	ConnectTimeout int     `yaml:"connect_timeout_sec"` // TCP dial budget
	ReadTimeout    int     `yaml:"read_timeout_sec"`    // full-response budget
	Retries        int     `yaml:"retries"`             // beyond the first attempt
	NumPredict     int     `yaml:"num_predict"`
	Temperature    float64 `yaml:"temperature"`
}

// WebConfig defines web research behavior.
type WebConfig struct {
	Enabled         bool     `yaml:"enabled"`
	SearchURL       string   `yaml:"search_url"` // SearXNG-compatible endpoint; empty disables search
	TimeoutSec      int      `yaml:"timeout_sec"`
	MaxResults      int      `yaml:"max_results"`
	MaxPagesToRead  int      `yaml:"max_pages_to_read"`
	MaxCharsPerPage int      `yaml:"max_chars_per_page"`
	FetchRetries    int      `yaml:"fetch_retries"`
	BlockedDomains  []string `yaml:"blocked_domains"`
}

// MemoryConfig defines the persistent fact store limits.
type MemoryConfig struct {
	MaxRows int `yaml:"max_rows"` // retention cap across all keys
}

// ChatConfig defines request-pipeline limits and cadences.
type ChatConfig struct {
	MaxUserChars    int `yaml:"max_user_chars"`
	MaxPromptChars  int `yaml:"max_prompt_chars"`
	MemoryCapChars  int `yaml:"memory_cap_chars"`
	WebCapChars     int `yaml:"web_cap_chars"`
	WatchdogSec     int `yaml:"watchdog_sec"`
	PollIntervalMS  int `yaml:"poll_interval_ms"`
	PollBatch       int `yaml:"poll_batch"`
	WatchdogTickSec int `yaml:"watchdog_tick_sec"`
}

// VoiceConfig defines the optional speech bridge connection.
// The bridge is a local service speaking a small JSON protocol over a
// websocket; absence is a degraded mode, never an error.
type VoiceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BridgeURL string `yaml:"bridge_url"` // e.g. ws://127.0.0.1:48270/voice
}

// TelemetryConfig defines the optional MQTT status publisher.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"` // e.g. mqtt://127.0.0.1:1883
	TopicPrefix string `yaml:"topic_prefix"`
	IntervalSec int    `yaml:"interval_sec"`
}

// InstanceConfig defines the single-instance lock endpoint.
type InstanceConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration matching a stock local setup.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		LogLevel: "info",
		Ollama: OllamaConfig{
			URL:            "http://127.0.0.1:11434",
			DefaultModel:   "gemma3:4b",
			ConnectTimeout: 5,
			ReadTimeout:    240,
			Retries:        2,
			NumPredict:     320,
			Temperature:    0.25,
		},
		Web: WebConfig{
			Enabled:         true,
			TimeoutSec:      20,
			MaxResults:      10,
			MaxPagesToRead:  5,
			MaxCharsPerPage: 14000,
			FetchRetries:    1,
			BlockedDomains: []string{
				"researchgate.net",
				"facebook.com",
				"instagram.com",
				"tiktok.com",
				"x.com",
				"twitter.com",
				"medium.com",
			},
		},
		Memory: MemoryConfig{MaxRows: 2000},
		Chat: ChatConfig{
			MaxUserChars:    4000,
			MaxPromptChars:  52000,
			MemoryCapChars:  6000,
			WebCapChars:     18000,
			WatchdogSec:     300,
			PollIntervalMS:  80,
			PollBatch:       10,
			WatchdogTickSec: 1,
		},
		Instance: InstanceConfig{
			Host: "127.0.0.1",
			Port: 48231,
		},
		Telemetry: TelemetryConfig{
			TopicPrefix: "thelocalai",
			IntervalSec: 5,
		},
	}
}

// WatchdogTimeout returns the generation watchdog ceiling, never less
// than the read timeout plus headroom so a healthy slow generation is
// not reported as hung.
func (c *Config) WatchdogTimeout() time.Duration {
	floor := time.Duration(c.Ollama.ReadTimeout+20) * time.Second
	d := time.Duration(c.Chat.WatchdogSec) * time.Second
	if d < floor {
		return floor
	}
	return d
}

// DBPath returns the SQLite database location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "memory.db")
}

// DevAuthPath returns the dev-mode password file location.
func (c *Config) DevAuthPath() string {
	return filepath.Join(c.DataDir, "dev_auth.json")
}
