package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the quotepilot server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	Task     TaskConfig     `yaml:"task"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// HTTP listen address for the quote API (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`
	LogFile    string `yaml:"log_file"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Stealth controls whether automation fingerprints are stripped before
	// any page script runs (default: true). Carrier sites probe for these.
	Stealth *bool `yaml:"stealth"`
	// Full page-load timeout (e.g., "30s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Timeout for individual click/type/select actions (e.g., "10s").
	DefaultActionTimeout string `yaml:"default_action_timeout"`
	// Short timeout for optimistic element probes; keeps the state machine
	// from stalling on likely-absent elements (e.g., "800ms").
	ProbeTimeout string `yaml:"probe_timeout"`
	// Upper bound on elements serialized per structural snapshot.
	MaxSnapshotElements int `yaml:"max_snapshot_elements"`
	// Viewport for new sessions.
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

// TaskConfig controls task lifecycle housekeeping.
type TaskConfig struct {
	// Inactivity TTL after which a task and its sessions are reaped (e.g., "1h").
	TTL string `yaml:"ttl"`
	// How often the reaper scans for expired tasks (e.g., "5m").
	SweepInterval string `yaml:"sweep_interval"`
}

// RecorderConfig controls diagnostic capture on error paths.
type RecorderConfig struct {
	// Directory for error screenshots.
	ScreenshotDir string `yaml:"screenshot_dir"`
	// Directory for rotating jsonl traces.
	TraceDir string `yaml:"trace_dir"`
	// Newest trace files kept after rotation.
	MaxTraces int `yaml:"max_traces"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:       "quotepilot",
			Version:    "0.1.0",
			ListenAddr: ":8080",
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "30s",
			DefaultActionTimeout:     "10s",
			ProbeTimeout:             "800ms",
			MaxSnapshotElements:      2000,
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Task: TaskConfig{
			TTL:           "1h",
			SweepInterval: "5m",
		},
		Recorder: RecorderConfig{
			ScreenshotDir: "data/screenshots",
			TraceDir:      "data/traces",
			MaxTraces:     5,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return errors.New("browser.debugger_url or browser.launch must be provided")
	}
	if c.Browser.MaxSnapshotElements < 0 {
		return fmt.Errorf("browser.max_snapshot_elements must not be negative, got %d", c.Browser.MaxSnapshotElements)
	}
	return nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDurationOr(b.DefaultNavigationTimeout, 30*time.Second)
}

// ActionTimeout returns the parsed per-action timeout with a sane default.
func (b BrowserConfig) ActionTimeout() time.Duration {
	return parseDurationOr(b.DefaultActionTimeout, 10*time.Second)
}

// OptimisticProbeTimeout returns the short probe timeout with a sane default.
func (b BrowserConfig) OptimisticProbeTimeout() time.Duration {
	return parseDurationOr(b.ProbeTimeout, 800*time.Millisecond)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// IsStealth returns whether fingerprint stripping is enabled (default: true).
func (b BrowserConfig) IsStealth() bool {
	if b.Stealth == nil {
		return true
	}
	return *b.Stealth
}

// SnapshotLimit returns the snapshot element cap with a sane default.
func (b BrowserConfig) SnapshotLimit() int {
	if b.MaxSnapshotElements <= 0 {
		return 2000
	}
	return b.MaxSnapshotElements
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// GetTTL returns the task inactivity TTL with a sane default.
func (t TaskConfig) GetTTL() time.Duration {
	return parseDurationOr(t.TTL, time.Hour)
}

// GetSweepInterval returns the reaper interval with a sane default.
func (t TaskConfig) GetSweepInterval() time.Duration {
	return parseDurationOr(t.SweepInterval, 5*time.Minute)
}

// GetMaxTraces returns the kept-trace cap with a sane default.
func (r RecorderConfig) GetMaxTraces() int {
	if r.MaxTraces <= 0 {
		return 5
	}
	return r.MaxTraces
}
