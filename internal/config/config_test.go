package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "quotepilot" {
		t.Errorf("expected server name 'quotepilot', got %q", cfg.Server.Name)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("expected listen addr ':8080', got %q", cfg.Server.ListenAddr)
	}
	if cfg.Browser.DefaultNavigationTimeout != "30s" {
		t.Errorf("expected navigation timeout '30s', got %q", cfg.Browser.DefaultNavigationTimeout)
	}
	if cfg.Browser.MaxSnapshotElements != 2000 {
		t.Errorf("expected snapshot cap 2000, got %d", cfg.Browser.MaxSnapshotElements)
	}
	if cfg.Task.TTL != "1h" {
		t.Errorf("expected task ttl '1h', got %q", cfg.Task.TTL)
	}
	if cfg.Recorder.MaxTraces != 5 {
		t.Errorf("expected max traces 5, got %d", cfg.Recorder.MaxTraces)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Error("expected error for empty path")
	}
	if err.Error() != "config path is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  name: "test-server"
  version: "1.0.0"
  listen_addr: ":9090"

browser:
  launch: ["chromium", "--remote-debugging-port=9222"]
  headless: false
  default_navigation_timeout: "20s"
  probe_timeout: "500ms"
  viewport_width: 1280
  viewport_height: 720

task:
  ttl: "30m"
  sweep_interval: "1m"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Name != "test-server" {
		t.Errorf("expected server name 'test-server', got %q", cfg.Server.Name)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("expected listen addr ':9090', got %q", cfg.Server.ListenAddr)
	}
	if cfg.Browser.IsHeadless() {
		t.Error("expected headless false")
	}
	if cfg.Browser.NavigationTimeout() != 20*time.Second {
		t.Errorf("expected 20s navigation timeout, got %v", cfg.Browser.NavigationTimeout())
	}
	if cfg.Browser.OptimisticProbeTimeout() != 500*time.Millisecond {
		t.Errorf("expected 500ms probe timeout, got %v", cfg.Browser.OptimisticProbeTimeout())
	}
	if cfg.Task.GetTTL() != 30*time.Minute {
		t.Errorf("expected 30m ttl, got %v", cfg.Task.GetTTL())
	}
	// Unset recorder section keeps defaults.
	if cfg.Recorder.ScreenshotDir != "data/screenshots" {
		t.Errorf("expected default screenshot dir, got %q", cfg.Recorder.ScreenshotDir)
	}
}

func TestValidateRequiresBrowserEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.DebuggerURL = ""
	cfg.Browser.Launch = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when neither debugger_url nor launch is set")
	}

	cfg.Browser.DebuggerURL = "ws://localhost:9222"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDurationFallbacks(t *testing.T) {
	b := BrowserConfig{DefaultNavigationTimeout: "not-a-duration"}
	if b.NavigationTimeout() != 30*time.Second {
		t.Errorf("expected fallback 30s, got %v", b.NavigationTimeout())
	}
	if b.ActionTimeout() != 10*time.Second {
		t.Errorf("expected fallback 10s, got %v", b.ActionTimeout())
	}
	tk := TaskConfig{}
	if tk.GetTTL() != time.Hour {
		t.Errorf("expected fallback 1h, got %v", tk.GetTTL())
	}
}
