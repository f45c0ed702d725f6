package config

import (
	"os"
	"testing"
	"time"
)

// unsetenv clears variables for the test and restores them afterwards.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// chdir changes the working directory for the test and restores it afterwards.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	unsetenv(t, "CODEBOUND_SERVER_URL", "CODEBOUND_REFRESH_INTERVAL", "GEMINI_API_KEY")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://localhost:5000" {
		t.Errorf("Unexpected server URL %q", cfg.ServerURL)
	}
	if cfg.RefreshInterval != 5*time.Second {
		t.Errorf("Expected 5s refresh, got %s", cfg.RefreshInterval)
	}
	if cfg.AdvisorEnabled() {
		t.Errorf("Advisor should be off without a key")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CODEBOUND_SERVER_URL", "https://game.example.com")
	t.Setenv("CODEBOUND_REFRESH_INTERVAL", "2s")
	t.Setenv("CODEBOUND_ALLOW_STALE", "true")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "https://game.example.com" || cfg.RefreshInterval != 2*time.Second || !cfg.AllowStale {
		t.Errorf("Env not applied: %+v", cfg)
	}
	if !cfg.AdvisorEnabled() {
		t.Errorf("Advisor should be on with a key")
	}
}

func TestValidate(t *testing.T) {
	base := Config{ServerURL: "http://localhost:5000", RefreshInterval: time.Second, RequestTimeout: time.Second}
	if err := base.Validate(); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}

	bad := base
	bad.ServerURL = "localhost"
	if err := bad.Validate(); err == nil {
		t.Errorf("Expected relative URL to be rejected")
	}

	bad = base
	bad.RefreshInterval = 0
	if err := bad.Validate(); err == nil {
		t.Errorf("Expected zero refresh interval to be rejected")
	}
}
