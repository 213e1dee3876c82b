package checky

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/checky/pkg/childcfg"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Server.WSPath != "/chat" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Session.IdleTimeout != 300*time.Second {
		t.Fatalf("expected 300s idle timeout, got %s", cfg.Session.IdleTimeout)
	}
	if cfg.Child.DefaultAge != 7 || cfg.Child.DefaultVoice != childcfg.DefaultVoice {
		t.Fatalf("unexpected child defaults %+v", cfg.Child)
	}
	if len(cfg.Child.SupportedVoices) != 3 {
		t.Fatalf("expected three voices, got %v", cfg.Child.SupportedVoices)
	}
	if cfg.Store.Provider != "memory" {
		t.Fatalf("expected memory store, got %q", cfg.Store.Provider)
	}
	if len(cfg.Credentials.Required) != 1 || cfg.Credentials.Required[0] != "GEMINI_API_KEY" {
		t.Fatalf("expected gemini key to be required, got %v", cfg.Credentials.Required)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CHECKY_SESSION_IDLE_TIMEOUT", "120s")
	t.Setenv("CHECKY_SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("CHECKY_VENDORS_LLM_PROVIDER", "mock")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.IdleTimeout != 120*time.Second {
		t.Fatalf("expected env idle timeout, got %s", cfg.Session.IdleTimeout)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected env addr, got %q", cfg.Server.Addr)
	}
	if len(cfg.Credentials.Required) != 0 {
		t.Fatalf("mock llm needs no credential, got %v", cfg.Credentials.Required)
	}
}

func TestLoadConfigFileExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DG_KEY", "dg-secret")
	dir := t.TempDir()
	path := filepath.Join(dir, "checky.yaml")
	body := `
log_level: debug
session:
  idle_timeout: 45s
vendors:
  stt:
    provider: deepgram
    settings:
      api_key: "${TEST_DG_KEY}"
      model: nova-2
credentials:
  required: [GEMINI_API_KEY, DEEPGRAM_API_KEY]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Session.IdleTimeout != 45*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if got := cfg.Vendors.STT.Settings["api_key"]; got != "dg-secret" {
		t.Fatalf("expected expanded api key, got %v", got)
	}
	if len(cfg.Credentials.Required) != 2 {
		t.Fatalf("explicit credentials should win, got %v", cfg.Credentials.Required)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"age", func(c *Config) { c.Child.DefaultAge = 11 }, "child.default_age"},
		{"voice", func(c *Config) { c.Child.DefaultVoice = "en-US-Standard-A" }, "child.default_voice"},
		{"idle", func(c *Config) { c.Session.IdleTimeout = 0 }, "session.idle_timeout"},
		{"path", func(c *Config) { c.Server.WSPath = "chat" }, "server.ws_path"},
		{"store", func(c *Config) { c.Store.Provider = "sqlite" }, "store.provider"},
		{"dsn", func(c *Config) { c.Store.Provider = "postgres" }, "store.dsn"},
		{"seed", func(c *Config) { c.Store.SeedPIN = "12a4" }, "store.seed_pin"},
		{"vendor", func(c *Config) { c.Vendors.TTS.Provider = " " }, "vendors.tts.provider"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Child.SupportedVoices = append([]string(nil), base.Child.SupportedVoices...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
