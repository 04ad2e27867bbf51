package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("Model", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != "none" {
		t.Fatalf("expected provider none without credentials, got %q", cfg.AI.Provider)
	}
	if cfg.Storage.Driver != "memory" || cfg.Profile.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v %+v", cfg.Storage, cfg.Profile)
	}
	if cfg.Guide.SupportWeight != 1.5 || cfg.Guide.EscalationWindow != 6 || cfg.Guide.PromptTurns != 5 {
		t.Fatalf("unexpected guide defaults: %+v", cfg.Guide)
	}
	if cfg.Audit.RetryBackoff != 200*time.Millisecond {
		t.Fatalf("expected 200ms backoff, got %s", cfg.Audit.RetryBackoff)
	}
	if cfg.AI.Temperature != nil || cfg.AI.MaxTokens != nil {
		t.Fatal("optional model parameters should stay unset")
	}
}

func TestLoadPortForms(t *testing.T) {
	cases := map[string]string{
		"9090":           ":9090",
		":7000":          ":7000",
		"127.0.0.1:8081": "127.0.0.1:8081",
	}
	for in, want := range cases {
		t.Setenv("PORT", in)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("PORT=%q: %v", in, err)
		}
		if cfg.Server.Addr != want {
			t.Fatalf("PORT=%q: expected %q, got %q", in, want, cfg.Server.Addr)
		}
	}

	t.Setenv("PORT", "80 80")
	if _, err := Load(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad port, got %v", err)
	}
}

func TestLoadArkFromLegacyEnv(t *testing.T) {
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "doubao-pro")
	t.Setenv("ARK_TEMPERATURE", "0.3")
	t.Setenv("ARK_MAX_TOKENS", "256")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "ark" || !cfg.AI.Enabled() {
		t.Fatalf("expected ark provider, got %+v", cfg.AI)
	}
	if cfg.AI.Model != "doubao-pro" {
		t.Fatalf("expected model from Model env, got %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature == nil || *cfg.AI.Temperature != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens == nil || *cfg.AI.MaxTokens != 256 {
		t.Fatalf("expected max tokens 256, got %v", cfg.AI.MaxTokens)
	}
}

func TestLoadOpenAIProvider(t *testing.T) {
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("Model", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AI.Provider != "openai" {
		t.Fatalf("expected openai provider, got %q", cfg.AI.Provider)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without dsn": {"STORAGE_DRIVER": "postgres"},
		"unknown storage":      {"STORAGE_DRIVER": "cassandra"},
		"mysql without dsn":    {"PROFILE_DRIVER": "mysql"},
		"ark without key":      {"AI_PROVIDER": "ark", "ARK_API_KEY": "", "Model": ""},
		"zero support weight":  {"GUIDE_SUPPORT_WEIGHT": "0"},
		"huge support weight":  {"GUIDE_SUPPORT_WEIGHT": "1e308"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companion.yaml")
	content := []byte("guide:\n  support_weight: 2.5\n  escalation_window: 8\nstorage:\n  driver: sqlite\n  sqlite_path: /tmp/companion-test.db\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guide.SupportWeight != 2.5 || cfg.Guide.EscalationWindow != 8 {
		t.Fatalf("config file not applied: %+v", cfg.Guide)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", cfg.Storage.Driver)
	}

	t.Setenv("GUIDE_SUPPORT_WEIGHT", "3")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guide.SupportWeight != 3 {
		t.Fatalf("environment should override file, got %v", cfg.Guide.SupportWeight)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := (LogConfig{Level: "debug"}).NewLogger(); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if _, err := (LogConfig{Level: "loud"}).NewLogger(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad level, got %v", err)
	}
}
