package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listenAddr: "0.0.0.0:9000"
sessionTTL: 10m
downstream:
  baseURL: "https://store.example.com"
  timeout: 2s
rateLimit:
  rps: 2
  burst: 4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Load(path)
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("listenAddr not merged: %q", cfg.ListenAddr)
	}
	if cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("sessionTTL not merged: %v", cfg.SessionTTL)
	}
	if cfg.Downstream.BaseURL != "https://store.example.com" || cfg.Downstream.Timeout != 2*time.Second {
		t.Fatalf("downstream not merged: %+v", cfg.Downstream)
	}
	if cfg.RateLimit.RPS != 2 || cfg.RateLimit.Burst != 4 {
		t.Fatalf("rateLimit not merged: %+v", cfg.RateLimit)
	}
	// Untouched fields keep their defaults.
	if cfg.PrivateKeyPath != "keys/private.pem" {
		t.Fatalf("default lost: %q", cfg.PrivateKeyPath)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	def := Default()
	if cfg.ListenAddr != def.ListenAddr || cfg.SessionTTL != def.SessionTTL {
		t.Fatalf("missing file must fall back to defaults: %+v", cfg)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("LIFETAP_LISTEN_ADDR", "127.0.0.1:7777")
	t.Setenv("LIFETAP_SESSION_TTL", "5m")
	t.Setenv("LIFETAP_RATE_LIMIT_BURST", "99")
	t.Setenv("LIFETAP_APP_SECRET", "from-env")

	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if cfg.ListenAddr != "127.0.0.1:7777" {
		t.Fatalf("env listen addr not applied: %q", cfg.ListenAddr)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Fatalf("env ttl not applied: %v", cfg.SessionTTL)
	}
	if cfg.RateLimit.Burst != 99 {
		t.Fatalf("env burst not applied: %d", cfg.RateLimit.Burst)
	}
	if cfg.AppSecret != "from-env" {
		t.Fatalf("env secret not applied")
	}
}

func TestBadEnvValuesAreIgnored(t *testing.T) {
	t.Setenv("LIFETAP_SESSION_TTL", "tomorrow")
	t.Setenv("LIFETAP_RATE_LIMIT_RPS", "lots")

	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	def := Default()
	if cfg.SessionTTL != def.SessionTTL || cfg.RateLimit.RPS != def.RateLimit.RPS {
		t.Fatalf("unparseable env values must be ignored: %+v", cfg)
	}
}
