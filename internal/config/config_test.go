package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REDIS_URL", "DATABASE_URL", "GAME_TIMEOUT", "CHESS_RULES", "API_ADDR", "WS_ADDR",
		"INDEXER_URL", "INDEXER_TOKEN", "INDEXER_MAX_RETRIES", "MESSAGES_DIR", "CHESS_POLICY_FILE",
		"AGENT_WALLET", "AGENT_DELAY", "AGENT_AUTO_JOIN",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "LOG_TO_CONSOLE", "LOG_TO_FILE", "LOG_CALLER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GameTimeout != 24*time.Hour || cfg.Rules != RulesStandard || cfg.EventTTL != 0 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.APIAddr != ":8080" || cfg.WSAddr != ":8081" || !cfg.Log.Console || cfg.Log.ToFile {
		t.Fatalf("unexpected listener/log defaults %+v", cfg)
	}
}

func TestLoadAgentSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentWallet != "" || cfg.AgentDelay != 1500*time.Millisecond || cfg.AgentAutoJoin {
		t.Fatalf("unexpected agent defaults %+v", cfg)
	}
	t.Setenv("AGENT_WALLET", " AI-AGENT-001 ")
	t.Setenv("AGENT_DELAY", "250ms")
	t.Setenv("AGENT_AUTO_JOIN", "true")
	if cfg, err = Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentWallet != "AI-AGENT-001" || cfg.AgentDelay != 250*time.Millisecond || !cfg.AgentAutoJoin {
		t.Fatalf("agent env not applied %+v", cfg)
	}
	t.Setenv("AGENT_DELAY", "later")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "AGENT_DELAY") {
		t.Fatalf("expected AGENT_DELAY error, got %v", err)
	}
}

func TestLoadRequiresRedis(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL error, got %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GAME_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected GAME_TIMEOUT error")
	}
	t.Setenv("GAME_TIMEOUT", "")
	t.Setenv("CHESS_RULES", "fischer")
	if _, err := Load(); err == nil {
		t.Fatalf("expected CHESS_RULES error")
	}
}

func TestPolicyFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	body := "timeout: 90m\nrules: Ownership\nevent_ttl: 168h\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CHESS_POLICY_FILE", path)
	t.Setenv("GAME_TIMEOUT", "2h")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GameTimeout != 2*time.Hour {
		t.Fatalf("env must win over policy, got %v", cfg.GameTimeout)
	}
	if cfg.Rules != RulesOwnership || cfg.EventTTL != 168*time.Hour {
		t.Fatalf("policy not applied: %+v", cfg)
	}
	if !cfg.Log.ToFile || cfg.Log.Format != "json" {
		t.Fatalf("log options not applied: %+v", cfg.Log)
	}
}

func TestPolicyFileErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CHESS_POLICY_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing policy error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("timeout: forever\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHESS_POLICY_FILE", path)
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout parse error, got %v", err)
	}
}
