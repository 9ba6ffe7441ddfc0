// Package config reads node settings from the environment and an optional
// YAML policy file. Environment values win over the policy file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/park285/flashchain-chess/internal/obslog"
	yaml "gopkg.in/yaml.v3"
)

const (
	RulesOwnership = "ownership"
	RulesStandard  = "standard"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	GameTimeout time.Duration
	Rules       string
	// EventTTL expires a game's event log and applied-action set after its
	// last commit. Game snapshots never expire. Zero keeps everything.
	EventTTL time.Duration

	APIAddr string
	WSAddr  string

	IndexerURL        string
	IndexerToken      string
	IndexerMaxRetries int

	// AgentWallet seats the automated opponent; empty disables it.
	AgentWallet   string
	AgentDelay    time.Duration
	AgentAutoJoin bool

	MessagesDir string
	PolicyFile  string

	Log obslog.Options
}

// Policy is the YAML file named by CHESS_POLICY_FILE.
type Policy struct {
	Timeout  string `yaml:"timeout"`
	Rules    string `yaml:"rules"`
	EventTTL string `yaml:"event_ttl"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		GameTimeout:       24 * time.Hour,
		Rules:             RulesStandard,
		APIAddr:           ":8080",
		WSAddr:            ":8081",
		IndexerMaxRetries: 3,
		AgentDelay:        1500 * time.Millisecond,
		Log:               obslog.DefaultOptions(),
	}

	cfg.PolicyFile = strings.TrimSpace(os.Getenv("CHESS_POLICY_FILE"))
	if cfg.PolicyFile != "" {
		p, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyPolicy(p); err != nil {
			return nil, fmt.Errorf("policy %s: %w", cfg.PolicyFile, err)
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.IndexerURL = strings.TrimSpace(os.Getenv("INDEXER_URL"))
	cfg.IndexerToken = strings.TrimSpace(os.Getenv("INDEXER_TOKEN"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("GAME_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("GAME_TIMEOUT: invalid duration %q", v)
		}
		cfg.GameTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("CHESS_RULES")); v != "" {
		cfg.Rules = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("API_ADDR")); v != "" {
		cfg.APIAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("INDEXER_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.IndexerMaxRetries = n
		}
	}

	cfg.AgentWallet = strings.TrimSpace(os.Getenv("AGENT_WALLET"))
	if v := strings.TrimSpace(os.Getenv("AGENT_DELAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("AGENT_DELAY: invalid duration %q", v)
		}
		cfg.AgentDelay = d
	}
	cfg.AgentAutoJoin = boolEnv("AGENT_AUTO_JOIN", cfg.AgentAutoJoin)

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FILE")); v != "" {
		cfg.Log.File = v
	}
	cfg.Log.Console = boolEnv("LOG_TO_CONSOLE", cfg.Log.Console)
	cfg.Log.ToFile = boolEnv("LOG_TO_FILE", cfg.Log.ToFile)
	cfg.Log.Caller = boolEnv("LOG_CALLER", cfg.Log.Caller)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.Rules != RulesOwnership && cfg.Rules != RulesStandard {
		return nil, fmt.Errorf("CHESS_RULES must be %s or %s, got %q", RulesOwnership, RulesStandard, cfg.Rules)
	}
	return cfg, nil
}

// LoadPolicy parses a policy file.
func LoadPolicy(path string) (*Policy, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return &p, nil
}

func (c *AppConfig) applyPolicy(p *Policy) error {
	if p == nil {
		return nil
	}
	if v := strings.TrimSpace(p.Timeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("timeout: invalid duration %q", v)
		}
		c.GameTimeout = d
	}
	if v := strings.TrimSpace(p.Rules); v != "" {
		c.Rules = strings.ToLower(v)
	}
	if v := strings.TrimSpace(p.EventTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("event_ttl: invalid duration %q", v)
		}
		c.EventTTL = d
	}
	return nil
}

func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
