package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(env.Options{Prefix: "AGORA_", Environment: map[string]string{}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Port)
	}
	if cfg.DBPath != "data/agora.db" {
		t.Errorf("Expected default DB path, got %q", cfg.DBPath)
	}
	if cfg.FeedParser != ParserLenient {
		t.Errorf("Expected lenient parser, got %q", cfg.FeedParser)
	}
	if cfg.MaxFeedBytes != 5<<20 {
		t.Errorf("Expected 5MiB feed limit, got %d", cfg.MaxFeedBytes)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Errorf("Expected 7 day session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.GetAddress() != ":8080" {
		t.Errorf("Expected address :8080, got %s", cfg.GetAddress())
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(env.Options{Prefix: "AGORA_", Environment: map[string]string{
		"AGORA_PORT":          "9090",
		"AGORA_FEED_PARSER":   "strict",
		"AGORA_FETCH_TIMEOUT": "5s",
		"AGORA_ADMIN_EMAILS":  "root@example.com, Ops@Example.com",
		"AGORA_REDIS_ADDR":    "localhost:6379",
		"AGORA_REDIS_DB":      "2",
	}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.FeedParser != ParserStrict {
		t.Errorf("Expected strict parser, got %q", cfg.FeedParser)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %v", cfg.FetchTimeout)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Errorf("Unexpected redis settings: %q db %d", cfg.RedisAddr, cfg.RedisDB)
	}
	if len(cfg.AdminEmails) != 2 {
		t.Errorf("Expected two admin emails, got %q", cfg.AdminEmails)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad parser", map[string]string{"AGORA_FEED_PARSER": "magic"}},
		{"bad port", map[string]string{"AGORA_PORT": "70000"}},
		{"non numeric port", map[string]string{"AGORA_PORT": "http"}},
		{"zero feed limit", map[string]string{"AGORA_MAX_FEED_BYTES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse(env.Options{Prefix: "AGORA_", Environment: tt.env}); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
