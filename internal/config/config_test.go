package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"CHAT_DB", "API_ADDR", "ADMIN_ADDR", "ALLOWED_ORIGINS", "SHUTDOWN_TIMEOUT", "BROADCAST_DEDUP_TTL", "CONNECTION_BUFFER"} {
		if value, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, value) })
			os.Unsetenv(key)
		}
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBFile != "chatrelay.db" || cfg.APIAddr != ":8080" || cfg.AdminAddr != "localhost:8081" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 5*time.Second || cfg.BroadcastDedupTTL != time.Minute || cfg.ConnectionBuffer != 64 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("expected dev origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CHAT_DB", "/tmp/x.db")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CONNECTION_BUFFER", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBFile != "/tmp/x.db" || cfg.ConnectionBuffer != 8 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("API_ADDR=:9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	t.Setenv("API_ADDR", "")
	os.Unsetenv("API_ADDR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIAddr != ":9999" {
		t.Errorf("expected addr from env file, got %s", cfg.APIAddr)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file must be ignored, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{DBFile: "a.db", ShutdownTimeout: time.Second, BroadcastDedupTTL: time.Second, ConnectionBuffer: 1}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"Empty DB", func(c *Config) { c.DBFile = " " }, true},
		{"Zero timeout", func(c *Config) { c.ShutdownTimeout = 0 }, true},
		{"Negative TTL", func(c *Config) { c.BroadcastDedupTTL = -time.Second }, true},
		{"Zero buffer", func(c *Config) { c.ConnectionBuffer = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
