package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected default port %s, got %s", DefaultPort, cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected memory cache backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.SearchTTL != time.Hour || cfg.Cache.RecordTTL != 24*time.Hour {
		t.Errorf("unexpected TTL tiers: %v / %v", cfg.Cache.SearchTTL, cfg.Cache.RecordTTL)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("expected sqlite storage, got %s", cfg.Storage.Type)
	}
	if cfg.Import.Status != "draft" || cfg.Import.SKUPrefix != "DSC" {
		t.Errorf("unexpected import defaults: %+v", cfg.Import)
	}
	if !cfg.Import.ImportImages || !cfg.Import.AutoCategorize {
		t.Error("expected image import and auto-categorize enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DISCOGS_TOKEN", "tok-123")
	t.Setenv("CACHE_SEARCH_TTL", "30m")
	t.Setenv("IMPORT_IMAGES", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Discogs.Token != "tok-123" {
		t.Errorf("expected token override, got %q", cfg.Discogs.Token)
	}
	if cfg.Cache.SearchTTL != 30*time.Minute {
		t.Errorf("expected 30m search TTL, got %v", cfg.Cache.SearchTTL)
	}
	if cfg.Import.ImportImages {
		t.Error("expected IMPORT_IMAGES=false to disable image import")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "7070"
  master_key: secret
discogs:
  user_agent: "test-agent/1.0"
import:
  sku_prefix: LDG
  price: "24.99"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("DISCOSYNC_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "7070" || cfg.Server.MasterKey != "secret" {
		t.Errorf("yaml server config not applied: %+v", cfg.Server)
	}
	if cfg.Discogs.UserAgent != "test-agent/1.0" {
		t.Errorf("yaml discogs config not applied: %q", cfg.Discogs.UserAgent)
	}
	if cfg.Import.SKUPrefix != "LDG" || cfg.Import.Price != "24.99" {
		t.Errorf("yaml import config not applied: %+v", cfg.Import)
	}

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("PORT", "6060")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != "6060" {
			t.Errorf("expected env override 6060, got %s", cfg.Server.Port)
		}
	})
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown cache backend", env: map[string]string{"CACHE_BACKEND": "memcached"}},
		{name: "redis without url", env: map[string]string{"CACHE_BACKEND": "redis"}},
		{name: "unknown storage type", env: map[string]string{"STORAGE_TYPE": "mysql"}},
		{name: "postgresql without url", env: map[string]string{"STORAGE_TYPE": "postgresql"}},
		{name: "mongodb without url", env: map[string]string{"STORAGE_TYPE": "mongodb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
