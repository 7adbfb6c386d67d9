package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT",
		"STORE_ID", "LOCAL_DB_PATH", "STORE_BACKEND_URL",
		"STORE_CLIENT_ID", "STORE_API_KEY", "STORE_NAME",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_ID", "acme")
	t.Setenv("STORE_BACKEND_URL", "https://shop.example.com/")
	t.Setenv("STORE_CLIENT_ID", "web-client-1")
	t.Setenv("LOCAL_DB_PATH", "/tmp/cartsync-test.db")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.StoreID != "acme" {
		t.Errorf("StoreID = %q, want acme", cfg.StoreID)
	}
	if cfg.LocalDBPath != "/tmp/cartsync-test.db" {
		t.Errorf("LocalDBPath = %q", cfg.LocalDBPath)
	}
	if got := cfg.BackendURL(); got != "https://shop.example.com" {
		t.Errorf("BackendURL() = %q, want trailing slash stripped", got)
	}
}

func TestLoadRequiresStoreID(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND_URL", "https://shop.example.com")
	t.Setenv("STORE_CLIENT_ID", "web-client-1")

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("Load() succeeded without STORE_ID")
	}
}

func TestLoadValidatesBackendURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://shop.example.com", false},
		{"http", "http://localhost:8080", false},
		{"missing", "", true},
		{"bad scheme", "ftp://shop.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STORE_ID", "acme")
			t.Setenv("STORE_CLIENT_ID", "web-client-1")
			if tt.url != "" {
				t.Setenv("STORE_BACKEND_URL", tt.url)
			}

			_, err := Load(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"environment": "development",
		"log_level": "debug",
		"store_id": "acme",
		"store": {
			"backend_url": "https://shop.example.com",
			"client_id": "web-client-1",
			"api_key": "k-123",
			"store_name": "Acme Outfitters"
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Store.ClientID != "web-client-1" {
		t.Errorf("ClientID = %q", cfg.Store.ClientID)
	}
	if cfg.Store.StoreName != "Acme Outfitters" {
		t.Errorf("StoreName = %q", cfg.Store.StoreName)
	}
	if cfg.LocalDBPath == "" {
		t.Error("LocalDBPath not defaulted")
	}
}

func TestLoadFromFileRejectsMissingFields(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"store": {"backend_url": "https://shop.example.com"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	_, err := Load(context.Background())
	if err == nil {
		t.Fatal("Load() succeeded without store_id")
	}
	if !strings.Contains(err.Error(), "store_id") {
		t.Errorf("error = %v, want mention of store_id", err)
	}
}

func TestProductionRequiresGCPProject(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("STORE_ID", "acme")

	if _, err := Load(context.Background()); err == nil {
		t.Fatal("Load() succeeded without GCP_PROJECT in production")
	}
}
