package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveLoadRoundTripKeepsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store = DefaultStoreForBackend("postgres")
	cfg.Display.Peaks.T = false

	if err := cfg.Save(root); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !Exists(root) {
		t.Fatal("config file should exist after Save")
	}

	got, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Store.Backend != "postgres" || got.Store.Postgres.DSN != DefaultPostgres {
		t.Fatalf("store = %+v", got.Store)
	}
	if got.Display.Peaks.T || !got.Display.Peaks.P {
		t.Fatalf("peaks = %+v", got.Display.Peaks)
	}
	if got.Watch.Debounce != 300*time.Millisecond {
		t.Fatalf("debounce = %v", got.Watch.Debounce)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(GetConfigDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "editing:\n  enabled: false\nmcp:\n  format: toon\n"
	if err := os.WriteFile(GetConfigPath(root), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Editing.Enabled || cfg.MCP.Format != "toon" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Store.Backend != "gob" || cfg.Display.Palette.Anomaly != "red" {
		t.Fatalf("defaults lost: store=%+v palette=%+v", cfg.Store, cfg.Display.Palette)
	}
	if got := cfg.GetOverridesPath(root); got != filepath.Join(root, ConfigDir, OverridesFile) {
		t.Fatalf("overrides path = %s", got)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"bad backend", func(c *Config) { c.Store.Backend = "qdrant" }, "unknown storage backend"},
		{"postgres without dsn", func(c *Config) { c.Store = StoreConfig{Backend: "postgres"} }, "dsn is required"},
		{"bad format", func(c *Config) { c.MCP.Format = "xml" }, "unknown mcp format"},
		{"negative window", func(c *Config) { c.Display.MinWindow = -1 }, "must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestFindProjectRootWalksUp(t *testing.T) {
	root := t.TempDir()
	if err := DefaultConfig().Save(root); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}
	want, _ := filepath.EvalSymlinks(root)
	if resolved, _ := filepath.EvalSymlinks(got); resolved != want {
		t.Fatalf("FindProjectRoot() = %s, want %s", got, root)
	}
}
