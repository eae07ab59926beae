package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"feedwatch-go/pkg/cache"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "feedwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
feeds:
  - url: https://example.com/feed.xml
  - url: https://other.example.org/rss
    cache_days: 30
  - url: https://example.com/paused.xml
    disabled: true
cache:
  path: my-cache.json
  backups: 2
worker:
  max_workers: 8
`

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfig)

	cfg, err := NewManager().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Feeds) != 3 {
		t.Fatalf("got %d feeds", len(cfg.Feeds))
	}
	if cfg.Feeds[1].CacheDays != 30 {
		t.Errorf("cache_days = %d", cfg.Feeds[1].CacheDays)
	}
	if !cfg.Feeds[2].Disabled {
		t.Error("third feed not disabled")
	}
	if cfg.Cache.Path != "my-cache.json" || cfg.Cache.Backups != 2 {
		t.Errorf("cache config = %+v", cfg.Cache)
	}
	if cfg.Worker.MaxWorkers != 8 {
		t.Errorf("max_workers = %d", cfg.Worker.MaxWorkers)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "feeds:\n  - url: https://example.com/feed.xml\n")

	cfg, err := NewManager().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Cache.Path != "feedwatch-cache.json" {
		t.Errorf("default cache path = %q", cfg.Cache.Path)
	}
	if cfg.Cache.Backend != "json" {
		t.Errorf("default backend = %q", cfg.Cache.Backend)
	}
	if !cfg.Cache.Update {
		t.Error("cache updates must default to on")
	}
	if cfg.Worker.MaxWorkers != 4 || cfg.Worker.TimeoutSec != 30 {
		t.Errorf("worker defaults = %+v", cfg.Worker)
	}
	if cfg.Output.Sink != "text" || cfg.Output.Parser != "gofeed" {
		t.Errorf("output defaults = %+v", cfg.Output)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("default log level = %q", cfg.Logger.Level)
	}
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no feeds", "cache:\n  path: x.json\n", "no feeds"},
		{"empty url", "feeds:\n  - url: \"\"\n", "has no URL"},
		{"relative url", "feeds:\n  - url: not-a-url\n", "invalid URL"},
		{"negative cache days", "feeds:\n  - url: https://example.com/f\n    cache_days: -1\n", "cache_days"},
		{"all disabled", "feeds:\n  - url: https://example.com/f\n    disabled: true\n", "disabled"},
		{"zero workers", "feeds:\n  - url: https://example.com/f\nworker:\n  max_workers: 0\n", "max_workers"},
		{"negative backups", "feeds:\n  - url: https://example.com/f\ncache:\n  backups: -2\n", "backups"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.content)
			_, err := NewManager().Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewManager().Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadFeedsFile(t *testing.T) {
	dir := t.TempDir()
	feedsList := `
- url: https://example.com/a.xml
- url: https://example.com/b.xml
  cache_days: 7
`
	if err := os.WriteFile(filepath.Join(dir, "feeds.yaml"), []byte(feedsList), 0644); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, `
feeds:
  - url: https://example.com/inline.xml
feeds_file: feeds.yaml
`)

	cfg, err := NewManager().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Feeds) != 3 {
		t.Fatalf("inline + file feeds should merge, got %d", len(cfg.Feeds))
	}
	if cfg.Feeds[0].URL != "https://example.com/inline.xml" {
		t.Error("inline feeds must come first")
	}
	if cfg.Feeds[2].CacheDays != 7 {
		t.Errorf("feeds file cache_days lost: %+v", cfg.Feeds[2])
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "feeds:\n  - url: https://example.com/a.xml\n")

	m := NewManager()
	if _, err := m.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeConfig(t, dir, "feeds:\n  - url: https://example.com/a.xml\n  - url: https://example.com/b.xml\n")
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := len(m.GetConfig().Feeds); got != 2 {
		t.Errorf("after reload: %d feeds, want 2", got)
	}
}

func TestReloadBeforeLoad(t *testing.T) {
	if err := NewManager().Reload(); err == nil {
		t.Error("Reload before Load must error")
	}
}

func TestEnabledFeeds(t *testing.T) {
	cfg := &Config{Feeds: []FeedConfig{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b", Disabled: true},
		{URL: "https://example.com/c"},
	}}

	enabled := cfg.EnabledFeeds()
	if len(enabled) != 2 {
		t.Fatalf("got %d enabled feeds", len(enabled))
	}
	if enabled[0].URL != "https://example.com/a" || enabled[1].URL != "https://example.com/c" {
		t.Errorf("wrong feeds or order: %+v", enabled)
	}
}

func TestRetentionMapIncludesDisabledFeeds(t *testing.T) {
	cfg := &Config{Feeds: []FeedConfig{
		{URL: "HTTPS://Example.COM/a.xml", CacheDays: 10},
		{URL: "https://example.com/b.xml", Disabled: true},
	}}

	policies, err := cfg.RetentionMap()
	if err != nil {
		t.Fatalf("RetentionMap: %v", err)
	}

	a, ok := policies["https://example.com/a.xml"]
	if !ok {
		t.Fatal("policies must be keyed by normalized URL")
	}
	if a == cache.NoLimit {
		t.Error("cache_days 10 must produce a bounded policy")
	}

	if _, ok := policies["https://example.com/b.xml"]; !ok {
		t.Error("disabled feeds must keep a retention policy")
	}
}
