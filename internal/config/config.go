package config

import (
	"feedwatch-go/pkg/logger"
)

type Config struct {
	Cache  CacheConfig   `mapstructure:"cache"`
	Worker WorkerConfig  `mapstructure:"worker"`
	Logger logger.Config `mapstructure:"logger"`
	Output OutputConfig  `mapstructure:"output"`

	// Feeds may be listed inline or pulled from a standalone YAML file;
	// when both are present the file's feeds are appended after the
	// inline ones.
	Feeds     []FeedConfig `mapstructure:"feeds"`
	FeedsFile string       `mapstructure:"feeds_file"`
}

type FeedConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Disabled bool   `mapstructure:"disabled" yaml:"disabled"`

	// CacheDays is the retention window for this feed's cache entries.
	// 0 means entries never expire.
	CacheDays int `mapstructure:"cache_days" yaml:"cache_days"`
}

type CacheConfig struct {
	Path    string `mapstructure:"path"`
	Backend string `mapstructure:"backend"`
	Backups int    `mapstructure:"backups"`
	Update  bool   `mapstructure:"update"`
}

type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	TimeoutSec int `mapstructure:"timeout_sec"`
}

type OutputConfig struct {
	Sink   string `mapstructure:"sink"`
	Parser string `mapstructure:"parser"`
}

type Manager interface {
	Load(configPath string) (*Config, error)
	Reload() error
	GetConfig() *Config
}
