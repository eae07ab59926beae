package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type manager struct {
	mu     sync.RWMutex
	config *Config
	viper  *viper.Viper
}

func NewManager() Manager {
	return &manager{
		viper: viper.New(),
	}
}

func (m *manager) Load(configPath string) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setupViper(configPath)

	if err := m.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config, err := m.unmarshalAndValidate(configPath)
	if err != nil {
		return nil, err
	}

	m.config = config
	return config, nil
}

func (m *manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return fmt.Errorf("config not loaded")
	}

	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	config, err := m.unmarshalAndValidate(m.viper.ConfigFileUsed())
	if err != nil {
		return err
	}

	m.config = config
	return nil
}

func (m *manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *manager) setupViper(configPath string) {
	m.viper.SetConfigFile(configPath)

	m.viper.SetEnvPrefix("FEEDWATCH")
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	m.viper.SetDefault("cache.path", "feedwatch-cache.json")
	m.viper.SetDefault("cache.backend", "json")
	m.viper.SetDefault("cache.backups", 0)
	m.viper.SetDefault("cache.update", true)
	m.viper.SetDefault("worker.max_workers", 4)
	m.viper.SetDefault("worker.timeout_sec", 30)
	m.viper.SetDefault("output.sink", "text")
	m.viper.SetDefault("output.parser", "gofeed")
	m.viper.SetDefault("logger.level", "info")
	m.viper.SetDefault("logger.format", "console")
}

func (m *manager) unmarshalAndValidate(configPath string) (*Config, error) {
	var config Config
	if err := m.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.FeedsFile != "" {
		path := config.FeedsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(configPath), path)
		}
		feeds, err := loadFeedsFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load feeds file: %w", err)
		}
		config.Feeds = append(config.Feeds, feeds...)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// loadFeedsFile reads a standalone YAML feed list: a plain sequence of feed
// entries in the same shape as the inline feeds section.
func loadFeedsFile(path string) ([]FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var feeds []FeedConfig
	if err := yaml.Unmarshal(data, &feeds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return feeds, nil
}

func validateConfig(config *Config) error {
	if len(config.Feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}

	enabled := 0
	for i, feedCfg := range config.Feeds {
		if feedCfg.URL == "" {
			return fmt.Errorf("feed %d has no URL", i)
		}
		u, err := url.Parse(feedCfg.URL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("feed %d has invalid URL %q", i, feedCfg.URL)
		}
		if feedCfg.CacheDays < 0 {
			return fmt.Errorf("feed %d: cache_days must not be negative", i)
		}
		if !feedCfg.Disabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("all configured feeds are disabled")
	}

	if config.Worker.MaxWorkers <= 0 {
		return fmt.Errorf("worker.max_workers must be positive")
	}
	if config.Cache.Backups < 0 {
		return fmt.Errorf("cache.backups must not be negative")
	}
	if config.Cache.Path == "" {
		return fmt.Errorf("cache.path cannot be empty")
	}

	return nil
}

// EnabledFeeds returns the feeds that are not disabled, in configuration
// order.
func (c *Config) EnabledFeeds() []FeedConfig {
	feeds := make([]FeedConfig, 0, len(c.Feeds))
	for _, feedCfg := range c.Feeds {
		if !feedCfg.Disabled {
			feeds = append(feeds, feedCfg)
		}
	}
	return feeds
}
