package config

import (
	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/feed"
)

// RetentionMap builds the per-feed retention policies keyed by normalized
// channel URL, covering every configured feed. Disabled feeds are included:
// their entries survive pruning, they just are not downloaded. Only feeds
// removed from the configuration entirely orphan their cache entries.
func (c *Config) RetentionMap() (map[string]cache.Retention, error) {
	policies := make(map[string]cache.Retention, len(c.Feeds))
	for _, feedCfg := range c.Feeds {
		u, err := feed.ParseURL(feedCfg.URL)
		if err != nil {
			return nil, err
		}
		policies[feed.URLKey(u)] = cache.RetentionFor(feedCfg.CacheDays)
	}
	return policies, nil
}
