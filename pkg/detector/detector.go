// Package detector decides which parts of a freshly downloaded feed are new
// relative to the feed cache: whether the feed body itself is worth parsing,
// and which individual items survive into the output.
package detector

import (
	"net/url"
	"time"

	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/feed"
	"feedwatch-go/pkg/logger"
)

// Lookup is the read-only slice of the cache the per-item decision needs.
// Both *cache.Store and *cache.View satisfy it.
type Lookup interface {
	ContainsID(id string) bool
	EntryByURL(u *url.URL) (cache.Entry, bool)
}

// ConditionalFetchHint returns the last-seen timestamp (ms epoch) recorded
// for the feed's own URL, or 0 when the feed has never been seen. The fetch
// layer sends it as an If-Modified-Since precondition; the server decides
// whether to return a body.
func ConditionalFetchHint(feedURL *url.URL, store *cache.Store) int64 {
	entry, ok := store.EntryByURL(feedURL)
	if !ok {
		return 0
	}
	return entry.Timestamp
}

// FeedHasChanged reports whether the feed body may contain new data, given
// the cached last-seen timestamp and the server's Last-Modified value (both
// ms epoch, 0 meaning unknown). Unknown on either side forces a "changed"
// verdict; only a server timestamp no newer than the last-seen one proves
// the feed unchanged.
func FeedHasChanged(lastSeen, serverLastModified int64) bool {
	if lastSeen == 0 {
		return true
	}
	if serverLastModified == 0 {
		return true
	}
	return lastSeen < serverLastModified
}

// IsItemNew reports whether a parsed item should be emitted. The item's URL
// must already be normalized.
//
// An item with a native unique ID is judged by ID presence alone; feeds that
// rotate URLs but keep stable IDs (or vice versa) are handled correctly that
// way. An item identified only by URL falls back to publication-date
// comparison, and when either date is missing the item is treated as old:
// the URL is already cached and there is no signal proving the content
// changed.
func IsItemNew(item *feed.Item, lk Lookup) bool {
	if item.ID != "" {
		return !lk.ContainsID(item.ID)
	}

	cached, ok := lk.EntryByURL(item.URL)
	if !ok {
		return true
	}
	if !cached.HasPubDate() || item.PubDate == nil {
		return false
	}
	return item.PubDate.After(cached.PubTime())
}

// ProcessChannelItems filters a parsed channel down to its new items and
// records them, plus the channel's own URL, in the cache. Items with no
// resolvable URL are dropped before any decision is made. The channel's item
// list is replaced with the filtered set, which is also returned; an empty
// result means "nothing new this run", which is distinct from a fetch or
// parse failure.
//
// serverLastModified, when non-nil, is stored as the publication date of the
// whole-feed entry.
func ProcessChannelItems(channel *feed.Channel, serverLastModified *time.Time, store *cache.Store) []*feed.Item {
	log := logger.GetLogger().WithField("component", "change_detector")

	candidates := make([]*feed.Item, 0, len(channel.Items))
	for _, item := range channel.Items {
		if item.URL == nil {
			log.WithField("channel", channel.URL.String()).Debug("Skipping item with no URL")
			continue
		}
		item.URL = feed.NormalizeURL(item.URL)
		candidates = append(candidates, item)
	}

	// The whole filter-and-record pass runs under one store lock so no
	// sibling worker can decide the same item is new in parallel.
	var kept []*feed.Item
	store.Visit(func(v *cache.View) {
		for _, item := range candidates {
			if !IsItemNew(item, v) {
				log.WithField("url", item.URL.String()).Debug("Discarding old, cached item")
				continue
			}
			kept = append(kept, item)
			v.AddOrUpdate(item.ID, item.URL, item.PubDate, channel.URL)
		}
		v.AddOrUpdate("", channel.URL, serverLastModified, channel.URL)
	})

	log.WithFields(map[string]interface{}{
		"channel": channel.URL.String(),
		"total":   len(channel.Items),
		"new":     len(kept),
	}).Debug("Change detection completed")

	channel.Items = kept
	return kept
}
