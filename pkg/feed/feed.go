package feed

import (
	"net/url"
	"time"
)

// Channel is the normalized form of one downloaded feed. URL is the
// configured feed URL, which also serves as the channel's cache identity.
type Channel struct {
	URL   *url.URL
	Title string
	Items []*Item
}

// Item is a single entry within a channel. ID is the feed-native unique
// identifier (Atom id, RSS guid) and is empty when the source supplies none.
// URL may be nil for malformed items; such items are dropped before change
// detection. PubDate is nil when the source gives no publication date.
type Item struct {
	ID      string
	URL     *url.URL
	Title   string
	PubDate *time.Time
}
