package cache

import "time"

// Entry is one durable cache record: the identity of a feed item (or of a
// whole feed) plus the wall-clock time it was last confirmed seen.
//
// UniqueID is never empty. When a feed item carries no native identifier the
// ID is derived from the normalized entry URL, so re-observing the same URL
// always maps to the same identity. ChannelURL and EntryURL are stored in
// normalized lookup-key form. PubDate is 0 when the source reported no
// publication date.
type Entry struct {
	UniqueID   string `json:"id"`
	ChannelURL string `json:"channel_url"`
	EntryURL   string `json:"entry_url"`
	Timestamp  int64  `json:"timestamp"`
	PubDate    int64  `json:"pub_date,omitempty"`
}

// HasPubDate reports whether the source supplied a publication date.
func (e Entry) HasPubDate() bool { return e.PubDate != 0 }

// PubTime returns the publication date as a time.Time. Only meaningful when
// HasPubDate is true.
func (e Entry) PubTime() time.Time { return time.UnixMilli(e.PubDate) }

// Retention is the per-feed policy controlling how long an entry may stay
// cached. MaxAgeMillis == 0 means entries for the feed never expire.
type Retention struct {
	MaxAgeMillis int64
}

// NoLimit is the retention policy that never expires entries.
var NoLimit = Retention{MaxAgeMillis: 0}

// RetentionFor converts a day count from configuration into a policy.
// days <= 0 selects NoLimit.
func RetentionFor(days int) Retention {
	if days <= 0 {
		return NoLimit
	}
	return Retention{MaxAgeMillis: int64(days) * 24 * int64(time.Hour/time.Millisecond)}
}
