package cache

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"feedwatch-go/pkg/feed"
	"feedwatch-go/pkg/logger"
)

// Backend persists and restores the flat entry set. Load returns no error
// and an empty slice when nothing has been persisted yet; a top-level failure
// to read an existing source is reported as *CorruptError, and a write
// failure as *PersistError.
type Backend interface {
	Load() (entries []Entry, timeWritten int64, err error)
	Save(entries []Entry, timeWritten int64, totalBackups int) error
}

// Store is the in-memory index over cache entries, shared by all feed
// workers during a run. byID is the persisted primary index; byURL is
// rebuilt from it on every load/prune and never persisted.
//
// A single coarse mutex serializes every read and write. Compound
// read-decide-write sequences take the lock once via Visit, so two workers
// can never both decide the same item is new.
type Store struct {
	mu        sync.Mutex
	byID      map[string]*Entry
	byURL     map[string]*Entry
	retention map[string]Retention

	currentTime int64
	modified    bool
	now         func() int64

	log *logger.Logger
}

// NewStore constructs an empty store. retention maps normalized channel URL
// keys to the owning feed's retention policy; entries whose channel is not
// present are orphans and are discarded by Prune.
func NewStore(retention map[string]Retention) *Store {
	return &Store{
		byID:        make(map[string]*Entry),
		byURL:       make(map[string]*Entry),
		retention:   retention,
		currentTime: time.Now().UnixMilli(),
		now:         func() int64 { return time.Now().UnixMilli() },
		log:         logger.GetLogger().WithField("component", "feed_cache"),
	}
}

// SetCurrentTime overrides the store's notion of "now" used by Prune. Only
// meaningful if called before Load.
func (s *Store) SetCurrentTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTime = t.UnixMilli()
}

// Load populates the store from the backend and prunes the result.
//
// An empty backend is a legitimate first run: the store stays empty and
// unmodified. A *CorruptError is returned to the caller, who should fall
// back to an empty store; any malformed individual record is logged and
// skipped so one bad record never aborts the load.
func (s *Store) Load(backend Backend) error {
	entries, timeWritten, err := backend.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*Entry, len(entries))
	skipped := 0
	for i := range entries {
		entry := entries[i]
		if reason := validateEntry(&entry); reason != "" {
			entryErr := &EntryError{UniqueID: entry.UniqueID, Reason: reason}
			s.log.WithError(entryErr).Warn("Skipping malformed cache entry")
			skipped++
			continue
		}
		s.byID[entry.UniqueID] = &entry
	}
	s.modified = false

	s.log.WithFields(map[string]interface{}{
		"entries":      len(s.byID),
		"skipped":      skipped,
		"time_written": timeWritten,
	}).Debug("Loaded feed cache")

	s.pruneLocked()
	return nil
}

func validateEntry(e *Entry) string {
	if e.UniqueID == "" {
		return "missing unique ID"
	}
	if e.Timestamp < 0 {
		return "negative timestamp"
	}
	if _, err := url.Parse(e.ChannelURL); err != nil || e.ChannelURL == "" {
		return "unparsable channel URL"
	}
	if _, err := url.Parse(e.EntryURL); err != nil || e.EntryURL == "" {
		return "unparsable entry URL"
	}
	return ""
}

// Prune discards entries whose channel no longer matches a configured feed
// and entries past their retention window, clamps future timestamps to the
// store's current time, and rebuilds the URL index. Safe to call repeatedly.
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
}

func (s *Store) pruneLocked() {
	byURL := make(map[string]*Entry, len(s.byID))

	for id, entry := range s.byID {
		policy, configured := s.retention[entry.ChannelURL]
		if !configured {
			s.log.WithFields(map[string]interface{}{
				"id":      id,
				"channel": entry.ChannelURL,
			}).Debug("Entry no longer corresponds to a configured feed, discarding")
			delete(s.byID, id)
			s.modified = true
			continue
		}

		if entry.Timestamp > s.currentTime {
			// Clock skew or an externally edited store. Keep the
			// entry but pull its timestamp back to now.
			s.log.WithField("id", id).Debug("Entry timestamp is in the future, clamping")
			entry.Timestamp = s.currentTime
			s.modified = true
		} else if policy.MaxAgeMillis > 0 && entry.Timestamp+policy.MaxAgeMillis < s.currentTime {
			s.log.WithField("id", id).Debug("Entry expired, discarding")
			delete(s.byID, id)
			s.modified = true
			continue
		}

		byURL[entry.EntryURL] = entry
	}

	s.byURL = byURL
}

// View exposes the store's accessors to a caller already holding the store
// lock. It is only valid for the duration of the Visit callback.
type View struct {
	s *Store
}

// Visit runs fn with the store lock held, so a read-decide-write sequence
// spanning several calls is atomic with respect to other workers. fn must
// not block on I/O.
func (s *Store) Visit(fn func(v *View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&View{s: s})
}

// ContainsID reports whether an entry exists under the given unique ID.
func (v *View) ContainsID(id string) bool {
	_, ok := v.s.byID[id]
	return ok
}

// ContainsURL reports whether an entry exists for the given URL. The URL is
// normalized before lookup.
func (v *View) ContainsURL(u *url.URL) bool {
	_, ok := v.s.byURL[feed.URLKey(u)]
	return ok
}

// EntryByID returns a copy of the entry with the given unique ID.
func (v *View) EntryByID(id string) (Entry, bool) {
	entry, ok := v.s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// EntryByURL returns a copy of the entry for the given URL, which is
// normalized before lookup.
func (v *View) EntryByURL(u *url.URL) (Entry, bool) {
	entry, ok := v.s.byURL[feed.URLKey(u)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// AddOrUpdate inserts or overwrites the entry for entryURL in both indexes
// and marks the store dirty. When uniqueID is empty it is derived from the
// normalized entry URL. The entry's timestamp is the wall-clock time of this
// call, so re-adding an identity refreshes it.
func (v *View) AddOrUpdate(uniqueID string, entryURL *url.URL, pubDate *time.Time, channelURL *url.URL) {
	s := v.s
	urlKey := feed.URLKey(entryURL)
	if uniqueID == "" {
		uniqueID = urlKey
	}

	entry := &Entry{
		UniqueID:   uniqueID,
		ChannelURL: feed.URLKey(channelURL),
		EntryURL:   urlKey,
		Timestamp:  s.now(),
	}
	if pubDate != nil {
		entry.PubDate = pubDate.UnixMilli()
	}

	s.log.WithFields(map[string]interface{}{
		"id":      uniqueID,
		"url":     urlKey,
		"channel": entry.ChannelURL,
	}).Debug("Caching entry")

	s.byID[uniqueID] = entry
	s.byURL[urlKey] = entry
	s.modified = true
}

// ContainsID reports whether an entry exists under the given unique ID.
func (s *Store) ContainsID(id string) bool {
	var ok bool
	s.Visit(func(v *View) { ok = v.ContainsID(id) })
	return ok
}

// ContainsURL reports whether an entry exists for the given URL.
func (s *Store) ContainsURL(u *url.URL) bool {
	var ok bool
	s.Visit(func(v *View) { ok = v.ContainsURL(u) })
	return ok
}

// EntryByID returns a copy of the entry with the given unique ID.
func (s *Store) EntryByID(id string) (Entry, bool) {
	var (
		entry Entry
		ok    bool
	)
	s.Visit(func(v *View) { entry, ok = v.EntryByID(id) })
	return entry, ok
}

// EntryByURL returns a copy of the entry for the given URL.
func (s *Store) EntryByURL(u *url.URL) (Entry, bool) {
	var (
		entry Entry
		ok    bool
	)
	s.Visit(func(v *View) { entry, ok = v.EntryByURL(u) })
	return entry, ok
}

// AddOrUpdate is the single-call form of View.AddOrUpdate.
func (s *Store) AddOrUpdate(uniqueID string, entryURL *url.URL, pubDate *time.Time, channelURL *url.URL) {
	s.Visit(func(v *View) { v.AddOrUpdate(uniqueID, entryURL, pubDate, channelURL) })
}

// Entries returns a snapshot of all entries in no particular order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.byID))
	for _, entry := range s.byID {
		entries = append(entries, *entry)
	}
	return entries
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Modified reports whether the store has unsaved changes.
func (s *Store) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

// Save persists the entry set through the backend, rotating up to
// totalBackups prior versions. It is a no-op when the store has no unsaved
// changes. A failed save leaves the dirty flag set.
func (s *Store) Save(backend Backend, totalBackups int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modified {
		s.log.Debug("Cache not modified, skipping save")
		return nil
	}

	entries := make([]Entry, 0, len(s.byID))
	for _, entry := range s.byID {
		entries = append(entries, *entry)
	}

	if err := backend.Save(entries, s.now(), totalBackups); err != nil {
		var persistErr *PersistError
		if !errors.As(err, &persistErr) {
			err = &PersistError{Source: "cache backend", Err: err}
		}
		return err
	}

	s.log.WithField("entries", len(entries)).Info("Saved feed cache")
	s.modified = false
	return nil
}
