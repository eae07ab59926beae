package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/logger"
)

func init() {
	Register("json", func(path string) cache.Backend { return NewJSONBackend(path) })
}

// JSONBackend persists the cache as one pretty-printed JSON document: a root
// record with a time-written stamp and a flat entry list sorted by ID, so
// successive saves diff cleanly. Unknown fields in a loaded file are ignored
// for forward compatibility.
type JSONBackend struct {
	path string
	log  *logger.Logger
}

func NewJSONBackend(path string) *JSONBackend {
	return &JSONBackend{
		path: path,
		log:  logger.GetLogger().WithField("component", "json_cache_backend"),
	}
}

type jsonRoot struct {
	TimeWritten int64             `json:"time_written"`
	Entries     []json.RawMessage `json:"entries"`
}

type jsonSaveRoot struct {
	TimeWritten int64         `json:"time_written"`
	Entries     []cache.Entry `json:"entries"`
}

func (b *JSONBackend) Load() ([]cache.Entry, int64, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			b.log.WithField("path", b.path).Debug("No cache file yet, starting fresh")
			return nil, 0, nil
		}
		return nil, 0, &cache.CorruptError{Source: b.path, Err: err}
	}

	var root jsonRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, 0, &cache.CorruptError{Source: b.path, Err: err}
	}

	// Entries are decoded one at a time so a single malformed record
	// cannot take down the whole load.
	entries := make([]cache.Entry, 0, len(root.Entries))
	for _, raw := range root.Entries {
		var entry cache.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			b.log.WithError(err).Warn("Skipping undecodable cache record")
			continue
		}
		entries = append(entries, entry)
	}

	return entries, root.TimeWritten, nil
}

func (b *JSONBackend) Save(entries []cache.Entry, timeWritten int64, totalBackups int) error {
	sorted := make([]cache.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UniqueID < sorted[j].UniqueID })

	data, err := json.MarshalIndent(jsonSaveRoot{
		TimeWritten: timeWritten,
		Entries:     sorted,
	}, "", "  ")
	if err != nil {
		return &cache.PersistError{Source: b.path, Err: err}
	}
	data = append(data, '\n')

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &cache.PersistError{Source: b.path, Err: err}
		}
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &cache.PersistError{Source: b.path, Err: err}
	}

	if err := rotateBackups(b.path, totalBackups); err != nil {
		return &cache.PersistError{Source: b.path, Err: fmt.Errorf("rotating backups: %w", err)}
	}

	if err := os.Rename(tmp, b.path); err != nil {
		return &cache.PersistError{Source: b.path, Err: err}
	}

	b.log.WithFields(map[string]interface{}{
		"path":    b.path,
		"entries": len(sorted),
	}).Debug("Wrote cache file")

	return nil
}
