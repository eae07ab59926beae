package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/logger"
)

func init() {
	Register("sqlite", func(path string) cache.Backend { return NewSQLiteBackend(path) })
}

// SQLiteBackend persists the cache in an embedded SQLite database. Saves are
// written to a fresh temp database and renamed into place, mirroring the
// JSON backend's crash-safety, so backup rotation works on whole files here
// too.
type SQLiteBackend struct {
	path string
	log  *logger.Logger
}

func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{
		path: path,
		log:  logger.GetLogger().WithField("component", "sqlite_cache_backend"),
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	channel_url TEXT NOT NULL,
	entry_url   TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	pub_date    INTEGER
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (b *SQLiteBackend) Load() ([]cache.Entry, int64, error) {
	if _, err := os.Stat(b.path); os.IsNotExist(err) {
		b.log.WithField("path", b.path).Debug("No cache database yet, starting fresh")
		return nil, 0, nil
	}

	db, err := sql.Open("sqlite", b.path+"?mode=ro")
	if err != nil {
		return nil, 0, &cache.CorruptError{Source: b.path, Err: err}
	}
	defer db.Close()

	var timeWritten int64
	var raw string
	err = db.QueryRow(`SELECT value FROM meta WHERE key = 'time_written'`).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// tolerated; an old or hand-built database may lack the stamp
	case err != nil:
		return nil, 0, &cache.CorruptError{Source: b.path, Err: err}
	default:
		if timeWritten, err = strconv.ParseInt(raw, 10, 64); err != nil {
			b.log.WithError(err).Warn("Ignoring unparsable time_written stamp")
			timeWritten = 0
		}
	}

	rows, err := db.Query(`SELECT id, channel_url, entry_url, timestamp, pub_date FROM entries`)
	if err != nil {
		return nil, 0, &cache.CorruptError{Source: b.path, Err: err}
	}
	defer rows.Close()

	var entries []cache.Entry
	for rows.Next() {
		var entry cache.Entry
		var pubDate sql.NullInt64
		if err := rows.Scan(&entry.UniqueID, &entry.ChannelURL, &entry.EntryURL, &entry.Timestamp, &pubDate); err != nil {
			b.log.WithError(err).Warn("Skipping unreadable cache row")
			continue
		}
		if pubDate.Valid {
			entry.PubDate = pubDate.Int64
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &cache.CorruptError{Source: b.path, Err: err}
	}

	return entries, timeWritten, nil
}

func (b *SQLiteBackend) Save(entries []cache.Entry, timeWritten int64, totalBackups int) error {
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &cache.PersistError{Source: b.path, Err: err}
		}
	}

	tmp := b.path + ".tmp"
	os.Remove(tmp)

	if err := b.writeDatabase(tmp, entries, timeWritten); err != nil {
		os.Remove(tmp)
		return &cache.PersistError{Source: b.path, Err: err}
	}

	if err := rotateBackups(b.path, totalBackups); err != nil {
		os.Remove(tmp)
		return &cache.PersistError{Source: b.path, Err: fmt.Errorf("rotating backups: %w", err)}
	}

	if err := os.Rename(tmp, b.path); err != nil {
		return &cache.PersistError{Source: b.path, Err: err}
	}

	b.log.WithFields(map[string]interface{}{
		"path":    b.path,
		"entries": len(entries),
	}).Debug("Wrote cache database")

	return nil
}

func (b *SQLiteBackend) writeDatabase(path string, entries []cache.Entry, timeWritten int64) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO entries (id, channel_url, entry_url, timestamp, pub_date) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		var pubDate interface{}
		if entry.HasPubDate() {
			pubDate = entry.PubDate
		}
		if _, err := stmt.Exec(entry.UniqueID, entry.ChannelURL, entry.EntryURL, entry.Timestamp, pubDate); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('time_written', ?)`,
		strconv.FormatInt(timeWritten, 10)); err != nil {
		return err
	}

	return tx.Commit()
}
