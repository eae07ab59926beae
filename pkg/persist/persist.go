package persist

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"feedwatch-go/pkg/cache"
)

// Backend names are bound to constructors in a static registry so the
// persistence technology can be selected by a configuration string.
var (
	backendsMu sync.RWMutex
	backends   = make(map[string]func(path string) cache.Backend)
)

// Register makes a backend constructor available under the given name.
func Register(name string, constructor func(path string) cache.Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("persist: Register called twice for " + name)
	}
	backends[name] = constructor
}

// New instantiates the backend registered under name, rooted at path.
func New(name, path string) (cache.Backend, error) {
	backendsMu.RLock()
	constructor, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache backend %q (available: %v)", name, Names())
	}
	return constructor(path), nil
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// rotateBackups shifts existing backups of path one slot down, evicting the
// oldest, and moves the current file into the first slot. The caller then
// renames its freshly written temp file onto path, so a crash at any point
// leaves at least one complete copy of the old data on disk.
func rotateBackups(path string, totalBackups int) error {
	if totalBackups <= 0 {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	for i := totalBackups - 1; i >= 1; i-- {
		from := backupName(path, i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, backupName(path, i+1)); err != nil {
			return err
		}
	}
	return os.Rename(path, backupName(path, 1))
}

func backupName(path string, index int) string {
	return fmt.Sprintf("%s.%d", path, index)
}
