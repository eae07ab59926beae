// Package output routes filtered new items to their destinations. Only the
// collaborator surface lives here; rendering and delivery mechanisms stay
// behind the Sink interface.
package output

import (
	"fmt"
	"sort"
	"sync"

	"feedwatch-go/pkg/feed"
)

// Sink consumes one feed's new items. It is called once per feed in
// configuration order; an empty item slice is never passed.
type Sink interface {
	Emit(channel *feed.Channel, items []*feed.Item) error
	Flush() error
}

var (
	sinksMu sync.RWMutex
	sinks   = make(map[string]func() Sink)
)

// RegisterSink makes a sink constructor available under the given name.
func RegisterSink(name string, constructor func() Sink) {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	if _, dup := sinks[name]; dup {
		panic("output: RegisterSink called twice for " + name)
	}
	sinks[name] = constructor
}

// NewSink instantiates the sink registered under name.
func NewSink(name string) (Sink, error) {
	sinksMu.RLock()
	constructor, ok := sinks[name]
	sinksMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown output sink %q (available: %v)", name, SinkNames())
	}
	return constructor(), nil
}

// SinkNames returns the registered sink names in sorted order.
func SinkNames() []string {
	sinksMu.RLock()
	defer sinksMu.RUnlock()
	names := make([]string, 0, len(sinks))
	for name := range sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
