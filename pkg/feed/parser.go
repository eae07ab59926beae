package feed

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Parser converts a raw feed body into the normalized channel model.
type Parser interface {
	Parse(body []byte, feedURL *url.URL) (*Channel, error)
}

// ParseError wraps a parser failure with the identity of the feed that
// produced it.
type ParseError struct {
	FeedURL string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing feed %s: %v", e.FeedURL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	parsersMu sync.RWMutex
	parsers   = make(map[string]func() Parser)
)

// RegisterParser makes a parser constructor available under the given name.
// Registration of a duplicate name panics; parser names are wired at init
// time and a collision is a programming error.
func RegisterParser(name string, constructor func() Parser) {
	parsersMu.Lock()
	defer parsersMu.Unlock()
	if _, dup := parsers[name]; dup {
		panic("feed: RegisterParser called twice for " + name)
	}
	parsers[name] = constructor
}

// NewParser instantiates the parser registered under name.
func NewParser(name string) (Parser, error) {
	parsersMu.RLock()
	constructor, ok := parsers[name]
	parsersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown feed parser %q (available: %v)", name, ParserNames())
	}
	return constructor(), nil
}

// ParserNames returns the registered parser names in sorted order.
func ParserNames() []string {
	parsersMu.RLock()
	defer parsersMu.RUnlock()
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
