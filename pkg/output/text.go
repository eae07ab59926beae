package output

import (
	"fmt"
	"io"
	"os"

	"feedwatch-go/pkg/feed"
)

func init() {
	RegisterSink("text", func() Sink { return NewTextSink(os.Stdout) })
	RegisterSink("null", func() Sink { return &nullSink{} })
}

// TextSink writes a plain-text summary of each feed's new items.
type TextSink struct {
	w io.Writer
}

func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w}
}

func (s *TextSink) Emit(channel *feed.Channel, items []*feed.Item) error {
	title := channel.Title
	if title == "" {
		title = channel.URL.String()
	}
	if _, err := fmt.Fprintf(s.w, "%s (%d new)\n", title, len(items)); err != nil {
		return err
	}
	for _, item := range items {
		line := item.Title
		if line == "" {
			line = item.URL.String()
		}
		if _, err := fmt.Fprintf(s.w, "  - %s\n    %s\n", line, item.URL.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *TextSink) Flush() error { return nil }

// nullSink discards everything. Useful when a run is only meant to warm the
// cache.
type nullSink struct{}

func (s *nullSink) Emit(*feed.Channel, []*feed.Item) error { return nil }
func (s *nullSink) Flush() error                           { return nil }
