package feed

import (
	"bytes"
	"net/url"

	"github.com/mmcdole/gofeed"

	"feedwatch-go/pkg/logger"
)

// DefaultParserName identifies the parser used when the configuration does
// not name one.
const DefaultParserName = "gofeed"

func init() {
	RegisterParser(DefaultParserName, func() Parser { return NewGofeedParser() })
}

// GofeedParser parses RSS 1.0/2.0 and Atom bodies using gofeed's universal
// parser.
type GofeedParser struct {
	log *logger.Logger
}

func NewGofeedParser() *GofeedParser {
	return &GofeedParser{
		log: logger.GetLogger().WithField("component", "gofeed_parser"),
	}
}

func (p *GofeedParser) Parse(body []byte, feedURL *url.URL) (*Channel, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{FeedURL: feedURL.String(), Err: err}
	}

	channel := &Channel{
		URL:   NormalizeURL(feedURL),
		Title: parsed.Title,
		Items: make([]*Item, 0, len(parsed.Items)),
	}

	for _, raw := range parsed.Items {
		item := &Item{
			ID:      raw.GUID,
			Title:   raw.Title,
			PubDate: raw.PublishedParsed,
		}

		if raw.Link != "" {
			itemURL, err := url.Parse(raw.Link)
			if err != nil {
				p.log.WithFields(map[string]interface{}{
					"feed": feedURL.String(),
					"link": raw.Link,
				}).Warn("Item has unparsable link, leaving it unresolvable")
			} else {
				if !itemURL.IsAbs() {
					itemURL = feedURL.ResolveReference(itemURL)
				}
				item.URL = itemURL
			}
		}

		channel.Items = append(channel.Items, item)
	}

	p.log.WithFields(map[string]interface{}{
		"feed":  feedURL.String(),
		"items": len(channel.Items),
	}).Debug("Parsed feed body")

	return channel, nil
}
