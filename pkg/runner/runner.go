// Package runner drives the per-feed pipeline: conditional-fetch check,
// download, parse, change detection, cache update. Feeds are processed by a
// small worker pool sharing one cache store; the aggregated results always
// come back in configuration order.
package runner

import (
	"context"
	"errors"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/detector"
	"feedwatch-go/pkg/feed"
	"feedwatch-go/pkg/fetch"
	"feedwatch-go/pkg/logger"
)

// ErrNoFeeds is returned when Run is invoked with an empty feed set; doing
// nothing silently would mask a configuration mistake.
var ErrNoFeeds = errors.New("no feeds to process")

// State tracks a feed's progress through the pipeline.
type State int

const (
	StatePending State = iota
	StateConditionalCheck
	StateDownloading
	StateParsing
	StateChangeDetecting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConditionalCheck:
		return "conditional-check"
	case StateDownloading:
		return "downloading"
	case StateParsing:
		return "parsing"
	case StateChangeDetecting:
		return "change-detecting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome for one feed. State is StateDone or
// StateFailed; a done feed with no items means "nothing new this run".
type Result struct {
	FeedURL *url.URL
	State   State
	Channel *feed.Channel
	Items   []*feed.Item
	Err     error
}

// PreDownloadHook may veto a feed before any network traffic. Returning
// false short-circuits the feed to a done-with-zero-items result.
type PreDownloadHook func(feedURL *url.URL) bool

// Hooks are ordered callback lists invoked at the pipeline's extension
// points. They are plain dependency-injected slices; there is no global
// registry.
type Hooks struct {
	PreDownload   []PreDownloadHook
	PostCacheLoad []func(store *cache.Store)
	PreCacheSave  []func(store *cache.Store)
}

// Fetcher is the download collaborator. *fetch.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL *url.URL, ifModifiedSince int64) (*fetch.Result, error)
}

// Runner executes the pipeline for a configured set of feeds.
type Runner struct {
	fetcher Fetcher
	parser  feed.Parser
	store   *cache.Store
	workers int
	hooks   Hooks
	log     *logger.Logger
}

func New(fetcher Fetcher, parser feed.Parser, store *cache.Store, workers int, hooks Hooks) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		workers: workers,
		hooks:   hooks,
		log:     logger.GetLogger().WithField("component", "feed_runner"),
	}
}

// Run processes every feed and returns one result per feed, in the same
// order the feeds were given, regardless of worker completion order. A
// single feed's failure is recorded in its result and never aborts its
// siblings; Run itself only fails on an empty feed set.
func (r *Runner) Run(ctx context.Context, feeds []*url.URL) ([]Result, error) {
	if len(feeds) == 0 {
		return nil, ErrNoFeeds
	}

	// Pre-seeded with every feed in configuration order; workers fill in
	// their own slots, so no merge step or result lock is needed.
	results := make([]Result, len(feeds))
	for i := range feeds {
		results[i] = Result{FeedURL: feeds[i], State: StatePending}
	}

	workers := r.workers
	if workers > len(feeds) {
		workers = len(feeds)
	}

	r.log.WithFields(map[string]interface{}{
		"feeds":   len(feeds),
		"workers": workers,
	}).Info("Starting feed download")

	if workers == 1 {
		for i := range feeds {
			results[i] = r.processFeed(ctx, feeds[i])
		}
		return results, nil
	}

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				results[i] = r.processFeed(gctx, feeds[i])
			}
			return nil
		})
	}

	for i := range feeds {
		jobs <- i
	}
	close(jobs)

	// Workers never return errors (per-feed failures live in their
	// results), so this is purely the join point before the caller moves
	// on to the cache-save phase.
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) processFeed(ctx context.Context, feedURL *url.URL) Result {
	result := Result{FeedURL: feedURL, State: StateConditionalCheck}
	log := r.log.WithField("feed", feedURL.String())

	hint := detector.ConditionalFetchHint(feedURL, r.store)

	for _, hook := range r.hooks.PreDownload {
		if !hook(feedURL) {
			log.Debug("Feed vetoed before download")
			result.State = StateDone
			return result
		}
	}

	result.State = StateDownloading
	fetched, err := r.fetcher.Fetch(ctx, feedURL, hint)
	if err != nil {
		log.WithError(err).Warn("Feed download failed")
		result.State = StateFailed
		result.Err = err
		return result
	}

	if fetched.NotModified {
		log.Debug("No feed body, nothing to parse")
		result.State = StateDone
		return result
	}

	if !detector.FeedHasChanged(hint, fetched.LastModified) {
		log.Debug("Feed has no new data since last run")
		result.State = StateDone
		return result
	}

	result.State = StateParsing
	channel, err := r.parser.Parse(fetched.Body, feedURL)
	if err != nil {
		log.WithError(err).Warn("Feed parse failed")
		result.State = StateFailed
		result.Err = err
		return result
	}

	result.State = StateChangeDetecting
	var lastModified *time.Time
	if fetched.LastModified > 0 {
		t := time.UnixMilli(fetched.LastModified)
		lastModified = &t
	}
	result.Items = detector.ProcessChannelItems(channel, lastModified, r.store)
	result.Channel = channel
	result.State = StateDone

	log.WithField("new_items", len(result.Items)).Debug("Feed processed")
	return result
}
