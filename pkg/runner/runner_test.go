package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"testing"
	"time"

	"feedwatch-go/pkg/cache"
	"feedwatch-go/pkg/feed"
	"feedwatch-go/pkg/fetch"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing %q: %v", raw, err)
	}
	return u
}

func testFeeds(t *testing.T, n int) ([]*url.URL, map[string]cache.Retention) {
	t.Helper()
	feeds := make([]*url.URL, n)
	retention := make(map[string]cache.Retention, n)
	for i := range feeds {
		raw := fmt.Sprintf("https://example.com/feed-%02d.xml", i)
		feeds[i] = mustURL(t, raw)
		retention[raw] = cache.NoLimit
	}
	return feeds, retention
}

// stubFetcher serves canned bodies keyed by feed URL, optionally sleeping a
// random amount per call to shake out ordering assumptions.
type stubFetcher struct {
	mu          sync.Mutex
	bodies      map[string]*fetch.Result
	errs        map[string]error
	maxDelay    time.Duration
	fetchedURLs []string
}

func (f *stubFetcher) Fetch(ctx context.Context, feedURL *url.URL, ifModifiedSince int64) (*fetch.Result, error) {
	if f.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(f.maxDelay))))
	}
	f.mu.Lock()
	f.fetchedURLs = append(f.fetchedURLs, feedURL.String())
	f.mu.Unlock()
	if err, ok := f.errs[feedURL.String()]; ok {
		return nil, err
	}
	if res, ok := f.bodies[feedURL.String()]; ok {
		return res, nil
	}
	return &fetch.Result{Body: []byte("body"), LastModified: 0}, nil
}

// stubParser turns any body into a one-item channel whose item URL is unique
// per feed.
type stubParser struct {
	err error
}

func (p *stubParser) Parse(body []byte, feedURL *url.URL) (*feed.Channel, error) {
	if p.err != nil {
		return nil, p.err
	}
	itemURL, _ := url.Parse(feedURL.String() + "/item")
	item := &feed.Item{
		ID:  "item-" + feedURL.String(),
		URL: itemURL,
	}
	return &feed.Channel{URL: feedURL, Title: "stub", Items: []*feed.Item{item}}, nil
}

func TestRunEmptyFeedSet(t *testing.T) {
	store := cache.NewStore(nil)
	r := New(&stubFetcher{}, &stubParser{}, store, 4, Hooks{})

	if _, err := r.Run(context.Background(), nil); !errors.Is(err, ErrNoFeeds) {
		t.Errorf("expected ErrNoFeeds, got %v", err)
	}
}

func TestRunPreservesConfiguredOrder(t *testing.T) {
	feeds, retention := testFeeds(t, 10)
	store := cache.NewStore(retention)
	fetcher := &stubFetcher{maxDelay: 20 * time.Millisecond}
	r := New(fetcher, &stubParser{}, store, 4, Hooks{})

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(feeds) {
		t.Fatalf("got %d results for %d feeds", len(results), len(feeds))
	}
	for i, res := range results {
		if res.FeedURL != feeds[i] {
			t.Errorf("result %d is for %s, want %s", i, res.FeedURL, feeds[i])
		}
		if res.State != StateDone {
			t.Errorf("result %d in state %s, want done", i, res.State)
		}
	}
}

func TestRunSequentialWithOneWorker(t *testing.T) {
	feeds, retention := testFeeds(t, 3)
	store := cache.NewStore(retention)
	fetcher := &stubFetcher{}
	r := New(fetcher, &stubParser{}, store, 1, Hooks{})

	if _, err := r.Run(context.Background(), feeds); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, raw := range fetcher.fetchedURLs {
		if raw != feeds[i].String() {
			t.Errorf("fetch %d was %s, want %s", i, raw, feeds[i])
		}
	}
}

func TestRunIsolatesFeedFailures(t *testing.T) {
	feeds, retention := testFeeds(t, 3)
	store := cache.NewStore(retention)
	bad := feeds[1].String()
	fetcher := &stubFetcher{errs: map[string]error{bad: errors.New("connection refused")}}
	r := New(fetcher, &stubParser{}, store, 2, Hooks{})

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if results[1].State != StateFailed {
		t.Errorf("failing feed in state %s, want failed", results[1].State)
	}
	if results[1].Err == nil {
		t.Error("failing feed carries no error")
	}
	for _, i := range []int{0, 2} {
		if results[i].State != StateDone {
			t.Errorf("sibling feed %d in state %s, want done", i, results[i].State)
		}
	}
}

func TestRunParseFailure(t *testing.T) {
	feeds, retention := testFeeds(t, 1)
	store := cache.NewStore(retention)
	r := New(&stubFetcher{}, &stubParser{err: errors.New("not XML")}, store, 1, Hooks{})

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].State != StateFailed || results[0].Err == nil {
		t.Errorf("parse failure not surfaced: state %s, err %v", results[0].State, results[0].Err)
	}
}

func TestRunNotModifiedShortCircuitsParsing(t *testing.T) {
	feeds, retention := testFeeds(t, 1)
	store := cache.NewStore(retention)
	fetcher := &stubFetcher{bodies: map[string]*fetch.Result{
		feeds[0].String(): {NotModified: true},
	}}
	// A parser that would fail proves it is never reached.
	r := New(fetcher, &stubParser{err: errors.New("must not parse")}, store, 1, Hooks{})

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].State != StateDone {
		t.Errorf("state %s, want done", results[0].State)
	}
	if len(results[0].Items) != 0 {
		t.Errorf("unmodified feed produced %d items", len(results[0].Items))
	}
}

func TestRunUnchangedLastModifiedShortCircuits(t *testing.T) {
	feeds, retention := testFeeds(t, 1)
	store := cache.NewStore(retention)

	// Seed the cache so the feed has a last-seen timestamp newer than the
	// server's Last-Modified.
	seen := time.Now()
	store.Visit(func(v *cache.View) {
		v.AddOrUpdate("", feeds[0], &seen, feeds[0])
	})

	fetcher := &stubFetcher{bodies: map[string]*fetch.Result{
		feeds[0].String(): {Body: []byte("old body"), LastModified: 1000},
	}}
	r := New(fetcher, &stubParser{err: errors.New("must not parse")}, store, 1, Hooks{})

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].State != StateDone {
		t.Errorf("state %s, want done", results[0].State)
	}
}

func TestRunPreDownloadVeto(t *testing.T) {
	feeds, retention := testFeeds(t, 2)
	store := cache.NewStore(retention)
	vetoed := feeds[0].String()
	fetcher := &stubFetcher{}
	hooks := Hooks{PreDownload: []PreDownloadHook{
		func(u *url.URL) bool { return u.String() != vetoed },
	}}
	r := New(fetcher, &stubParser{}, store, 1, hooks)

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if results[0].State != StateDone || len(results[0].Items) != 0 {
		t.Errorf("vetoed feed: state %s, %d items", results[0].State, len(results[0].Items))
	}
	for _, raw := range fetcher.fetchedURLs {
		if raw == vetoed {
			t.Error("vetoed feed was downloaded anyway")
		}
	}
	if results[1].State != StateDone {
		t.Errorf("unvetoed feed in state %s", results[1].State)
	}
}

func TestRunRecordsNewItemsInCache(t *testing.T) {
	feeds, retention := testFeeds(t, 2)
	store := cache.NewStore(retention)
	r := New(&stubFetcher{}, &stubParser{}, store, 2, Hooks{})

	results, err := r.Run(context.Background(), feeds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, res := range results {
		if len(res.Items) != 1 {
			t.Errorf("feed %d: %d new items, want 1", i, len(res.Items))
		}
	}
	if !store.Modified() {
		t.Error("cache not marked modified after new items")
	}
	// Each feed contributes its item entry plus a whole-feed entry.
	if got := store.Len(); got != 4 {
		t.Errorf("cache holds %d entries, want 4", got)
	}
}

func TestStateString(t *testing.T) {
	if StateDone.String() != "done" || StateFailed.String() != "failed" {
		t.Error("state names wrong")
	}
	if State(99).String() != "unknown" {
		t.Error("out-of-range state must stringify as unknown")
	}
}
