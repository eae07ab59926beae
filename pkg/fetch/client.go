// Package fetch downloads feed bodies over HTTP with conditional-fetch
// support. The caller supplies an If-Modified-Since hint from the cache; the
// remote server decides whether a body comes back at all.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"feedwatch-go/pkg/logger"
)

// Error wraps a download failure with the identity of the feed that caused
// it, so a failing feed can be reported without aborting its siblings.
type Error struct {
	FeedURL string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetching feed %s: %v", e.FeedURL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of one feed download. NotModified is set when the
// server honored the conditional fetch (HTTP 304) or returned an empty body;
// in both cases Body is nil and the feed needs no parsing this run.
// LastModified is the server's Last-Modified header in ms epoch, 0 when the
// server gave no signal.
type Result struct {
	Body         []byte
	LastModified int64
	NotModified  bool
}

const defaultUserAgent = "feedwatch-go/1.0 (+https://github.com/feedwatch/feedwatch-go)"

// Client downloads feeds with fasthttp.
type Client struct {
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
	log       *logger.Logger
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout:   timeout,
		userAgent: defaultUserAgent,
		log:       logger.GetLogger().WithField("component", "feed_fetcher"),
	}
}

// Fetch downloads one feed. ifModifiedSince is the cache's last-seen
// timestamp in ms epoch; 0 disables the precondition.
func (c *Client) Fetch(ctx context.Context, feedURL *url.URL, ifModifiedSince int64) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{FeedURL: feedURL.String(), Err: err}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(feedURL.String())
	req.Header.SetUserAgent(c.userAgent)
	req.Header.Set(fasthttp.HeaderAccept,
		"application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.1")
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "gzip")

	if ifModifiedSince > 0 {
		since := time.UnixMilli(ifModifiedSince).UTC().Format(http.TimeFormat)
		req.Header.Set(fasthttp.HeaderIfModifiedSince, since)
		c.log.WithFields(map[string]interface{}{
			"url":   feedURL.String(),
			"since": since,
		}).Debug("Setting If-Modified-Since header")
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, &Error{FeedURL: feedURL.String(), Err: err}
	}

	lastModified := parseLastModified(string(resp.Header.Peek(fasthttp.HeaderLastModified)))

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotModified:
		c.log.WithField("url", feedURL.String()).Debug("Server reports feed not modified")
		return &Result{NotModified: true, LastModified: lastModified}, nil
	case status != fasthttp.StatusOK:
		return nil, &Error{
			FeedURL: feedURL.String(),
			Err:     fmt.Errorf("unexpected status %d", status),
		}
	}

	body, err := responseBody(resp)
	if err != nil {
		return nil, &Error{FeedURL: feedURL.String(), Err: err}
	}
	if len(body) == 0 {
		// Some servers honor the precondition by sending 200 with an
		// empty body.
		return &Result{NotModified: true, LastModified: lastModified}, nil
	}

	body = DecodeToUTF8(body, string(resp.Header.ContentType()))

	c.log.WithFields(map[string]interface{}{
		"url":           feedURL.String(),
		"bytes":         len(body),
		"last_modified": lastModified,
	}).Debug("Downloaded feed body")

	return &Result{Body: body, LastModified: lastModified}, nil
}

func responseBody(resp *fasthttp.Response) ([]byte, error) {
	encoding := string(resp.Header.Peek(fasthttp.HeaderContentEncoding))
	if strings.Contains(encoding, "gzip") {
		return resp.BodyGunzip()
	}
	body := resp.Body()
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func parseLastModified(header string) int64 {
	if header == "" {
		return 0
	}
	t, err := http.ParseTime(header)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
