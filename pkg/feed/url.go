package feed

import (
	"net/url"
	"strings"
)

// NormalizeURL returns a copy of u with the scheme and host forced to lower
// case and any fragment folded into the path. Two syntactically different but
// equivalent URLs normalize to the same value, so the result is usable as a
// cache lookup key.
func NormalizeURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}

	norm := *u
	norm.Scheme = strings.ToLower(u.Scheme)
	norm.Host = strings.ToLower(u.Host)

	if norm.Fragment != "" {
		norm.Path = norm.Path + "#" + norm.Fragment
		norm.Fragment = ""
		norm.RawFragment = ""
	}

	return &norm
}

// URLKey converts a URL to its canonical lookup-key form. Every index keyed
// by URL must go through this function so all callers agree on the key.
func URLKey(u *url.URL) string {
	if u == nil {
		return ""
	}
	return NormalizeURL(u).String()
}

// ParseURL parses and normalizes a URL string in one step.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return NormalizeURL(u), nil
}
