package ical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxFeedBytes = 10 << 20

// Fetcher downloads feeds and revalidates them with ETag/Last-Modified.
// Validators and bodies are cached in memory per URL.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cachedFeed
}

type cachedFeed struct {
	etag         string
	lastModified string
	body         []byte
}

// FetchResult is the payload of one feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool
}

// NewFetcher returns a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]cachedFeed),
	}
}

// Fetch downloads url. A 304 answer, or a network failure with a cached body,
// returns the cached body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}
	f.mu.Lock()
	cached, hasCache := f.cache[url]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	req.Header.Set("Accept", "text/calendar")
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			return FetchResult{URL: url, Body: cached.body, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("fetch %s: %w", RedactURL(url), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return FetchResult{}, fmt.Errorf("read %s: %w", RedactURL(url), err)
		}
		f.mu.Lock()
		f.cache[url] = cachedFeed{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		return FetchResult{URL: url, Body: body}, nil
	case http.StatusNotModified:
		if !hasCache {
			return FetchResult{}, fmt.Errorf("fetch %s: 304 without cached body", RedactURL(url))
		}
		return FetchResult{URL: url, Body: cached.body, FromCache: true}, nil
	default:
		return FetchResult{}, fmt.Errorf("fetch %s: unexpected status %d", RedactURL(url), resp.StatusCode)
	}
}

// RedactURL drops the query string, which often carries feed secrets.
func RedactURL(raw string) string {
	if base, _, ok := strings.Cut(raw, "?"); ok {
		return base + "?redacted"
	}
	return raw
}
