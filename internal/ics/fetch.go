package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	appLog "calmerge/internal/log"
)

const (
	fetchRetries   = 2
	fetchRetryWait = 500 * time.Millisecond
)

// Feed is a remote calendar subscription.
type Feed struct {
	Label string
	URL   string
}

// FetchResult is the body obtained for one feed.
type FetchResult struct {
	Feed      Feed
	Body      []byte
	FromCache bool // true if the body came from the disk cache
}

// FetchError ties a fetch failure to its feed.
type FetchError struct {
	Feed Feed
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %q: %v", e.Feed.Label, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// cacheEntry holds HTTP validators for one URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests (ETag /
// Last-Modified) and keeps the last good body on disk, so a feed that is
// temporarily down still contributes its previous content.
type Fetcher struct {
	client   *resty.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir. A zero timeout
// selects 15s.
func NewFetcher(cacheDir string, timeout time.Duration) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(fetchRetries).
		SetRetryWaitTime(fetchRetryWait).
		SetHeader("Accept", "text/calendar, */*;q=0.5")
	return &Fetcher{
		client:   client,
		cacheDir: cacheDir,
	}
}

// FetchAll fetches feeds concurrently. Results and errors are returned in
// label order regardless of completion order.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []Feed) ([]FetchResult, []*FetchError) {
	type outcome struct {
		res FetchResult
		err error
	}

	outcomes := make([]outcome, len(feeds))
	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed Feed) {
			defer wg.Done()
			res, err := f.FetchOne(ctx, feed)
			outcomes[i] = outcome{res: res, err: err}
		}(i, feed)
	}
	wg.Wait()

	order := make([]int, len(feeds))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return feeds[order[a]].Label < feeds[order[b]].Label
	})

	results := make([]FetchResult, 0, len(feeds))
	var errs []*FetchError
	for _, i := range order {
		if err := outcomes[i].err; err != nil {
			appLog.Error("ics fetch failed", err, "label", feeds[i].Label, "url", redactURL(feeds[i].URL))
			errs = append(errs, &FetchError{Feed: feeds[i], Err: err})
			continue
		}
		results = append(results, outcomes[i].res)
	}
	return results, errs
}

// FetchOne fetches a single feed, honoring ETag and Last-Modified.
func (f *Fetcher) FetchOne(ctx context.Context, feed Feed) (FetchResult, error) {
	if feed.URL == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}

	cachePath := f.cachePathForURL(feed.URL)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req := f.client.R().SetContext(ctx)
	if meta.ETag != "" {
		req.SetHeader("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.SetHeader("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics fetch start", "label", feed.Label, "url", redactURL(feed.URL))

	resp, err := req.Get(feed.URL)
	if err != nil {
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "label", feed.Label, "url", redactURL(feed.URL))
			return FetchResult{Feed: feed, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		body := resp.Body()

		newMeta := cacheEntry{
			URL:          feed.URL,
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			appLog.Error("ics cache save failed", err, "label", feed.Label, "url", redactURL(feed.URL))
		}

		appLog.Info("ics fetch success", "label", feed.Label, "url", redactURL(feed.URL), "bytes", len(body))
		return FetchResult{Feed: feed, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("ics fetch not modified; using cache", "label", feed.Label)
		return FetchResult{Feed: feed, Body: cachedBody, FromCache: true}, nil

	default:
		if len(cachedBody) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status()), "label", feed.Label, "status", resp.StatusCode())
			return FetchResult{Feed: feed, Body: cachedBody, FromCache: true}, nil
		}
		return FetchResult{}, errors.New(resp.Status())
	}
}

func (f *Fetcher) cachePathForURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.ics"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.ics"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; feed URLs often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
