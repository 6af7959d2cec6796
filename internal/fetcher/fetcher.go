// Package fetcher handles RSS/Atom feed downloading and normalization.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedrelay/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads the feed at url and returns its items in document order,
// which by convention is newest first.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]model.FeedItem, error) {
	feed, err := f.FetchFeed(ctx, url)
	if err != nil {
		return nil, err
	}
	return Normalize(feed.Items), nil
}

// FetchFeed downloads and parses a feed from the given URL.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "FeedRelayBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ParseItems parses a fragment of bare RSS <item> elements, as uploaded
// through the manual publish command.
func ParseItems(fragment string) ([]*gofeed.Item, error) {
	doc := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>upload</title>` +
		strings.TrimSpace(fragment) + `</channel></rss>`
	feed, err := gofeed.NewParser().ParseString(doc)
	if err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	return feed.Items, nil
}

// Normalize converts parsed items to model.FeedItem. The publication time
// falls back to the update time and is truncated to whole seconds, the
// precision watermarks are stored at. Items with neither are dropped since
// they cannot be ordered against a watermark.
func Normalize(items []*gofeed.Item) []model.FeedItem {
	out := make([]model.FeedItem, 0, len(items))
	for _, item := range items {
		ts, ok := ItemTime(item)
		if !ok {
			continue
		}
		out = append(out, model.FeedItem{
			Title:       strings.TrimSpace(item.Title),
			Description: ItemBody(item),
			Link:        item.Link,
			Published:   ts,
		})
	}
	return out
}

// ItemTime resolves an item's publication instant in UTC.
func ItemTime(item *gofeed.Item) (time.Time, bool) {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC().Truncate(time.Second), true
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC().Truncate(time.Second), true
	default:
		return time.Time{}, false
	}
}

// ItemBody returns the item's HTML description, falling back to its content.
func ItemBody(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	return item.Content
}
