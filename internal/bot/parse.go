package bot

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"feedrelay/internal/fetcher"
	"feedrelay/internal/model"
)

var errNoItems = errors.New("the file does not contain any <item>...</item> elements")

// ParseChannelArgs splits "@channel [url]" command arguments. The URL is ""
// when only a channel was given; anything after the URL is ignored.
func ParseChannelArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("channel is required")
	}
	channel := parts[0]
	if !strings.HasPrefix(channel, "@") || len(channel) < 2 {
		return "", "", fmt.Errorf("channel name must start with @")
	}
	if len(parts) == 1 {
		return channel, "", nil
	}
	return channel, parts[1], nil
}

// ValidateFeedURL checks that raw is an absolute http(s) URL.
func ValidateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid feed URL %q, expected http(s)://...", raw)
	}
	return nil
}

// ParseUpload extracts the items of a /pub upload. They are returned in
// reverse file order, all stamped with now.
func ParseUpload(content string, now time.Time) ([]model.FeedItem, error) {
	if !strings.Contains(content, "<item>") || !strings.Contains(content, "</item>") {
		return nil, errNoItems
	}

	parsed, err := fetcher.ParseItems(content)
	if err != nil {
		return nil, fmt.Errorf("could not parse items: %w", err)
	}
	if len(parsed) == 0 {
		return nil, errNoItems
	}

	stamp := now.UTC().Truncate(time.Second)
	items := make([]model.FeedItem, 0, len(parsed))
	for i := len(parsed) - 1; i >= 0; i-- {
		p := parsed[i]
		body := fetcher.ItemBody(p)
		if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(body) == "" {
			return nil, fmt.Errorf("every <item> needs a <title> and a <description>")
		}
		items = append(items, model.FeedItem{
			Title:       strings.TrimSpace(p.Title),
			Description: body,
			Link:        p.Link,
			Published:   stamp,
		})
	}
	return items, nil
}
