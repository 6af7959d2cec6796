// Package telegraph publishes feed items as Telegraph pages.
package telegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"feedrelay/internal/model"
)

// DefaultBaseURL is the public Telegraph API endpoint.
const DefaultBaseURL = "https://api.telegra.ph"

const (
	maxTitleLen  = 256
	maxAuthorLen = 128
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Author identifies the channel a page is published for.
type Author struct {
	Name string
	URL  string
}

// APIError is returned when Telegraph answers with ok=false.
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegraph %s: %s", e.Method, e.Message)
}

// Client is a minimal Telegraph API client.
type Client struct {
	http       HTTPClient
	baseURL    string
	token      string
	maxRetries uint64
	retryBase  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRetry sets the retry budget for transient failures.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBase = base
	}
}

// New creates a Client using the given access token.
func New(client HTTPClient, token string, opts ...Option) *Client {
	c := &Client{
		http:       client,
		baseURL:    DefaultBaseURL,
		token:      token,
		maxRetries: 3,
		retryBase:  time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns the access token in use.
func (c *Client) Token() string {
	return c.token
}

// CreateAccount registers a new Telegraph account and makes the client use
// its access token.
func (c *Client) CreateAccount(ctx context.Context, shortName, authorName string) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	req := map[string]any{
		"short_name":  shortName,
		"author_name": truncate(authorName, maxAuthorLen),
	}
	if err := c.call(ctx, "createAccount", req, &result); err != nil {
		return "", err
	}
	c.token = result.AccessToken
	return result.AccessToken, nil
}

// Publish creates a page for item and returns its URL. Every call creates a
// new page.
func (c *Client) Publish(ctx context.Context, item model.FeedItem, author Author) (string, error) {
	content, err := PageContent(item)
	if err != nil {
		return "", fmt.Errorf("build content: %w", err)
	}

	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	req := map[string]any{
		"access_token":   c.token,
		"title":          truncate(title, maxTitleLen),
		"author_name":    truncate(author.Name, maxAuthorLen),
		"author_url":     author.URL,
		"content":        content,
		"return_content": false,
	}

	var page struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	if err := c.call(ctx, "createPage", req, &page); err != nil {
		return "", err
	}
	if page.URL == "" {
		return "https://telegra.ph/" + page.Path, nil
	}
	return page.URL, nil
}

// call posts a JSON request to method, retrying transport failures and
// server errors with exponential backoff.
func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("telegraph %s: %w", method, err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("telegraph %s: unexpected status %d", method, resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read %s response: %w", method, err))
		}

		var envelope struct {
			OK     bool            `json:"ok"`
			Error  string          `json:"error"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		if !envelope.OK {
			return &APIError{Method: method, Message: envelope.Error}
		}
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
