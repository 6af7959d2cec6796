package telegraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feedrelay/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.Client(), "tok", WithBaseURL(srv.URL), WithRetry(2, time.Millisecond))
}

var sampleItem = model.FeedItem{
	Title:       "美人图 Spring Set",
	Description: `<p>Spring set.</p><img src="https://img.example.com/4a.jpg" />`,
	Link:        "https://gallery.example.com/posts/4",
	Published:   time.Date(2025, 3, 16, 0, 19, 9, 0, time.UTC),
}

func TestPublish(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createPage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"path":"Spring-Set-03-16","url":"https://telegra.ph/Spring-Set-03-16"}}`))
	})

	url, err := c.Publish(context.Background(), sampleItem, Author{Name: "Gallery", URL: "https://t.me/gallery"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if diff := cmp.Diff("https://telegra.ph/Spring-Set-03-16", url); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}

	for key, want := range map[string]any{
		"access_token": "tok",
		"title":        "美人图 Spring Set",
		"author_name":  "Gallery",
		"author_url":   "https://t.me/gallery",
	} {
		if diff := cmp.Diff(want, got[key]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", key, diff)
		}
	}
	if _, ok := got["content"].([]any); !ok {
		t.Errorf("content should be a node array, got %T", got["content"])
	}
}

func TestPublishFallsBackToPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"path":"abc-01-01"}}`))
	})
	url, err := c.Publish(context.Background(), sampleItem, Author{})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if diff := cmp.Diff("https://telegra.ph/abc-01-01", url); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"url":"https://telegra.ph/x"}}`))
	})

	if _, err := c.Publish(context.Background(), sampleItem, Author{}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if diff := cmp.Diff(int32(3), calls.Load()); diff != "" {
		t.Errorf("call count mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Publish(context.Background(), sampleItem, Author{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if diff := cmp.Diff(int32(3), calls.Load()); diff != "" {
		t.Errorf("call count mismatch (-want +got):\n%s", diff)
	}
}

func TestPublishAPIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error":"ACCESS_TOKEN_INVALID"}`))
	})

	_, err := c.Publish(context.Background(), sampleItem, Author{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if diff := cmp.Diff("ACCESS_TOKEN_INVALID", apiErr.Message); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int32(1), calls.Load()); diff != "" {
		t.Errorf("call count mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateAccount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createAccount" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"short_name":"relay","access_token":"fresh"}}`))
	})
	c.token = ""

	tok, err := c.CreateAccount(context.Background(), "relay", "Feed Relay")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if diff := cmp.Diff("fresh", tok); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("fresh", c.Token()); diff != "" {
		t.Errorf("client token mismatch (-want +got):\n%s", diff)
	}
}

func TestTruncate(t *testing.T) {
	if diff := cmp.Diff("美人", truncate("美人图", 2)); diff != "" {
		t.Errorf("truncate mismatch (-want +got):\n%s", diff)
	}
	long := strings.Repeat("a", 300)
	if got := truncate(long, maxTitleLen); len(got) != maxTitleLen {
		t.Errorf("expected %d runes, got %d", maxTitleLen, len(got))
	}
}
