// Package delivery runs the per-subscription publish-and-notify cycle.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedrelay/internal/model"
	"feedrelay/internal/telegraph"
)

// Channel describes a broadcast channel as seen by a bot session.
type Channel struct {
	ID       int64
	Title    string
	Username string
	// IsAdmin reports whether the session's bot administers the channel.
	IsAdmin bool
}

// URL returns the public t.me link, or "" for private channels.
func (c Channel) URL() string {
	if c.Username == "" {
		return ""
	}
	return "https://t.me/" + c.Username
}

// Session is one authenticated bot connection to the messaging platform.
type Session interface {
	Channel(ctx context.Context, channelID int64) (Channel, error)
	SendText(ctx context.Context, channelID int64, text string) error
	SendPhoto(ctx context.Context, channelID int64, photoURL, caption string) error
}

// Source yields the items of a feed, newest first.
type Source interface {
	Fetch(ctx context.Context, url string) ([]model.FeedItem, error)
}

// Publisher creates a public page for an item and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, item model.FeedItem, author telegraph.Author) (string, error)
}

// Watermarks persists the per-subscription delivery watermark.
type Watermarks interface {
	AdvanceWatermark(ctx context.Context, id int64, ts time.Time) (bool, error)
}

// Options tunes the pacing of sends.
type Options struct {
	// SendDelay is the pause after every successful notification.
	SendDelay time.Duration
	// FloodCooldown is the minimum wait after a flood-control rejection.
	FloodCooldown time.Duration
}

// DefaultOptions returns the production pacing.
func DefaultOptions() Options {
	return Options{
		SendDelay:     3 * time.Second,
		FloodCooldown: 30 * time.Second,
	}
}

// Engine delivers new feed items to channels.
type Engine struct {
	source     Source
	publisher  Publisher
	watermarks Watermarks
	log        *slog.Logger
	opts       Options

	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// New creates an Engine.
func New(source Source, publisher Publisher, watermarks Watermarks, log *slog.Logger, opts Options) *Engine {
	return &Engine{
		source:     source,
		publisher:  publisher,
		watermarks: watermarks,
		log:        log,
		opts:       opts,
		inFlight:   make(map[int64]struct{}),
	}
}

// Deliver runs one cycle for sub through session. Items newer than the
// subscription's watermark are processed oldest first; each one is published,
// announced and then committed by advancing the watermark to its timestamp.
// The first failing item ends the cycle, leaving it eligible for the next one.
//
// Cancellation of ctx is observed between items. The item in progress is
// always carried through to its commit.
func (e *Engine) Deliver(ctx context.Context, session Session, sub model.Subscription) Outcome {
	if !e.acquire(sub.ID) {
		return aborted(0, ErrBusy)
	}
	defer e.release(sub.ID)

	log := e.log.With("cycle", uuid.NewString(), "subscription_id", sub.ID, "feed", sub.FeedURL)

	ch, err := session.Channel(ctx, sub.ChannelID)
	if err != nil {
		log.Error("check channel", "channel_id", sub.ChannelID, "error", err)
		return aborted(0, fmt.Errorf("check channel: %w: %w", ErrChannelUnavailable, err))
	}
	if !ch.IsAdmin {
		log.Warn("bot is not an administrator of the channel", "channel_id", sub.ChannelID)
		return Outcome{Kind: PermissionLost}
	}

	items, err := e.source.Fetch(ctx, sub.FeedURL)
	if err != nil {
		log.Error("fetch feed", "error", err)
		return Outcome{Kind: NoNewItems}
	}

	current := sub.Watermark
	sent := 0
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if sub.Delivered(item.Published) {
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Info("cycle cancelled", "delivered", sent)
			return aborted(sent, err)
		}

		itemCtx := context.WithoutCancel(ctx)
		if err := e.deliverItem(itemCtx, session, ch, item); err != nil {
			log.Error("deliver item", "title", item.Title, "published", item.Published, "error", err)
			return aborted(sent, err)
		}

		if item.Published.After(current) {
			if _, err := e.watermarks.AdvanceWatermark(itemCtx, sub.ID, item.Published); err != nil {
				log.Error("advance watermark", "published", item.Published, "error", err)
				return aborted(sent+1, fmt.Errorf("advance watermark: %w", err))
			}
			current = item.Published
		}
		sent++
		log.Debug("item delivered", "title", item.Title, "published", item.Published)

		_ = sleep(ctx, e.opts.SendDelay)
	}

	if sent > 0 {
		log.Info("sent notifications", "channel", ch.Title, "count", sent)
	}
	return delivered(sent)
}

// PublishItems publishes and announces items in order without consulting or
// moving any watermark. It stops at the first failure and returns how many
// items were sent.
func (e *Engine) PublishItems(ctx context.Context, session Session, ch Channel, items []model.FeedItem) (int, error) {
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := e.deliverItem(context.WithoutCancel(ctx), session, ch, item); err != nil {
			return i, err
		}
		_ = sleep(ctx, e.opts.SendDelay)
	}
	return len(items), nil
}

func (e *Engine) deliverItem(ctx context.Context, session Session, ch Channel, item model.FeedItem) error {
	images := ExtractImages(item.Description)

	link, err := e.publisher.Publish(ctx, item, telegraph.Author{Name: ch.Title, URL: ch.URL()})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	text := FormatNotification(item.Title, link)
	send := func() error {
		if len(images) > 0 {
			return session.SendPhoto(ctx, ch.ID, images[0], text)
		}
		return session.SendText(ctx, ch.ID, text)
	}

	err = send()
	var flood *FloodControlError
	if errors.As(err, &flood) {
		wait := max(e.opts.FloodCooldown, flood.RetryAfter)
		e.log.Warn("flood control, backing off", "channel_id", ch.ID, "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		err = send()
	}
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (e *Engine) acquire(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) release(id int64) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
