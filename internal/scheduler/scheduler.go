package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedrelay/internal/delivery"
	"feedrelay/internal/model"
	"feedrelay/internal/storage"
)

// Deliverer runs one delivery cycle for a subscription.
type Deliverer interface {
	Deliver(ctx context.Context, session delivery.Session, sub model.Subscription) delivery.Outcome
}

// Scheduler periodically delivers new items for every active subscription.
type Scheduler struct {
	store        storage.Storage
	engine       Deliverer
	sessions     []delivery.Session
	log          *slog.Logger
	initialDelay time.Duration
	interval     time.Duration
}

// New creates a Scheduler that waits 4 minutes before its first pass and
// 4 hours between passes.
func New(store storage.Storage, engine Deliverer, sessions []delivery.Session, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		engine:       engine,
		sessions:     sessions,
		log:          log,
		initialDelay: 4 * time.Minute,
		interval:     4 * time.Hour,
	}
}

// SetIntervals overrides the initial delay and the pause between passes.
func (s *Scheduler) SetIntervals(initialDelay, interval time.Duration) {
	s.initialDelay = initialDelay
	s.interval = interval
}

// Run blocks until ctx is cancelled, running a pass after the initial delay
// and then once per interval.
func (s *Scheduler) Run(ctx context.Context) {
	if !wait(ctx, s.initialDelay) {
		return
	}
	for {
		s.RunPass(ctx)
		if !wait(ctx, s.interval) {
			return
		}
	}
}

// RunPass delivers every active subscription once, sequentially.
func (s *Scheduler) RunPass(ctx context.Context) {
	subs, err := s.store.ListSubscriptions(ctx, 0)
	if err != nil {
		s.log.Error("list subscriptions", "error", err)
		return
	}
	s.log.Info("starting pass", "subscriptions", len(subs))

	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		out := s.deliver(ctx, sub.ID)
		switch out.Kind {
		case delivery.Aborted:
			s.log.Error("delivery aborted", "subscription_id", sub.ID, "feed", sub.FeedURL, "delivered", out.Count, "error", out.Err)
		case delivery.PermissionLost:
			s.log.Warn("no session administers channel", "subscription_id", sub.ID, "channel", sub.ChannelName)
		default:
			s.log.Debug("delivery finished", "subscription_id", sub.ID, "outcome", out.String())
		}
	}
}

// DeliverNow runs one cycle for subscription id through session.
func (s *Scheduler) DeliverNow(ctx context.Context, session delivery.Session, id int64) (delivery.Outcome, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return delivery.Outcome{}, fmt.Errorf("get subscription: %w", err)
	}
	return s.engine.Deliver(ctx, session, *sub), nil
}

// deliver tries each session in turn until one is able to reach the channel.
// A session that is not an administrator, or cannot see the channel at all,
// hands over to the next one.
// The subscription is re-read before each attempt so the watermark reflects
// progress made by a previous session.
func (s *Scheduler) deliver(ctx context.Context, id int64) delivery.Outcome {
	out := delivery.Outcome{Kind: delivery.PermissionLost}
	for _, session := range s.sessions {
		sub, err := s.store.GetSubscription(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return delivery.Outcome{Kind: delivery.NoNewItems}
		}
		if err != nil {
			return delivery.Outcome{Kind: delivery.Aborted, Err: fmt.Errorf("get subscription: %w", err)}
		}
		if !sub.IsActive {
			return delivery.Outcome{Kind: delivery.NoNewItems}
		}

		out = s.engine.Deliver(ctx, session, *sub)
		if out.Kind != delivery.PermissionLost && !errors.Is(out.Err, delivery.ErrChannelUnavailable) {
			return out
		}
	}
	return out
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
