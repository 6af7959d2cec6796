// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"feedrelay/internal/model"
)

// ErrNotFound is returned when a subscription does not exist.
var ErrNotFound = errors.New("subscription not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// AddSubscription inserts a subscription with an epoch watermark, or
	// reactivates the existing one for the same channel and URL. It returns
	// the subscription ID either way.
	AddSubscription(ctx context.Context, channelID int64, channelName, feedURL string) (int64, error)
	// RemoveSubscription deactivates a subscription and reports whether an
	// active row was changed.
	RemoveSubscription(ctx context.Context, channelID int64, feedURL string) (bool, error)
	// ListSubscriptions returns active subscriptions. A zero channelID lists
	// every channel.
	ListSubscriptions(ctx context.Context, channelID int64) ([]model.Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	// AdvanceWatermark sets the watermark unconditionally. Callers keep it
	// monotonic.
	AdvanceWatermark(ctx context.Context, id int64, ts time.Time) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
