// Package model defines the domain types used across the application.
package model

import "time"

// Subscription binds a Telegram channel to a feed URL.
//
// Watermark is the publication time of the newest item already delivered
// to the channel. The zero Unix time means nothing has been delivered yet.
type Subscription struct {
	ID          int64
	ChannelID   int64
	ChannelName string
	FeedURL     string
	IsActive    bool
	Watermark   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Delivered reports whether an item published at ts is at or below the
// watermark and must therefore be skipped.
func (s Subscription) Delivered(ts time.Time) bool {
	return !ts.After(s.Watermark)
}

// FeedItem is a normalized entry produced by the feed source.
type FeedItem struct {
	Title       string
	Description string
	Link        string
	Published   time.Time
}

// Epoch is the initial watermark of a new subscription.
var Epoch = time.Unix(0, 0).UTC()
