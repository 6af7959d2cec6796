package delivery

import (
	"errors"
	"fmt"
	"time"
)

// ErrBusy is the abort reason when another cycle for the same subscription
// is still running.
var ErrBusy = errors.New("delivery already in progress")

// ErrChannelUnavailable is the abort reason when the session could not look
// the channel up at all, typically because the bot is not a member of it.
var ErrChannelUnavailable = errors.New("channel unavailable")

// Kind classifies how a cycle ended.
type Kind int

// Cycle results.
const (
	Delivered Kind = iota + 1
	NoNewItems
	PermissionLost
	Aborted
)

func (k Kind) String() string {
	switch k {
	case Delivered:
		return "delivered"
	case NoNewItems:
		return "no new items"
	case PermissionLost:
		return "permission lost"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one delivery cycle. Count is the number
// of items committed before the cycle ended, which may be non-zero for an
// aborted cycle.
type Outcome struct {
	Kind  Kind
	Count int
	Err   error
}

func (o Outcome) String() string {
	switch o.Kind {
	case Delivered:
		return fmt.Sprintf("delivered(%d)", o.Count)
	case Aborted:
		return fmt.Sprintf("aborted after %d: %v", o.Count, o.Err)
	default:
		return o.Kind.String()
	}
}

func delivered(n int) Outcome {
	if n == 0 {
		return Outcome{Kind: NoNewItems}
	}
	return Outcome{Kind: Delivered, Count: n}
}

func aborted(n int, err error) Outcome {
	return Outcome{Kind: Aborted, Count: n, Err: err}
}

// FloodControlError is returned by a Session when the platform rejected a
// send because too many messages were sent recently.
type FloodControlError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *FloodControlError) Error() string {
	return fmt.Sprintf("flood control (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *FloodControlError) Unwrap() error {
	return e.Err
}
