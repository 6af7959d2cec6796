package bot

import (
	"fmt"
	"strings"

	"feedrelay/internal/delivery"
	"feedrelay/internal/model"
)

// FormatSubscriptionList lists the feed URLs a channel is subscribed to.
func FormatSubscriptionList(channel string, subs []model.Subscription) string {
	if len(subs) == 0 {
		return fmt.Sprintf("No subscriptions found in %s.", channel)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The following URLs are subscribed in %s:\n", channel)
	for _, s := range subs {
		fmt.Fprintf(&b, "\n%s", s.FeedURL)
		if !s.Watermark.IsZero() && s.Watermark.After(model.Epoch) {
			fmt.Fprintf(&b, "\n   last item: %s", s.Watermark.Format("2006-01-02 15:04 UTC"))
		}
	}
	return b.String()
}

// FormatSubscribeResult reports the first delivery of a new subscription.
func FormatSubscribeResult(channel string, out delivery.Outcome) string {
	switch out.Kind {
	case delivery.Delivered:
		return fmt.Sprintf("Subscription for %s is done. Delivered %d item(s).", channel, out.Count)
	case delivery.NoNewItems:
		return fmt.Sprintf("Subscription for %s is done. No new items yet.", channel)
	case delivery.PermissionLost:
		return fmt.Sprintf("I need to be an administrator in %s to deliver items.", channel)
	default:
		return fmt.Sprintf("Subscription for %s is saved, but delivery stopped after %d item(s): %v. "+
			"The rest will follow on the next cycle.", channel, out.Count, out.Err)
	}
}
