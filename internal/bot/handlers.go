package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedrelay/internal/delivery"
)

const maxUploadSize = 5 * 1024 * 1024

const (
	subUsage   = "Please use the format: /sub @channel_name url"
	unsubUsage = "Please use the format: /unsub @channel_name url"
	pubUsage   = "Send a .txt file of <item> elements with the caption: /pub @channel_name"
)

func (b *Bot) handleStart(chatID int64, from *tgbotapi.User) {
	name := from.FirstName
	if name == "" {
		name = from.UserName
	}
	b.reply(chatID, fmt.Sprintf(`Hello, %s!

I publish new feed items to your Telegram channels. Add me to a channel as an administrator, then subscribe it to a feed:

/sub @channel_name https://example.com/feed.xml

Use /help for the full command reference.`, name))
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Subscriptions:
/sub @channel — list the channel's feeds
/sub @channel <url> — subscribe the channel to a feed
/unsub @channel <url> — stop delivering a feed

Manual publishing:
send a .txt file of <item> elements with the caption /pub @channel

I must be an administrator of the channel for every command.`)
}

// resolveChannel looks up a channel reference and checks the bot may post
// to it. It replies to the user and returns false when it may not.
func (b *Bot) resolveChannel(ctx context.Context, chatID int64, ref string) (delivery.Channel, bool) {
	ch, err := b.session.ChannelByName(ctx, ref)
	if err != nil {
		b.log.Warn("resolve channel", "channel", ref, "error", err)
		b.reply(chatID, fmt.Sprintf("Could not access %s. Make sure the channel exists and I am a member of it.", ref))
		return delivery.Channel{}, false
	}
	if !ch.IsAdmin {
		b.reply(chatID, fmt.Sprintf("I need to be an administrator in %s to do that.", ref))
		return delivery.Channel{}, false
	}
	return ch, true
}

func (b *Bot) handleSub(ctx context.Context, chatID int64, args string) {
	ref, feedURL, err := ParseChannelArgs(args)
	if err != nil {
		b.reply(chatID, subUsage)
		return
	}

	ch, ok := b.resolveChannel(ctx, chatID, ref)
	if !ok {
		return
	}

	if feedURL == "" {
		subs, err := b.store.ListSubscriptions(ctx, ch.ID)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, FormatSubscriptionList(ref, subs))
		return
	}

	if err := ValidateFeedURL(feedURL); err != nil {
		b.reply(chatID, err.Error())
		return
	}

	id, err := b.store.AddSubscription(ctx, ch.ID, ref, feedURL)
	if err != nil {
		b.log.Error("add subscription", "channel", ref, "url", feedURL, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to save subscription: %v", err))
		return
	}
	b.log.Info("subscription added", "subscription_id", id, "channel", ref, "url", feedURL)

	b.reply(chatID, "Processing subscription...")
	out, err := b.scheduler.DeliverNow(ctx, b.session, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Subscription saved, but the first delivery failed: %v", err))
		return
	}
	b.reply(chatID, FormatSubscribeResult(ref, out))
}

func (b *Bot) handleUnsub(ctx context.Context, chatID int64, args string) {
	ref, feedURL, err := ParseChannelArgs(args)
	if err != nil || feedURL == "" {
		b.reply(chatID, unsubUsage)
		return
	}

	ch, ok := b.resolveChannel(ctx, chatID, ref)
	if !ok {
		return
	}

	removed, err := b.store.RemoveSubscription(ctx, ch.ID, feedURL)
	if err != nil {
		b.log.Error("remove subscription", "channel", ref, "url", feedURL, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if !removed {
		b.reply(chatID, fmt.Sprintf("No active subscription to %s found in %s.", feedURL, ref))
		return
	}
	b.log.Info("subscription removed", "channel", ref, "url", feedURL)
	b.reply(chatID, fmt.Sprintf("Unsubscribed %s from %s.", ref, feedURL))
}

func (b *Bot) handlePub(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	fields := strings.Fields(msg.Caption)
	if len(fields) < 2 || fields[0] != "/pub" && !strings.HasPrefix(fields[0], "/pub@") {
		b.reply(chatID, pubUsage)
		return
	}
	ref := fields[1]
	if !strings.HasPrefix(ref, "@") {
		b.reply(chatID, "Channel name must start with @.")
		return
	}
	if mt := msg.Document.MimeType; mt != "" && !strings.HasPrefix(mt, "text/") {
		b.reply(chatID, "Please send a .txt file.")
		return
	}

	ch, ok := b.resolveChannel(ctx, chatID, ref)
	if !ok {
		return
	}

	content, err := b.download(ctx, msg.Document.FileID)
	if err != nil {
		b.log.Error("download upload", "file_id", msg.Document.FileID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error reading file: %v", err))
		return
	}

	items, err := ParseUpload(content, time.Now())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	n, err := b.publisher.PublishItems(ctx, b.session, ch, items)
	if err != nil {
		b.log.Error("publish upload", "channel", ref, "published", n, "error", err)
		b.reply(chatID, fmt.Sprintf("Publishing failed after %d of %d item(s): %v", n, len(items), err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Published %d item(s) to %s.", n, ref))
}

func (b *Bot) download(ctx context.Context, fileID string) (string, error) {
	url, err := b.session.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadSize))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
