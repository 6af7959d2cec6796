package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedrelay/internal/config"
	"feedrelay/internal/delivery"
	"feedrelay/internal/fetcher"
	"feedrelay/internal/model"
	"feedrelay/internal/storage"
)

// Scheduler runs an immediate delivery cycle for a new subscription.
type Scheduler interface {
	DeliverNow(ctx context.Context, session delivery.Session, id int64) (delivery.Outcome, error)
}

// ItemPublisher publishes ad-hoc items to a channel.
type ItemPublisher interface {
	PublishItems(ctx context.Context, session delivery.Session, ch delivery.Channel, items []model.FeedItem) (int, error)
}

// Bot handles user commands received by one session.
type Bot struct {
	session   *Session
	store     storage.Storage
	scheduler Scheduler
	publisher ItemPublisher
	cfg       *config.Config
	http      fetcher.HTTPClient
	log       *slog.Logger
}

// New creates a Bot serving commands on session.
func New(session *Session, store storage.Storage, sched Scheduler, pub ItemPublisher, cfg *config.Config, httpClient fetcher.HTTPClient) *Bot {
	return &Bot{
		session:   session,
		store:     store,
		scheduler: sched,
		publisher: pub,
		cfg:       cfg,
		http:      httpClient,
		log:       session.log,
	}
}

var commands = []tgbotapi.BotCommand{
	{Command: "start", Description: "Show the welcome message"},
	{Command: "help", Description: "List commands"},
	{Command: "sub", Description: "Subscribe a channel to a feed: /sub @channel url"},
	{Command: "unsub", Description: "Unsubscribe a channel from a feed: /unsub @channel url"},
	{Command: "pub", Description: "Publish items from an uploaded .txt file: /pub @channel"},
}

// Run registers the command menu and processes updates until ctx is
// cancelled. Each update is handled in its own goroutine, so a long /sub
// cycle does not hold up other users. Run returns once all handlers finish.
func (b *Bot) Run(ctx context.Context) {
	if _, err := b.session.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn("set commands", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.session.api.GetUpdatesChan(u)
	b.log.Info("bot started")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.session.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	isPub := msg.Document != nil && strings.HasPrefix(strings.TrimSpace(msg.Caption), "/pub")
	if !msg.IsCommand() && !isPub {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}

	if isPub {
		b.handlePub(ctx, msg)
		return
	}
	b.handleCommand(ctx, msg)
}

func (b *Bot) reply(chatID int64, text string) {
	b.session.reply(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", msg.From.ID)

	switch cmd {
	case "start":
		b.handleStart(chatID, msg.From)
	case "help":
		b.handleHelp(chatID)
	case "sub":
		b.handleSub(ctx, chatID, args)
	case "unsub":
		b.handleUnsub(ctx, chatID, args)
	case "pub":
		b.reply(chatID, pubUsage)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
