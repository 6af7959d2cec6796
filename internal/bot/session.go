package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedrelay/internal/delivery"
)

const maxCaptionLen = 1024

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Session is one authenticated Telegram bot. It implements delivery.Session.
type Session struct {
	api    telegramAPI
	selfID int64
	name   string
	log    *slog.Logger
}

// Dial authenticates with token and returns the bot's session.
func Dial(token string, log *slog.Logger) (*Session, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 90 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Session{
		api:    api,
		selfID: api.Self.ID,
		name:   api.Self.UserName,
		log:    log.With("bot", api.Self.UserName),
	}, nil
}

// Name returns the bot's username.
func (s *Session) Name() string {
	return s.name
}

// Channel looks up a channel by numeric ID.
func (s *Session) Channel(_ context.Context, channelID int64) (delivery.Channel, error) {
	return s.channel(tgbotapi.ChatConfig{ChatID: channelID})
}

// ChannelByName looks up a channel by its @username.
func (s *Session) ChannelByName(_ context.Context, username string) (delivery.Channel, error) {
	return s.channel(tgbotapi.ChatConfig{SuperGroupUsername: username})
}

func (s *Session) channel(ref tgbotapi.ChatConfig) (delivery.Channel, error) {
	chat, err := s.api.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: ref})
	if err != nil {
		return delivery.Channel{}, fmt.Errorf("get chat: %w", err)
	}

	member, err := s.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chat.ID, UserID: s.selfID},
	})
	if err != nil {
		return delivery.Channel{}, fmt.Errorf("get chat member: %w", err)
	}

	return delivery.Channel{
		ID:       chat.ID,
		Title:    chat.Title,
		Username: chat.UserName,
		IsAdmin:  member.IsCreator() || member.IsAdministrator(),
	}, nil
}

// SendText posts a plain message to the channel.
func (s *Session) SendText(_ context.Context, channelID int64, text string) error {
	msg := tgbotapi.NewMessage(channelID, text)
	if _, err := s.api.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// SendPhoto posts photoURL with caption to the channel. Captions longer than
// Telegram allows are cut.
func (s *Session) SendPhoto(_ context.Context, channelID int64, photoURL, caption string) error {
	photo := tgbotapi.NewPhoto(channelID, tgbotapi.FileURL(photoURL))
	photo.Caption = truncateRunes(caption, maxCaptionLen)
	if _, err := s.api.Send(photo); err != nil {
		return classify(err)
	}
	return nil
}

// reply answers a user in a private chat. Failures are only logged.
func (s *Session) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		s.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// classify turns Telegram's rate limit rejection into a
// delivery.FloodControlError.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0) {
		return &delivery.FloodControlError{
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	return err
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
