// Package telegram bridges the Telegram Bot API into FlowClaw: it satisfies
// the transport.Transport capability surface and normalizes long-polling
// updates into pipeline events.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"flowclaw/pkg/config"
	"flowclaw/pkg/pipeline"
	"flowclaw/pkg/transport"
)

const adapterName = "telegram"
const messagePreviewLimit = 240

// Adapter runs Telegram long polling and exposes the Bot API as a
// transport.Transport.
type Adapter struct {
	cfg       config.TelegramConfig
	bot       *telego.Bot
	allowFrom map[string]struct{}
	log       *slog.Logger
}

var _ transport.Transport = (*Adapter)(nil)

// NewAdapter validates Telegram configuration and constructs an adapter.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Adapter{
		cfg:       cfg,
		bot:       bot,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "transport.telegram"),
	}, nil
}

// Name returns the adapter identifier used in logs.
func (a *Adapter) Name() string {
	return adapterName
}

// Run starts long polling and forwards each normalized event to handler.
func (a *Adapter) Run(ctx context.Context, handler pipeline.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram transport started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			event := a.normalizeUpdate(update)
			if event == nil {
				continue
			}
			if !a.senderAllowed(event.Sender.ID) {
				a.log.Debug("Ignoring event from unauthorized sender", "sender_id", event.Sender.ID)
				continue
			}

			a.log.Info("Received event",
				"kind", event.Kind, "chat_id", event.ChatID,
				"sender_id", event.Sender.ID, "text", previewText(event.Text))

			if err := handler(ctx, event); err != nil {
				a.log.Error("Failed to process inbound event", "kind", event.Kind, "error", err)
			}
		}
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

func chatIDOf(raw string) (telego.ChatID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid chat id %q: %w", raw, err)
	}

	return tu.ID(id), nil
}

func userIDOf(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", raw, err)
	}

	return id, nil
}

func (a *Adapter) SendMessage(ctx context.Context, chatID string, text string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}

	_, err = a.bot.SendMessage(ctx, tu.Message(id, text))
	return err
}

func (a *Adapter) DeleteMessage(ctx context.Context, chatID string, messageID int) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}

	return a.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: id, MessageID: messageID})
}

func (a *Adapter) EditMessage(ctx context.Context, chatID string, messageID int, text string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}

	_, err = a.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    id,
		MessageID: messageID,
		Text:      text,
	})
	return err
}

func (a *Adapter) BanMember(ctx context.Context, chatID string, userID string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}
	uid, err := userIDOf(userID)
	if err != nil {
		return err
	}

	return a.bot.BanChatMember(ctx, &telego.BanChatMemberParams{ChatID: id, UserID: uid})
}

func (a *Adapter) UnbanMember(ctx context.Context, chatID string, userID string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}
	uid, err := userIDOf(userID)
	if err != nil {
		return err
	}

	return a.bot.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{ChatID: id, UserID: uid})
}

func (a *Adapter) RestrictMember(ctx context.Context, chatID string, userID string, until time.Time) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}
	uid, err := userIDOf(userID)
	if err != nil {
		return err
	}

	return a.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID:      id,
		UserID:      uid,
		Permissions: telego.ChatPermissions{},
		UntilDate:   until.Unix(),
	})
}

func (a *Adapter) ApproveJoinRequest(ctx context.Context, chatID string, userID string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}
	uid, err := userIDOf(userID)
	if err != nil {
		return err
	}

	return a.bot.ApproveChatJoinRequest(ctx, &telego.ApproveChatJoinRequestParams{ChatID: id, UserID: uid})
}

func (a *Adapter) DeclineJoinRequest(ctx context.Context, chatID string, userID string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}
	uid, err := userIDOf(userID)
	if err != nil {
		return err
	}

	return a.bot.DeclineChatJoinRequest(ctx, &telego.DeclineChatJoinRequestParams{ChatID: id, UserID: uid})
}

func (a *Adapter) SendPoll(ctx context.Context, chatID string, question string, options []string) error {
	id, err := chatIDOf(chatID)
	if err != nil {
		return err
	}

	pollOptions := make([]telego.InputPollOption, 0, len(options))
	for _, option := range options {
		pollOptions = append(pollOptions, telego.InputPollOption{Text: option})
	}

	_, err = a.bot.SendPoll(ctx, &telego.SendPollParams{
		ChatID:   id,
		Question: question,
		Options:  pollOptions,
	})
	return err
}

func (a *Adapter) GetChat(ctx context.Context, chatID string) (transport.ChatInfo, error) {
	id, err := chatIDOf(chatID)
	if err != nil {
		return transport.ChatInfo{}, err
	}

	chat, err := a.bot.GetChat(ctx, &telego.GetChatParams{ChatID: id})
	if err != nil {
		return transport.ChatInfo{}, err
	}

	info := transport.ChatInfo{
		ID:    strconv.FormatInt(chat.ID, 10),
		Type:  chat.Type,
		Title: chat.Title,
	}

	if count, err := a.bot.GetChatMemberCount(ctx, &telego.GetChatMemberCountParams{ChatID: id}); err == nil && count != nil {
		info.MemberCount = *count
	}

	return info, nil
}
