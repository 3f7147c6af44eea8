package telegram

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"flowclaw/pkg/pipeline"
)

// normalizeUpdate maps one Telegram update to a pipeline event. Updates the
// engine has no use for (edits, channel posts, non-text media) return nil.
func (a *Adapter) normalizeUpdate(update telego.Update) *pipeline.Event {
	switch {
	case update.Message != nil:
		return a.normalizeMessage(update.Message)
	case update.CallbackQuery != nil:
		return normalizeCallback(update.CallbackQuery)
	case update.ChatJoinRequest != nil:
		return normalizeJoinRequest(update.ChatJoinRequest)
	default:
		return nil
	}
}

func (a *Adapter) normalizeMessage(message *telego.Message) *pipeline.Event {
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return nil
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		// Non-text updates carry no stage-consumable payload yet.
		return nil
	}

	return &pipeline.Event{
		ID:     uuid.NewString(),
		ChatID: strconv.FormatInt(message.Chat.ID, 10),
		Sender: senderOf(*message.From),
		Text:   text,
		Kind:   pipeline.KindMessage,
		Raw:    message,
	}
}

func normalizeCallback(callback *telego.CallbackQuery) *pipeline.Event {
	event := &pipeline.Event{
		ID:     uuid.NewString(),
		Sender: senderOf(callback.From),
		Text:   strings.TrimSpace(callback.Data),
		Kind:   pipeline.KindCallback,
		Raw:    callback,
	}
	if callback.Message != nil {
		event.ChatID = strconv.FormatInt(callback.Message.GetChat().ID, 10)
	}

	return event
}

func normalizeJoinRequest(request *telego.ChatJoinRequest) *pipeline.Event {
	return &pipeline.Event{
		ID:     uuid.NewString(),
		ChatID: strconv.FormatInt(request.Chat.ID, 10),
		Sender: senderOf(request.From),
		Kind:   pipeline.KindJoinRequest,
		Raw:    request,
	}
}

func senderOf(user telego.User) pipeline.Sender {
	return pipeline.Sender{
		ID:       strconv.FormatInt(user.ID, 10),
		Username: user.Username,
		IsBot:    user.IsBot,
	}
}
