package bot

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"flowclaw/pkg/action"
	"flowclaw/pkg/pipeline"
)

// registerBuiltinActions binds the stock side effects every deployment
// gets: replying, deleting messages, moderating members, join-request
// handling, and polls. All of them execute through the run's transport.
func registerBuiltinActions(handler *action.Handler, log *slog.Logger) {
	register := func(name string, fn action.Func) {
		if err := handler.Register(name, fn); err != nil {
			log.Error("Failed to register builtin action", "action", name, "error", err)
		}
	}

	register("reply", func(ctx context.Context, data map[string]any, run *pipeline.Context) error {
		chatID, err := stringField(data, "chat_id")
		if err != nil {
			return err
		}
		text, err := stringField(data, "text")
		if err != nil {
			return err
		}
		return run.Transport.SendMessage(ctx, chatID, text)
	})

	register("delete_message", func(ctx context.Context, data map[string]any, run *pipeline.Context) error {
		chatID, err := stringField(data, "chat_id")
		if err != nil {
			return err
		}
		messageID, err := intField(data, "message_id")
		if err != nil {
			return err
		}
		return run.Transport.DeleteMessage(ctx, chatID, messageID)
	})

	register("ban_member", func(ctx context.Context, data map[string]any, run *pipeline.Context) error {
		chatID, err := stringField(data, "chat_id")
		if err != nil {
			return err
		}
		userID, err := stringField(data, "user_id")
		if err != nil {
			return err
		}
		return run.Transport.BanMember(ctx, chatID, userID)
	})

	register("approve_join", func(ctx context.Context, data map[string]any, run *pipeline.Context) error {
		chatID, err := stringField(data, "chat_id")
		if err != nil {
			return err
		}
		userID, err := stringField(data, "user_id")
		if err != nil {
			return err
		}
		return run.Transport.ApproveJoinRequest(ctx, chatID, userID)
	})

	register("decline_join", func(ctx context.Context, data map[string]any, run *pipeline.Context) error {
		chatID, err := stringField(data, "chat_id")
		if err != nil {
			return err
		}
		userID, err := stringField(data, "user_id")
		if err != nil {
			return err
		}
		return run.Transport.DeclineJoinRequest(ctx, chatID, userID)
	})

	register("send_poll", func(ctx context.Context, data map[string]any, run *pipeline.Context) error {
		chatID, err := stringField(data, "chat_id")
		if err != nil {
			return err
		}
		question, err := stringField(data, "question")
		if err != nil {
			return err
		}
		options := stringSliceField(data, "options")
		return run.Transport.SendPoll(ctx, chatID, question, options)
	})
}

func stringField(data map[string]any, key string) (string, error) {
	value, ok := data[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("action data missing %q", key)
	}
	return value, nil
}

func intField(data map[string]any, key string) (int, error) {
	switch value := data[key].(type) {
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		// JSON numbers arrive as float64; only whole values are usable IDs.
		if value != math.Trunc(value) {
			return 0, fmt.Errorf("action data missing %q", key)
		}
		return int(value), nil
	default:
		return 0, fmt.Errorf("action data missing %q", key)
	}
}

func stringSliceField(data map[string]any, key string) []string {
	switch value := data[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if text, ok := item.(string); ok {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}
