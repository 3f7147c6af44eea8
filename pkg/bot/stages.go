package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowclaw/pkg/pipeline"
	"flowclaw/pkg/recovery"
	"flowclaw/pkg/storage"
)

const messagesTable = "messages"

// ensureSchema creates the tables the built-in stages write to.
func ensureSchema(ctx context.Context, store storage.Store) error {
	_, err := store.Exec(ctx, `CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT,
		received_at TEXT NOT NULL
	)`)
	return err
}

// persistMessageStage records every inbound message through the (cached)
// store before any other stage sees it.
func persistMessageStage(store storage.Store) pipeline.Stage {
	return pipeline.Stage{
		Name: "persist_message",
		Run: func(ctx context.Context, event *pipeline.Event, _ *pipeline.Context) (pipeline.Signal, error) {
			if event.Kind != pipeline.KindMessage {
				return nil, nil
			}

			_, err := store.Insert(ctx, messagesTable, storage.Row{
				"id":          event.ID,
				"chat_id":     event.ChatID,
				"sender_id":   event.Sender.ID,
				"kind":        string(event.Kind),
				"text":        event.Text,
				"received_at": time.Now().UTC().Format(time.RFC3339Nano),
			})
			return nil, err
		},
	}
}

// commandStage answers slash commands by declaring reply actions. Unknown
// commands and plain messages pass through untouched.
func commandStage(s *Service) pipeline.Stage {
	return pipeline.Stage{
		Name: "command",
		Run: func(ctx context.Context, event *pipeline.Event, run *pipeline.Context) (pipeline.Signal, error) {
			if event.Kind != pipeline.KindMessage || !strings.HasPrefix(event.Text, "/") {
				return nil, nil
			}

			command := strings.Fields(event.Text)[0]
			switch command {
			case "/ping":
				return pipeline.DeclareAction{
					Name: "reply",
					Data: map[string]any{"chat_id": event.ChatID, "text": "pong"},
				}, nil

			case "/stats":
				text, err := statsReply(ctx, run)
				if err != nil {
					return nil, err
				}
				return pipeline.DeclareAction{
					Name: "reply",
					Data: map[string]any{"chat_id": event.ChatID, "text": text},
				}, nil

			default:
				return nil, recovery.NewValidationError("unknown command " + command)
			}
		},
	}
}

// statsReply summarizes stored message counts for the /stats command.
func statsReply(ctx context.Context, run *pipeline.Context) (string, error) {
	row, err := run.Storage.QueryOne(ctx, "SELECT COUNT(*) AS total FROM messages")
	if err != nil {
		return "", err
	}

	total := int64(0)
	if row != nil {
		if value, ok := row["total"].(int64); ok {
			total = value
		}
	}

	return fmt.Sprintf("messages stored: %d", total), nil
}
