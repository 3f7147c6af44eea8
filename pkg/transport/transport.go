// Package transport defines the chat-platform capability surface exposed to
// pipeline stages. Adapters (for example transport/telegram) satisfy
// Transport over a concrete wire protocol.
package transport

import (
	"context"
	"time"
)

// ChatInfo is the platform-agnostic subset of chat metadata stages need.
type ChatInfo struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
}

// Transport is the outbound capability handle stages receive through the
// run context. Implementations must be safe for concurrent use.
type Transport interface {
	SendMessage(ctx context.Context, chatID string, text string) error
	DeleteMessage(ctx context.Context, chatID string, messageID int) error
	EditMessage(ctx context.Context, chatID string, messageID int, text string) error

	BanMember(ctx context.Context, chatID string, userID string) error
	UnbanMember(ctx context.Context, chatID string, userID string) error
	RestrictMember(ctx context.Context, chatID string, userID string, until time.Time) error

	ApproveJoinRequest(ctx context.Context, chatID string, userID string) error
	DeclineJoinRequest(ctx context.Context, chatID string, userID string) error

	SendPoll(ctx context.Context, chatID string, question string, options []string) error
	GetChat(ctx context.Context, chatID string) (ChatInfo, error)
}
