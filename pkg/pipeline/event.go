package pipeline

import "time"

// EventKind tags the platform occurrence an Event was normalized from.
type EventKind string

const (
	KindMessage     EventKind = "message"
	KindCallback    EventKind = "callback"
	KindJoinRequest EventKind = "join_request"
)

// Sender identifies who triggered an event.
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	IsBot    bool   `json:"is_bot,omitempty"`
}

// Event is one normalized inbound occurrence. The transport adapter creates
// it; stages and the engine mutate only the Actions list, which is
// append-only for the duration of one run.
type Event struct {
	ID     string    `json:"id"`
	ChatID string    `json:"chat_id"`
	Sender Sender    `json:"sender"`
	Text   string    `json:"text,omitempty"`
	Kind   EventKind `json:"kind"`
	Raw    any       `json:"-"`

	// Actions accumulates declared side effects across the run, including
	// declarations made by attempts that were later retried.
	Actions []ActionRecord `json:"actions,omitempty"`
}

// ActionRecord is one declared, deferred side effect.
type ActionRecord struct {
	Action     string         `json:"action"`
	Data       map[string]any `json:"data,omitempty"`
	Stage      string         `json:"stage"`
	DeclaredAt time.Time      `json:"declared_at"`
}
