package pipeline

import (
	"context"
	"time"
)

// StageFunc is the unit-of-logic signature: it may return a Signal, an
// error, or neither (nil, nil) to continue.
type StageFunc func(ctx context.Context, event *Event, run *Context) (Signal, error)

// Handler consumes one normalized inbound event. Transport adapters call it
// for every event they produce.
type Handler func(ctx context.Context, event *Event) error

// Stage is one named unit of processing logic. The name is the stage's
// identity: strategy lookup, hook payloads, and statistics all key on it.
type Stage struct {
	Name string
	Run  StageFunc

	// Timeout bounds one invocation of Run. Zero means no deadline.
	Timeout time.Duration
}
