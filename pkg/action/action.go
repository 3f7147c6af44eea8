// Package action implements the deferred side-effect dispatcher: stages
// declare named actions during a pipeline run and the handler executes them
// against external collaborators afterwards.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"flowclaw/pkg/pipeline"
)

// Func executes one declared action against the run's capability bundle.
type Func func(ctx context.Context, data map[string]any, run *pipeline.Context) error

// Handler is a named action-handler registry with execution statistics.
type Handler struct {
	mu       sync.Mutex
	handlers map[string]Func
	stats    Stats
	log      *slog.Logger
}

// Stats are running totals of dispatched actions.
type Stats struct {
	Total    int            `json:"total"`
	ByAction map[string]int `json:"by_action"`
	Failed   int            `json:"failed"`
}

// NewHandler constructs an empty action registry.
func NewHandler(log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		handlers: make(map[string]Func),
		stats:    newStats(),
		log:      log.With("component", "action"),
	}
}

func newStats() Stats {
	return Stats{ByAction: make(map[string]int)}
}

// Register binds a handler to an action name. A nil handler is rejected.
func (h *Handler) Register(name string, fn Func) error {
	if name == "" {
		return errors.New("action name is required")
	}
	if fn == nil {
		return fmt.Errorf("handler for action %q must be a function", name)
	}

	h.mu.Lock()
	h.handlers[name] = fn
	h.mu.Unlock()

	return nil
}

// Handle executes the handler registered for name. It reports false when no
// handler is registered (including an empty name) and propagates the
// handler's own error unchanged, so direct callers fail fast.
func (h *Handler) Handle(ctx context.Context, name string, data map[string]any, run *pipeline.Context) (bool, error) {
	h.mu.Lock()
	fn, ok := h.handlers[name]
	h.mu.Unlock()

	if !ok {
		h.log.Debug("No handler registered for action", "action", name)
		return false, nil
	}

	h.recordDispatch(name)

	if err := fn(ctx, data, run); err != nil {
		h.recordFailure()
		return true, err
	}

	return true, nil
}

// HandleAll dispatches a batch of declared actions in order. Unlike Handle,
// an individual failure is logged and the remaining records still run.
func (h *Handler) HandleAll(ctx context.Context, records []pipeline.ActionRecord, run *pipeline.Context) {
	for _, record := range records {
		handled, err := h.Handle(ctx, record.Action, record.Data, run)
		if err != nil {
			h.log.Error("Action failed", "action", record.Action, "stage", record.Stage, "error", err)
			continue
		}
		if !handled {
			h.log.Warn("Skipping unhandled action", "action", record.Action, "stage", record.Stage)
		}
	}
}

// Registered lists the registered action names.
func (h *Handler) Registered() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.handlers))
	for name := range h.handlers {
		names = append(names, name)
	}

	return names
}

// Clear removes all registered handlers.
func (h *Handler) Clear() {
	h.mu.Lock()
	h.handlers = make(map[string]Func)
	h.mu.Unlock()
}

// Stats returns a copy of the running totals.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Stats{
		Total:    h.stats.Total,
		Failed:   h.stats.Failed,
		ByAction: make(map[string]int, len(h.stats.ByAction)),
	}
	for name, count := range h.stats.ByAction {
		out.ByAction[name] = count
	}

	return out
}

// ResetStats zeroes the running totals.
func (h *Handler) ResetStats() {
	h.mu.Lock()
	h.stats = newStats()
	h.mu.Unlock()
}

func (h *Handler) recordDispatch(name string) {
	h.mu.Lock()
	h.stats.Total++
	h.stats.ByAction[name]++
	h.mu.Unlock()
}

func (h *Handler) recordFailure() {
	h.mu.Lock()
	h.stats.Failed++
	h.mu.Unlock()
}
