package recovery

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Action is the resolution the handler returns for a failing stage.
type Action string

const (
	ActionStop     Action = "stop"
	ActionSkip     Action = "skip"
	ActionRetry    Action = "retry"
	ActionFallback Action = "fallback"
)

// Decision pairs a resolution action with a diagnostic reason.
type Decision struct {
	Action Action
	Reason string
}

// Strategy is a per-stage recovery policy. MaxAttempts and BackoffBase only
// apply when Action is ActionRetry; MaxAttempts counts the first invocation.
type Strategy struct {
	Action      Action
	MaxAttempts int
	BackoffBase time.Duration
}

// DefaultMaxAttempts bounds retry strategies that omit MaxAttempts.
const DefaultMaxAttempts = 3

// RunInfo carries per-run bookkeeping into Handle. Attempt is the number of
// times the stage has been invoked so far, counted from 1.
type RunInfo struct {
	Attempt int
}

// KindHandler resolves one error kind to a decision. Registered handlers
// override the built-in resolution table.
type KindHandler func(err *Error, stage string, info RunInfo) Decision

// Handler maps a failing stage and its error to a recovery decision, and
// keeps running failure statistics.
//
// Resolution order: a strategy registered for the stage name governs any
// error that stage raises, regardless of kind. Only when no stage strategy
// exists does the handler dispatch on the error's kind.
type Handler struct {
	mu           sync.Mutex
	strategies   map[string]Strategy
	kindHandlers map[Kind]KindHandler
	stats        Stats
	log          *slog.Logger
}

// Stats are running totals of handled errors.
type Stats struct {
	Total   int            `json:"total"`
	ByKind  map[string]int `json:"by_kind"`
	ByStage map[string]int `json:"by_stage"`
}

// NewHandler constructs a handler with the built-in kind resolution table
// and no stage strategies.
func NewHandler(log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		strategies:   make(map[string]Strategy),
		kindHandlers: make(map[Kind]KindHandler),
		stats:        newStats(),
		log:          log.With("component", "recovery"),
	}
}

func newStats() Stats {
	return Stats{
		ByKind:  make(map[string]int),
		ByStage: make(map[string]int),
	}
}

// RegisterStrategy installs a per-stage policy. A retry strategy with no
// attempt bound gets DefaultMaxAttempts.
func (h *Handler) RegisterStrategy(stage string, strategy Strategy) *Handler {
	if strategy.Action == ActionRetry && strategy.MaxAttempts <= 0 {
		strategy.MaxAttempts = DefaultMaxAttempts
	}

	h.mu.Lock()
	h.strategies[stage] = strategy
	h.mu.Unlock()

	return h
}

// RegisterKindHandler overrides the built-in resolution for one error kind.
func (h *Handler) RegisterKindHandler(kind Kind, handler KindHandler) *Handler {
	if handler == nil {
		return h
	}

	h.mu.Lock()
	h.kindHandlers[kind] = handler
	h.mu.Unlock()

	return h
}

// Strategy returns the policy registered for a stage, if any.
func (h *Handler) Strategy(stage string) (Strategy, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	strategy, ok := h.strategies[stage]
	return strategy, ok
}

// Handle resolves a stage failure to a decision and records it in the
// statistics. It never returns an unbounded retry: the caller enforces the
// strategy's MaxAttempts.
func (h *Handler) Handle(err error, stage string, info RunInfo) Decision {
	kind := KindOf(err)
	h.record(kind, stage)

	h.mu.Lock()
	strategy, hasStrategy := h.strategies[stage]
	custom, hasCustom := h.kindHandlers[kind]
	h.mu.Unlock()

	// A stage strategy wins over kind dispatch so an operator can pin one
	// behavior for a stage no matter what it raises.
	if hasStrategy {
		return h.decideFromStrategy(strategy)
	}

	if hasCustom {
		var categorized *Error
		if !errors.As(err, &categorized) {
			categorized = &Error{Kind: kind, Err: err}
		}
		return custom(categorized, stage, info)
	}

	return h.decideFromKind(err, kind)
}

func (h *Handler) decideFromStrategy(strategy Strategy) Decision {
	switch strategy.Action {
	case ActionRetry:
		return Decision{Action: ActionRetry, Reason: "stage_strategy"}
	case ActionSkip:
		return Decision{Action: ActionSkip, Reason: "stage_strategy"}
	case ActionFallback:
		return Decision{Action: ActionFallback, Reason: "stage_strategy"}
	default:
		return Decision{Action: ActionStop, Reason: "stage_strategy"}
	}
}

func (h *Handler) decideFromKind(err error, kind Kind) Decision {
	switch kind {
	case KindDatabase:
		switch CodeOf(err) {
		case CodeConnRefused:
			return Decision{Action: ActionStop, Reason: "db_connection_failed"}
		case CodeQueryCancelled:
			return Decision{Action: ActionSkip, Reason: "db_timeout"}
		default:
			return Decision{Action: ActionSkip, Reason: "db_error"}
		}
	case KindValidation:
		return Decision{Action: ActionSkip, Reason: "validation_failed"}
	case KindStage:
		// A stage error with no registered strategy has nothing to defer to.
		return Decision{Action: ActionStop, Reason: "no_strategy"}
	default:
		return Decision{Action: ActionStop, Reason: "unknown_error"}
	}
}

func (h *Handler) record(kind Kind, stage string) {
	h.mu.Lock()
	h.stats.Total++
	h.stats.ByKind[string(kind)]++
	h.stats.ByStage[stage]++
	h.mu.Unlock()
}

// Stats returns a copy of the running totals.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := Stats{
		Total:   h.stats.Total,
		ByKind:  make(map[string]int, len(h.stats.ByKind)),
		ByStage: make(map[string]int, len(h.stats.ByStage)),
	}
	for k, v := range h.stats.ByKind {
		out.ByKind[k] = v
	}
	for k, v := range h.stats.ByStage {
		out.ByStage[k] = v
	}

	return out
}

// ResetStats zeroes the running totals.
func (h *Handler) ResetStats() {
	h.mu.Lock()
	h.stats = newStats()
	h.mu.Unlock()
}
