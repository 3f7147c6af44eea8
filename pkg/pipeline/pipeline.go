// Package pipeline implements the event processing engine: an ordered
// sequence of named stages run one at a time per event, with structured
// error recovery (stop/skip/retry/fallback), lifecycle hooks around every
// stage and around the whole run, and deferred action accumulation.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"flowclaw/pkg/hook"
	"flowclaw/pkg/recovery"
)

// Lifecycle hook names emitted by Process.
const (
	HookBeforePipeline = "before:pipeline"
	HookAfterPipeline  = "after:pipeline"
	HookBeforeStage    = "before:stage"
	HookAfterStage     = "after:stage"
	HookErrorStage     = "error:stage"
)

// MetadataReasonKey is the result metadata key carrying a stop reason.
const MetadataReasonKey = "reason"

// Result is the terminal outcome of processing one event.
type Result struct {
	Stopped  bool           `json:"stopped"`
	Actions  []ActionRecord `json:"actions,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Err      error          `json:"-"`
	ErrStage string         `json:"error_stage,omitempty"`
}

// Snapshot is the diagnostic view returned by Inspect. It is not consulted
// by the execution loop.
type Snapshot struct {
	StageCount   int            `json:"stage_count"`
	Stages       []string       `json:"stages"`
	HasHooks     bool           `json:"has_hooks"`
	HasRecovery  bool           `json:"has_recovery"`
	HookStatus   map[string]int `json:"hook_status,omitempty"`
	RecoveryInfo recovery.Stats `json:"recovery_stats,omitempty"`
}

// Pipeline orchestrates the stage sequence for incoming events. Hooks and
// the error handler are optional collaborators; without an error handler a
// failing stage is logged and skipped.
type Pipeline struct {
	stages []Stage
	hooks  *hook.Manager
	errors *recovery.Handler
	log    *slog.Logger
}

// New constructs an empty pipeline.
func New(log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{log: log.With("component", "pipeline")}
}

// Use appends a stage to the execution sequence. Returns the pipeline for
// chaining. Stages with no name or no func are ignored.
func (p *Pipeline) Use(stage Stage) *Pipeline {
	if stage.Name == "" || stage.Run == nil {
		p.log.Warn("Ignoring unusable stage", "stage", stage.Name)
		return p
	}

	p.stages = append(p.stages, stage)
	return p
}

// SetHooks attaches the lifecycle observer registry.
func (p *Pipeline) SetHooks(hooks *hook.Manager) *Pipeline {
	p.hooks = hooks
	return p
}

// SetErrorHandler attaches the recovery policy handler.
func (p *Pipeline) SetErrorHandler(handler *recovery.Handler) *Pipeline {
	p.errors = handler
	return p
}

// Process runs every stage in registration order for one event. A stage
// fault never escapes: it is resolved to stop/skip/retry/fallback and at
// worst marks the result stopped with diagnostic fields set.
func (p *Pipeline) Process(ctx context.Context, event *Event, run *Context) Result {
	result := Result{Metadata: make(map[string]any)}

	p.emit(ctx, HookBeforePipeline, map[string]any{"event": event})

	for _, stage := range p.stages {
		p.runStage(ctx, stage, event, run, &result)
		if result.Stopped {
			break
		}
	}

	p.emit(ctx, HookAfterPipeline, map[string]any{"event": event, "result": &result})

	return result
}

// runStage owns one logical slot in the sequence: it invokes the stage,
// resolves faults, and loops retry attempts until the stage continues,
// stops, or exhausts its budget.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, event *Event, run *Context, result *Result) {
	p.emit(ctx, HookBeforeStage, map[string]any{"event": event, "stage": stage.Name})

	for attempt := 1; ; attempt++ {
		signal, err := p.invoke(ctx, stage, event, run)

		if err == nil {
			if declare, ok := signal.(DeclareAction); ok {
				p.appendAction(event, result, stage.Name, declare)
			}

			p.emit(ctx, HookAfterStage, map[string]any{"event": event, "stage": stage.Name, "signal": signal})

			if stop, ok := signal.(Stop); ok {
				result.Stopped = true
				if stop.Reason != "" {
					result.Metadata[MetadataReasonKey] = stop.Reason
				}
				for key, value := range stop.Metadata {
					result.Metadata[key] = value
				}
			}
			return
		}

		p.emit(ctx, HookErrorStage, map[string]any{"event": event, "stage": stage.Name, "error": err})

		if p.errors == nil {
			p.log.Error("Stage failed without error handler, skipping", "stage", stage.Name, "error", err)
			return
		}

		decision := p.errors.Handle(err, stage.Name, recovery.RunInfo{Attempt: attempt})
		p.log.Debug("Stage failure resolved", "stage", stage.Name, "attempt", attempt, "action", decision.Action, "reason", decision.Reason)

		switch decision.Action {
		case recovery.ActionSkip:
			return

		case recovery.ActionFallback:
			result.Metadata["fallback_"+stage.Name] = nil
			return

		case recovery.ActionRetry:
			strategy, _ := p.errors.Strategy(stage.Name)
			maxAttempts := strategy.MaxAttempts
			if maxAttempts <= 0 {
				maxAttempts = recovery.DefaultMaxAttempts
			}
			// Single canonical retry rule: invoke the stage at most
			// maxAttempts times total, then force a stop.
			if attempt >= maxAttempts {
				p.stopOnError(result, stage.Name, err, "max_retries")
				return
			}
			if waitErr := waitBackoff(ctx, strategy.BackoffBase*time.Duration(attempt)); waitErr != nil {
				p.stopOnError(result, stage.Name, waitErr, "cancelled")
				return
			}

		default:
			p.stopOnError(result, stage.Name, err, decision.Reason)
			return
		}
	}
}

// invoke runs the stage once, wrapping it in the per-stage deadline when one
// is configured.
func (p *Pipeline) invoke(ctx context.Context, stage Stage, event *Event, run *Context) (Signal, error) {
	if stage.Timeout > 0 {
		deadlineCtx, cancel := context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
		return stage.Run(deadlineCtx, event, run)
	}

	return stage.Run(ctx, event, run)
}

// appendAction records a declared side effect on both the event and the
// result so the two lists stay synchronized.
func (p *Pipeline) appendAction(event *Event, result *Result, stageName string, declare DeclareAction) {
	record := ActionRecord{
		Action:     declare.Name,
		Data:       declare.Data,
		Stage:      stageName,
		DeclaredAt: time.Now().UTC(),
	}
	event.Actions = append(event.Actions, record)
	result.Actions = append(result.Actions, record)
}

func (p *Pipeline) stopOnError(result *Result, stageName string, err error, reason string) {
	result.Stopped = true
	result.Err = err
	result.ErrStage = stageName
	if reason != "" {
		result.Metadata[MetadataReasonKey] = reason
	}
}

func (p *Pipeline) emit(ctx context.Context, name string, payload map[string]any) {
	if p.hooks == nil {
		return
	}
	p.hooks.Emit(ctx, name, payload)
}

// waitBackoff suspends only the current run for the given delay.
func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Inspect returns a diagnostic snapshot for health and debug endpoints.
func (p *Pipeline) Inspect() Snapshot {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name
	}

	snapshot := Snapshot{
		StageCount:  len(p.stages),
		Stages:      names,
		HasHooks:    p.hooks != nil,
		HasRecovery: p.errors != nil,
	}
	if p.hooks != nil {
		snapshot.HookStatus = p.hooks.Status()
	}
	if p.errors != nil {
		snapshot.RecoveryInfo = p.errors.Stats()
	}

	return snapshot
}
