package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestDatabaseErrorResolution(t *testing.T) {
	h := NewHandler(slog.Default())

	for _, tc := range []struct {
		code       string
		wantAction Action
		wantReason string
	}{
		{CodeConnRefused, ActionStop, "db_connection_failed"},
		{CodeQueryCancelled, ActionSkip, "db_timeout"},
		{"SOME_OTHER", ActionSkip, "db_error"},
		{"", ActionSkip, "db_error"},
	} {
		decision := h.Handle(NewDatabaseError(tc.code, errors.New("db down")), "unregistered", RunInfo{Attempt: 1})
		if decision.Action != tc.wantAction || decision.Reason != tc.wantReason {
			t.Fatalf("code %q resolved to %+v, want %s/%s", tc.code, decision, tc.wantAction, tc.wantReason)
		}
	}
}

func TestValidationErrorSkips(t *testing.T) {
	h := NewHandler(slog.Default())

	decision := h.Handle(NewValidationError("bad payload"), "anywhere", RunInfo{Attempt: 1})

	if decision.Action != ActionSkip || decision.Reason != "validation_failed" {
		t.Fatalf("decision = %+v, want skip/validation_failed", decision)
	}
}

func TestStageErrorWithoutStrategyStops(t *testing.T) {
	h := NewHandler(slog.Default())

	decision := h.Handle(NewStageError("stage blew up", nil), "unregistered", RunInfo{Attempt: 1})

	if decision.Action != ActionStop || decision.Reason != "no_strategy" {
		t.Fatalf("decision = %+v, want stop/no_strategy", decision)
	}
}

func TestUnknownErrorStops(t *testing.T) {
	h := NewHandler(slog.Default())

	decision := h.Handle(errors.New("mystery"), "anywhere", RunInfo{Attempt: 1})

	if decision.Action != ActionStop || decision.Reason != "unknown_error" {
		t.Fatalf("decision = %+v, want stop/unknown_error", decision)
	}
}

func TestStageStrategyOverridesKindDispatch(t *testing.T) {
	h := NewHandler(slog.Default())
	h.RegisterStrategy("resilient", Strategy{Action: ActionRetry, MaxAttempts: 5})

	// Even a connection failure, which would normally stop the run, retries
	// when the stage has a pinned strategy.
	decision := h.Handle(NewDatabaseError(CodeConnRefused, errors.New("refused")), "resilient", RunInfo{Attempt: 1})

	if decision.Action != ActionRetry {
		t.Fatalf("decision = %+v, want retry", decision)
	}
}

func TestRetryStrategyDefaultsMaxAttempts(t *testing.T) {
	h := NewHandler(slog.Default())
	h.RegisterStrategy("flakey", Strategy{Action: ActionRetry})

	strategy, ok := h.Strategy("flakey")
	if !ok {
		t.Fatal("expected strategy to be registered")
	}
	if strategy.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("max attempts = %d, want %d", strategy.MaxAttempts, DefaultMaxAttempts)
	}
}

func TestCustomKindHandlerOverridesBuiltin(t *testing.T) {
	h := NewHandler(slog.Default())
	h.RegisterKindHandler(KindValidation, func(err *Error, stage string, info RunInfo) Decision {
		return Decision{Action: ActionStop, Reason: "strict_validation"}
	})

	decision := h.Handle(NewValidationError("nope"), "anywhere", RunInfo{Attempt: 1})

	if decision.Action != ActionStop || decision.Reason != "strict_validation" {
		t.Fatalf("decision = %+v, want stop/strict_validation", decision)
	}
}

func TestStatsTracking(t *testing.T) {
	h := NewHandler(slog.Default())

	h.Handle(NewValidationError("one"), "stageA", RunInfo{Attempt: 1})
	h.Handle(NewValidationError("two"), "stageA", RunInfo{Attempt: 1})
	h.Handle(errors.New("other"), "stageB", RunInfo{Attempt: 1})

	stats := h.Stats()
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByKind[string(KindValidation)] != 2 {
		t.Fatalf("by kind = %v", stats.ByKind)
	}
	if stats.ByStage["stageA"] != 2 || stats.ByStage["stageB"] != 1 {
		t.Fatalf("by stage = %v", stats.ByStage)
	}

	h.ResetStats()
	if h.Stats().Total != 0 {
		t.Fatalf("total after reset = %d, want 0", h.Stats().Total)
	}
}

func TestKindOfWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("saving message: %w", NewDatabaseError(CodeQueryCancelled, errors.New("cancelled")))

	if kind := KindOf(wrapped); kind != KindDatabase {
		t.Fatalf("kind = %q, want %q", kind, KindDatabase)
	}
	if code := CodeOf(wrapped); code != CodeQueryCancelled {
		t.Fatalf("code = %q, want %q", code, CodeQueryCancelled)
	}
	if kind := KindOf(errors.New("plain")); kind != KindUnknown {
		t.Fatalf("kind = %q, want %q", kind, KindUnknown)
	}
}
