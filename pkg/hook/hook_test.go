package hook

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestListenersRunInRegistrationOrder(t *testing.T) {
	var order []string
	m := NewManager(slog.Default()).
		On("ev", func(context.Context, map[string]any) error {
			order = append(order, "a")
			return nil
		}).
		On("ev", func(context.Context, map[string]any) error {
			order = append(order, "b")
			return errors.New("b exploded")
		}).
		On("ev", func(context.Context, map[string]any) error {
			order = append(order, "c")
			return nil
		})

	m.Emit(context.Background(), "ev", nil)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("listener order = %v, want [a b c]", order)
	}
}

func TestEmitWithoutListenersIsNoop(t *testing.T) {
	m := NewManager(slog.Default())
	m.Emit(context.Background(), "missing", map[string]any{"k": "v"})
}

func TestPayloadReachesListener(t *testing.T) {
	var got map[string]any
	m := NewManager(slog.Default()).On("ev", func(_ context.Context, payload map[string]any) error {
		got = payload
		return nil
	})

	m.Emit(context.Background(), "ev", map[string]any{"stage": "gate"})

	if got == nil || got["stage"] != "gate" {
		t.Fatalf("payload = %v, want stage=gate", got)
	}
}

func TestStatusCountsListeners(t *testing.T) {
	m := NewManager(slog.Default()).
		On("a", func(context.Context, map[string]any) error { return nil }).
		On("a", func(context.Context, map[string]any) error { return nil }).
		On("b", func(context.Context, map[string]any) error { return nil }).
		On("b", nil)

	status := m.Status()

	if status["a"] != 2 {
		t.Fatalf("status[a] = %d, want 2", status["a"])
	}
	if status["b"] != 1 {
		t.Fatalf("status[b] = %d, want 1 (nil listener ignored)", status["b"])
	}
}

func TestClearRemovesAllListeners(t *testing.T) {
	calls := 0
	m := NewManager(slog.Default()).On("ev", func(context.Context, map[string]any) error {
		calls++
		return nil
	})

	m.Clear()
	m.Emit(context.Background(), "ev", nil)

	if calls != 0 {
		t.Fatalf("listener ran %d times after Clear, want 0", calls)
	}
	if len(m.Status()) != 0 {
		t.Fatalf("status = %v, want empty", m.Status())
	}
}
