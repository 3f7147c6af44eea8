package hook

import (
	"context"
	"log/slog"
	"sync"
)

// Listener observes one named lifecycle hook. Listeners are pure observers:
// the payload is shared read-only data and a returned error never reaches
// the code that emitted the hook.
type Listener func(ctx context.Context, payload map[string]any) error

// Manager is a named-hook observer registry. Multiple listeners may be
// registered per hook name; Emit invokes them sequentially in registration
// order and swallows listener errors so observation can never change a
// pipeline run's outcome.
type Manager struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	log       *slog.Logger
}

// NewManager constructs an empty hook registry.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		listeners: make(map[string][]Listener),
		log:       log.With("component", "hook"),
	}
}

// On registers a listener for the given hook name. Returns the manager for
// chaining. A nil listener is ignored.
func (m *Manager) On(name string, listener Listener) *Manager {
	if listener == nil {
		return m
	}

	m.mu.Lock()
	m.listeners[name] = append(m.listeners[name], listener)
	m.mu.Unlock()

	return m
}

// Emit invokes every listener registered for name, in registration order,
// waiting for each to finish before calling the next. A listener error is
// logged and the remaining listeners still run.
func (m *Manager) Emit(ctx context.Context, name string, payload map[string]any) {
	m.mu.RLock()
	registered := m.listeners[name]
	listeners := make([]Listener, len(registered))
	copy(listeners, registered)
	m.mu.RUnlock()

	for _, listener := range listeners {
		if err := listener(ctx, payload); err != nil {
			m.log.Warn("Hook listener failed", "hook", name, "error", err)
		}
	}
}

// Status reports the number of listeners registered per hook name.
func (m *Manager) Status() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]int, len(m.listeners))
	for name, listeners := range m.listeners {
		status[name] = len(listeners)
	}

	return status
}

// Clear removes all registered listeners.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.listeners = make(map[string][]Listener)
	m.mu.Unlock()
}
