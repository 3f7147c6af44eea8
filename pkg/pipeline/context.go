package pipeline

import (
	"log/slog"

	"flowclaw/pkg/storage"
	"flowclaw/pkg/transport"
)

// Context is the per-run capability bundle handed to every stage. One run
// owns it exclusively: it is created fresh per event and never shared or
// reused, so the scratch state needs no locking.
type Context struct {
	Transport transport.Transport
	Storage   storage.Store
	Log       *slog.Logger
	Config    map[string]any

	state map[string]any
}

// NewContext builds a run context. A nil logger falls back to slog.Default.
func NewContext(t transport.Transport, s storage.Store, log *slog.Logger, config map[string]any) *Context {
	if log == nil {
		log = slog.Default()
	}

	return &Context{
		Transport: t,
		Storage:   s,
		Log:       log,
		Config:    config,
		state:     make(map[string]any),
	}
}

// Set stores a scratch value shared between stages of the same run.
func (c *Context) Set(key string, value any) {
	if c.state == nil {
		c.state = make(map[string]any)
	}
	c.state[key] = value
}

// Get reads a scratch value written by an earlier stage.
func (c *Context) Get(key string) (any, bool) {
	value, ok := c.state[key]
	return value, ok
}

// State returns the scratch map itself, for diagnostics and tests.
func (c *Context) State() map[string]any {
	return c.state
}
