// Package bot wires the pipeline engine to its collaborators: the Telegram
// transport, the SQLite store behind its read cache, the hook registry, the
// recovery handler, and the action dispatcher.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"flowclaw/pkg/action"
	"flowclaw/pkg/config"
	"flowclaw/pkg/hook"
	"flowclaw/pkg/pipeline"
	"flowclaw/pkg/recovery"
	"flowclaw/pkg/storage"
	"flowclaw/pkg/transport"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
)

// Runner is a transport adapter that can feed normalized events into the
// service; *telegram.Adapter satisfies it.
type Runner interface {
	transport.Transport
	Name() string
	Run(ctx context.Context, handler pipeline.Handler) error
}

// Service owns one configured engine and processes every inbound event
// through it, dispatching declared actions afterwards.
type Service struct {
	cfg     *config.Config
	log     *slog.Logger
	engine  *pipeline.Pipeline
	hooks   *hook.Manager
	recover *recovery.Handler
	actions *action.Handler
	store   storage.Store
	adapter Runner

	mu           sync.RWMutex
	startedAt    time.Time
	processed    int64
	stopped      int64
	adapterState adapterState
}

type adapterState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Processed     int64             `json:"processed_events"`
	Stopped       int64             `json:"stopped_events"`
	Transport     adapterState      `json:"transport"`
	Pipeline      pipeline.Snapshot `json:"pipeline"`
	Actions       action.Stats      `json:"actions"`
}

// NewService assembles the engine and its collaborators. The store should
// already be wrapped in the read cache when caching is wanted.
func NewService(cfg *config.Config, adapter Runner, store storage.Store, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if adapter == nil {
		return nil, errors.New("transport adapter is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		cfg:     cfg,
		log:     log.With("component", "bot.service"),
		hooks:   hook.NewManager(log),
		recover: recovery.NewHandler(log),
		actions: action.NewHandler(log),
		store:   store,
		adapter: adapter,
	}

	if err := registerStrategies(s.recover, cfg.Pipeline.Strategies); err != nil {
		return nil, err
	}

	s.hooks.On(pipeline.HookErrorStage, s.observeStageError)

	s.engine = pipeline.New(log).
		SetHooks(s.hooks).
		SetErrorHandler(s.recover).
		Use(persistMessageStage(store)).
		Use(commandStage(s))

	registerBuiltinActions(s.actions, s.log)

	return s, nil
}

// Engine exposes the pipeline for callers that register extra stages before
// Run; stage order is fixed once processing starts.
func (s *Service) Engine() *pipeline.Pipeline {
	return s.engine
}

// Hooks exposes the lifecycle observer registry.
func (s *Service) Hooks() *hook.Manager {
	return s.hooks
}

// Actions exposes the action dispatcher registry.
func (s *Service) Actions() *action.Handler {
	return s.actions
}

// Recovery exposes the error handler for strategy registration.
func (s *Service) Recovery() *recovery.Handler {
	return s.recover
}

// registerStrategies loads per-stage recovery policies from config.
func registerStrategies(handler *recovery.Handler, entries map[string]config.StrategyConfig) error {
	for stage, entry := range entries {
		var act recovery.Action
		switch strings.ToLower(strings.TrimSpace(entry.Action)) {
		case "stop":
			act = recovery.ActionStop
		case "skip":
			act = recovery.ActionSkip
		case "retry":
			act = recovery.ActionRetry
		case "fallback":
			act = recovery.ActionFallback
		default:
			return fmt.Errorf("unknown recovery action %q for stage %q", entry.Action, stage)
		}

		handler.RegisterStrategy(stage, recovery.Strategy{
			Action:      act,
			MaxAttempts: entry.MaxAttempts,
			BackoffBase: time.Duration(entry.BackoffMs) * time.Millisecond,
		})
	}

	return nil
}

// Run starts the status server and the transport loop, blocking until the
// context is cancelled or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := ensureSchema(ctx, s.store); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	adapterErrors := make(chan error, 1)
	s.setAdapterState(adapterState{Running: true})
	go func() {
		err := s.adapter.Run(ctx, s.handleEvent)
		s.setAdapterState(adapterState{Running: false, Error: errorString(err)})
		if err != nil && !errors.Is(err, context.Canceled) {
			adapterErrors <- fmt.Errorf("run %s transport: %w", s.adapter.Name(), err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-adapterErrors:
		return err
	}
}

// handleEvent processes one normalized event: a fresh run context, one pass
// through the engine, then dispatch of every declared action.
func (s *Service) handleEvent(ctx context.Context, event *pipeline.Event) error {
	run := pipeline.NewContext(s.adapter, s.store, s.log, s.cfg.Extra)

	result := s.engine.Process(ctx, event, run)

	s.mu.Lock()
	s.processed++
	if result.Stopped {
		s.stopped++
	}
	s.mu.Unlock()

	if result.Err != nil {
		s.log.Warn("Run stopped on stage error",
			"event_id", event.ID, "stage", result.ErrStage, "error", result.Err)
	}

	s.actions.HandleAll(ctx, result.Actions, run)

	return nil
}

// observeStageError is a hook listener feeding the log from inside the run.
func (s *Service) observeStageError(_ context.Context, payload map[string]any) error {
	stage, _ := payload["stage"].(string)
	err, _ := payload["error"].(error)
	s.log.Debug("Stage raised error", "stage", stage, "error", err)
	return nil
}

func (s *Service) setAdapterState(state adapterState) {
	s.mu.Lock()
	s.adapterState = state
	s.mu.Unlock()
}

func errorString(err error) string {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}
	return err.Error()
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Health.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Health.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Processed:     s.processed,
		Stopped:       s.stopped,
		Transport:     s.adapterState,
		Pipeline:      s.engine.Inspect(),
		Actions:       s.actions.Stats(),
	}
}
