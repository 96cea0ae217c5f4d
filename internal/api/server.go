package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-locales/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-locales/internal/locale"
	"github.com/nerrad567/gray-logic-locales/internal/scheduler"
	"github.com/nerrad567/gray-logic-locales/internal/transport"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller runs the command protocol against the locale controller.
// *protocol.Session implements it.
type Controller interface {
	Set(ctx context.Context, name, desired string) (locale.MergeResult, error)
	Get(ctx context.Context, name string) (locale.MergeResult, error)
	GetAll(ctx context.Context) (locale.Table, error)
}

// SyncController manages periodic synchronisation. *scheduler.Scheduler
// implements it.
type SyncController interface {
	Configure(intervalSpec, destination string) error
	Stop()
	TriggerRefresh() error
	Status() scheduler.Status
}

// HistoryReader reads recorded status changes. *locale.SQLiteHistory
// implements it.
type HistoryReader interface {
	GetHistory(ctx context.Context, name string, limit int) ([]locale.HistoryEntry, error)
}

// StatsSources feeds the metrics endpoint. Every field is optional.
type StatsSources struct {
	MQTT interface {
		IsConnected() bool
	}
	Transport interface {
		Stats() transport.Stats
	}
	Relay interface {
		Processed() uint64
		Dropped() uint64
	}
	Database interface {
		Stats() sql.DBStats
	}
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Store      *locale.Store
	Controller Controller
	Sync       SyncController // optional: sync endpoints return 503 without it
	History    HistoryReader  // optional: history endpoint returns 503 without it
	Hub        *Hub           // If set, the server uses this hub instead of creating its own
	Stats      StatsSources
	Version    string
}

// Server is the HTTP API server for localectl.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	store       *locale.Store
	controller  Controller
	sync        SyncController
	history     HistoryReader
	stats       StatsSources
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("locale store is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		store:      deps.Store,
		controller: deps.Controller,
		sync:       deps.Sync,
		history:    deps.History,
		stats:      deps.Stats,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	// The relay broadcasts through the same hub, so main creates it first
	// and injects it here.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub (unless injected), and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
