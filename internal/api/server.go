package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/actor"
	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devset/internal/runlog"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency whose health is reported by GET /health.
// Satisfied by *database.DB, *mqtt.Client and *influxdb.Client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DeviceFactory builds a device for PUT /slots/{slot}/device.
// The returned device must not be installed yet.
type DeviceFactory func(name, protocol string) (deviceset.Device, error)

// RunSource delivers every stored run. Satisfied by *runlog.Recorder.
type RunSource interface {
	AddListener(fn func(runlog.Run))
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Actor   *actor.Actor
	Runs    runlog.Repository
	Version string

	// RunSource feeds the "run.finished" WebSocket channel. Optional.
	RunSource RunSource

	// Devices enables device replacement over HTTP. Optional.
	Devices DeviceFactory

	// Checks are reported by name in the health response. Optional.
	Checks map[string]HealthChecker
}

// Server is the HTTP API server for the device-set actor.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	actor     *actor.Actor
	runs      runlog.Repository
	runSource RunSource
	devices   DeviceFactory
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Actor == nil {
		return nil, fmt.Errorf("actor is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}

	logger := deps.Logger.Component("api")
	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    logger,
		actor:     deps.Actor,
		runs:      deps.Runs,
		runSource: deps.RunSource,
		devices:   deps.Devices,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, logger),
	}, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, routes finished runs and actor messages to it,
// and launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.wireBroadcasts()

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

// wireBroadcasts forwards runs and actor messages to WebSocket subscribers.
func (s *Server) wireBroadcasts() {
	if s.runSource != nil {
		s.runSource.AddListener(func(run runlog.Run) {
			s.hub.Broadcast(ChannelRunFinished, run)
		})
	}
	s.actor.AddMessageSink(func(m actor.Message) {
		s.hub.Broadcast(ChannelActorMessage, m)
	})
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

// HealthCheck verifies the API server is running.
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
