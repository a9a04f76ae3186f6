package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/fleet"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/config"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// httpReadHeaderTimeout bounds header reads on the plain HTTP endpoints.
// WebSocket connections are long-lived, so no global read/write timeouts
// are set on the server.
const httpReadHeaderTimeout = 10 * time.Second

// DeviceService is the fleet surface the protocol dispatches into.
// *fleet.Manager satisfies it; tests substitute a fake.
type DeviceService interface {
	DeviceNames() []string
	GetState(name string) (snooz.Snapshot, error)
	NoiseOn(ctx context.Context, name string, volume *int) (snooz.CommandResult, error)
	NoiseOff(ctx context.Context, name string, durationS *float64) (snooz.CommandResult, error)
	SetVolume(ctx context.Context, name string, volume int) (snooz.CommandResult, error)
	LightOn(ctx context.Context, name string) (snooz.CommandResult, error)
	LightOff(ctx context.Context, name string) (snooz.CommandResult, error)
	SetLightBrightness(ctx context.Context, name string, brightness int) (snooz.CommandResult, error)
}

// Deps holds the dependencies required by the gateway server.
type Deps struct {
	Config  config.WebSocketConfig
	Logger  *logging.Logger
	Devices DeviceService
	Version string
}

// Server is the WebSocket gateway server.
//
// It manages the HTTP listener, routes, middleware, and the connection hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	devices DeviceService
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc
}

// New creates a new gateway server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, device service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device service is required")
	}

	s := &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		devices: deps.Devices,
		version: deps.Version,
	}
	s.hub = NewHub(deps.Config, deps.Logger)

	return s, nil
}

// EventListener returns a fleet listener that broadcasts each debounced
// state-change event to every connected WebSocket client. Register it with
// the fleet manager before Start.
func (s *Server) EventListener() fleet.Listener {
	return func(_ context.Context, evt fleet.Event) error {
		s.hub.BroadcastEvent(evt)
		return nil
	}
}

// Start begins listening for connections.
//
// It builds the router, starts the hub, and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	s.logger.Info("gateway listening",
		"address", s.server.Addr,
		"path", s.cfg.Path,
		"auth", s.cfg.AuthToken != "",
	)

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the gateway.
//
// Connected clients receive a going-away close frame, then the listener
// waits up to 10 seconds for in-flight requests before forcing connections
// closed.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("gateway shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down gateway server: %w", err)
	}
	return nil
}

// HealthCheck verifies the gateway is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("gateway health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("gateway server not started")
	}

	return nil
}
