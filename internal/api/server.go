package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/bridge"
	"github.com/nerrad567/gray-logic-relay/internal/health"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/journal"
	"github.com/nerrad567/gray-logic-relay/internal/link"
	"github.com/nerrad567/gray-logic-relay/internal/queue"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthSource provides the latest health snapshot.
type HealthSource interface {
	Snapshot() health.Snapshot
}

// StatsSource provides bridge counters.
type StatsSource interface {
	Stats() bridge.Stats
}

// EventLister queries the event journal.
type EventLister interface {
	List(ctx context.Context, f journal.Filter) (*journal.ListResult, error)
}

// LinkSource is a link reported by /api/v1/metrics.
type LinkSource interface {
	Name() string
	State() link.State
	Since() time.Time
	Delivered() uint64
	Outbound() *queue.Queue
}

// SocketEndpoint is a server-role socket link accepting its peer on Path.
type SocketEndpoint interface {
	http.Handler
	Name() string
	Path() string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Version string

	Health HealthSource
	Bridge StatsSource

	// Links are reported in /api/v1/metrics, broker first.
	Links []LinkSource

	// Sockets are mounted at their paths.
	Sockets []SocketEndpoint

	// Journal is optional; /api/v1/events answers 404 without it.
	Journal EventLister

	// Prometheus is optional; /metrics is not mounted without it.
	Prometheus http.Handler
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	version    string
	health     HealthSource
	bridge     StatsSource
	links      []LinkSource
	sockets    []SocketEndpoint
	journal    EventLister
	prometheus http.Handler
	startTime  time.Time
	server     *http.Server
	addr       net.Addr
}

// New creates an API server. It is not listening until Start is called.
//
// Parameters:
//   - deps: Logger, Health and Bridge are required
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("health source is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge stats source is required")
	}

	seen := make(map[string]string, len(deps.Sockets))
	for _, s := range deps.Sockets {
		if other, dup := seen[s.Path()]; dup {
			return nil, fmt.Errorf("socket links %q and %q share path %s", other, s.Name(), s.Path())
		}
		seen[s.Path()] = s.Name()
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		version:    deps.Version,
		health:     deps.Health,
		bridge:     deps.Bridge,
		links:      deps.Links,
		sockets:    deps.Sockets,
		journal:    deps.Journal,
		prometheus: deps.Prometheus,
		startTime:  time.Now(),
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. Binding
// errors (port in use) are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.addr = ln.Addr()

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", s.addr.String(), "sockets", len(s.sockets))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Close gracefully shuts down the API server. Hijacked WebSocket
// connections are not tracked by http.Server and are closed by their links.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
