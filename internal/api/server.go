package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/gray-logic-leap/internal/audit"
	"github.com/nerrad567/gray-logic-leap/internal/automation"
	"github.com/nerrad567/gray-logic-leap/internal/bridges/lutron"
	"github.com/nerrad567/gray-logic-leap/internal/device"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceStore is the read side of the device registry.
// *device.Registry satisfies it.
type DeviceStore interface {
	ListDevices(ctx context.Context) ([]device.Device, error)
	ListByBridge(ctx context.Context, bridgeID string) ([]device.Device, error)
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	History(ctx context.Context, id string, limit int) ([]device.StateHistoryEntry, error)
	GetStats() device.Stats
}

// Bridge is the command and status surface of the lutron gateway.
// *lutron.Gateway satisfies it.
type Bridge interface {
	SubmitCommand(msg lutron.CommandMessage) error
	Sessions() []lutron.SessionStatus
	Stats() lutron.EngineStats
	Resync(ctx context.Context) int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Devices  DeviceStore
	Bridge   Bridge

	// Triggers and Linked are optional; their routes answer 503 without them.
	Triggers *automation.Registry
	Linked   *automation.LinkedRuleSet

	// Audit is optional; without it nothing is recorded and GET /audit
	// answers 503.
	Audit audit.Repository

	// Hub, if set, is used instead of creating one. The gateway needs the
	// hub before the server starts.
	Hub *Hub

	Version string
}

// Server is the admin HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	devices     DeviceStore
	bridge      Bridge
	triggers    *automation.Registry
	linked      *automation.LinkedRuleSet
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool                                // true if hub was injected externally
	tickets     *ttlcache.Cache[string, ticketEntry] // single-use WebSocket tickets
	auditRepo   audit.Repository
	auditCh     chan *audit.Entry
	auditDone   chan struct{}      // closed when the audit writer has drained
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, device store, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		devices:   deps.Devices,
		bridge:    deps.Bridge,
		triggers:  deps.Triggers,
		linked:    deps.Linked,
		version:   deps.Version,
		startTime: time.Now(),
		tickets: ttlcache.New[string, ticketEntry](
			ttlcache.WithTTL[string, ticketEntry](ticketTTL),
			ttlcache.WithDisableTouchOnHit[string, ticketEntry](),
		),
	}

	if deps.Audit != nil {
		s.auditRepo = deps.Audit
		s.auditCh = make(chan *audit.Entry, auditChanSize)
		s.auditDone = make(chan struct{})
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected), the ticket expiry loop,
// the audit writer and the HTTP listener in background goroutines. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.tickets.Start()
	if s.auditRepo != nil {
		go s.drainAuditLog(srvCtx)
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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
	s.tickets.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}

	if s.auditDone != nil {
		select {
		case <-s.auditDone:
		case <-ctx.Done():
			s.logger.Warn("audit writer did not drain before shutdown")
		}
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
