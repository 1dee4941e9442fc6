// Package daemon assembles the Session Runtime, Message Hub, Session
// Manager, and Recurring Job Scheduler into one running process and serves
// them over a WebSocket listener. It is the thin hosting binary's only
// collaborator — cmd/agentd just calls Run.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/flowlane/agentd/internal/common/config"
	"github.com/flowlane/agentd/internal/common/logger"
	"github.com/flowlane/agentd/internal/db"
	"github.com/flowlane/agentd/internal/events"
	"github.com/flowlane/agentd/internal/hub"
	"github.com/flowlane/agentd/internal/sdk"
	"github.com/flowlane/agentd/internal/scheduler"
	"github.com/flowlane/agentd/internal/sessionmgr"
	"github.com/flowlane/agentd/internal/store"
	"github.com/flowlane/agentd/internal/store/sqlite"
	v1 "github.com/flowlane/agentd/pkg/api/v1"
	"github.com/flowlane/agentd/pkg/websocket"
)

// Daemon owns every long-lived collaborator and the process's WebSocket
// listener.
type Daemon struct {
	cfg      *config.Config
	log      *logger.Logger
	pool     *db.Pool
	busClose func() error

	hub      *hub.Hub
	sched    *scheduler.Scheduler
	mgr      *sessionmgr.Manager
	handlers *Handlers
	upgrader *websocket.Upgrader

	srv *http.Server
}

// New builds a Daemon from cfg, wiring every collaborator but not yet
// listening.
func New(cfg *config.Config) (*Daemon, error) {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	logger.SetDefault(log)

	pool, err := openPool(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlite.EnsureSchema(context.Background(), pool); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	repo := sqlite.NewRepository(pool)

	providedBus, busClose, err := events.Provide(cfg, log)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to provision event bus: %w", err)
	}

	h := hub.New(hub.Config{
		DedupCacheSize:       cfg.Hub.DedupCacheSize,
		DedupCacheTTL:        cfg.Hub.DedupCacheTTL(),
		DedupSweepInterval:   cfg.Hub.DedupCacheTTL() / 2,
		GlobalAutoSubscribe:  v1.DefaultGlobalAutoSubscribe,
		SessionAutoSubscribe: v1.DefaultSessionAutoSubscribe,
	}, providedBus.Bus, log)

	var st store.Store = repo
	sched := scheduler.New(st, h.Publish, log)
	mgr := sessionmgr.New(st, sdk.NewMockFactory(), h.Publish, nil, log)

	handlers := NewHandlers(mgr, st, sched, log)
	handlers.RegisterAll(h)

	d := &Daemon{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		busClose: busClose,
		hub:      h,
		sched:    sched,
		mgr:      mgr,
		handlers: handlers,
		upgrader: websocket.NewUpgrader(nil),
	}
	return d, nil
}

// openPool opens the writer/reader connections named by cfg and bridges
// their stdlib *sql.DB handles into the sqlx.DB pair internal/db.Pool
// expects.
func openPool(cfg config.DatabaseConfig) (*db.Pool, error) {
	switch cfg.Driver {
	case "", "sqlite":
		writer, err := db.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		reader, err := db.OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		return db.NewPool(sqlx.NewDb(writer, "sqlite3"), sqlx.NewDb(reader, "sqlite3")), nil

	case "postgres":
		conn, err := db.OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, err
		}
		sqlxConn := sqlx.NewDb(conn, "pgx")
		return db.NewPool(sqlxConn, sqlxConn), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Run starts the scheduler and WebSocket listener and blocks until ctx is
// cancelled or the process receives SIGINT/SIGTERM, then shuts everything
// down in reverse wiring order.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.sched.Start(ctx); err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.serveWS)
	d.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", d.cfg.Server.Host, d.cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  d.cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: d.cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		d.log.Info("listening", zap.String("addr", d.srv.Addr))
		if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
	case err := <-serveErr:
		d.log.Error("listener failed", zap.Error(err))
		return d.shutdown(err)
	}

	return d.shutdown(nil)
}

func (d *Daemon) shutdown(cause error) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if d.srv != nil {
		if err := d.srv.Shutdown(shutdownCtx); err != nil {
			d.log.Warn("http server shutdown error", zap.Error(err))
		}
	}
	if err := d.sched.Stop(); err != nil {
		d.log.Warn("scheduler stop error", zap.Error(err))
	}
	if err := d.busClose(); err != nil {
		d.log.Warn("event bus close error", zap.Error(err))
	}
	if err := d.pool.Close(); err != nil {
		d.log.Warn("database pool close error", zap.Error(err))
	}
	return cause
}

// serveWS upgrades the request and runs the connection's read/write pumps
// until it disconnects, dispatching every inbound frame through the Hub.
func (d *Daemon) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, d.cfg.Hub.ClientSendBuffer, d.log)
	if err != nil {
		d.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	scope := r.URL.Query().Get("sessionId")
	if scope == "" {
		scope = v1.GlobalSession
	}

	hubConn := hub.NewWSConnection(clientID, conn)
	d.hub.Join(hubConn, scope)
	defer d.hub.Leave(clientID)

	go conn.WritePump()

	ctx := r.Context()
	_ = conn.ReadLoop(func(data []byte) error {
		d.handleFrame(ctx, clientID, conn, data)
		return nil
	})
}

// handleFrame decodes one inbound frame and routes it: REQUEST frames are
// answered through the Hub's handler table, with the response sent directly
// back over conn; "subscribe"/"unsubscribe" are a connection-level control
// pair, not a dispatched method, so they are intercepted here before
// reaching HandleRequest.
func (d *Daemon) handleFrame(ctx context.Context, clientID string, conn *websocket.Conn, raw []byte) {
	var frame v1.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.log.Debug("dropped malformed frame", zap.Error(err))
		return
	}

	switch frame.Method {
	case "subscribe":
		var body struct {
			Method string `json:"method"`
		}
		_ = frame.ParsePayload(&body)
		d.hub.Subscribe(clientID, frame.SessionID, body.Method)
		return
	case "unsubscribe":
		var body struct {
			Method string `json:"method"`
		}
		_ = frame.ParsePayload(&body)
		d.hub.Unsubscribe(clientID, frame.SessionID, body.Method)
		return
	}

	if frame.Type != v1.FrameRequest {
		return
	}

	resp := d.hub.HandleRequest(ctx, &frame, isIdempotent(frame.Method))
	data, err := json.Marshal(resp)
	if err != nil {
		d.log.Error("failed to marshal response frame", zap.Error(err))
		return
	}
	conn.Send(data)
}

// isIdempotent reports whether method is safe to serve from the Hub's dedup
// cache (read-only lookups), per §4.1's dedup policy.
func isIdempotent(method string) bool {
	switch method {
	case v1.MethodSessionGet, v1.MethodSessionExport, v1.MethodMessageSDKMessages, v1.MethodMessageCount, v1.MethodConfigGetAll:
		return true
	default:
		return false
	}
}
