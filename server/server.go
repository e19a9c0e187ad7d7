// Package server implements the wsiorpc Server Endpoint (§4.5): it
// accepts WebSocket connections negotiating the wsiorpc subprotocol,
// authenticates and optionally authorizes them, and exposes each as a
// Conn whose Recv yields inbound Procedures. Structured after the
// teacher's gateway.Server (accept loop, per-connection sendCh/readLoop),
// generalized from JSON RPC frames to the binary wsiorpc wire format.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wsiorpc/internal/config"
	"wsiorpc/internal/transport"
)

// Handler is invoked once per accepted connection, in its own goroutine.
// It owns conn for the connection's lifetime; when it returns, the
// connection is closed.
type Handler func(ctx context.Context, conn *Conn)

// Server is the wsiorpc server endpoint.
type Server struct {
	cfg    config.ServerConfig
	auth   Authenticator
	authz  Authorizer
	logger *slog.Logger

	conns  sync.Map // id (string) -> *Conn
	nextID atomic.Uint64

	httpSrv   *http.Server
	listener  net.Listener
	boundAddr string
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithAuthenticator sets the connection-admission authenticator. The
// default admits every connection with an empty ClientInfo.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithAuthorizer sets the per-event RBAC hook (§9 supplement). The
// default allows every event for every authenticated client.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Server) { s.authz = a }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server from cfg.
func New(cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		auth:   openAuth{},
		authz:  allowAll,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize reports whether info may invoke event, consulting the
// configured Authorizer (§9 supplement RBAC hook).
func (s *Server) Authorize(info *ClientInfo, event string) bool {
	return s.authz(info, event)
}

// BoundAddr returns the address the server actually bound to. Valid only
// after Serve has started listening.
func (s *Server) BoundAddr() string { return s.boundAddr }

// Serve accepts connections on cfg.Addr until ctx is cancelled, calling
// handle for each one. It blocks, mirroring the teacher's Start(ctx).
func (s *Server) Serve(ctx context.Context, handle Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade(ctx, handle))

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = listener
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: mux}

	s.logger.Info("wsiorpc server started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Stop closes every connection and shuts down the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.conns.Range(func(key, value any) bool {
		value.(*Conn).Close("server shutting down")
		s.conns.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func (s *Server) handleUpgrade(ctx context.Context, handle Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		info, err := s.auth.Authenticate(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		tr, err := transport.Accept(w, r, nil)
		if err != nil {
			s.logger.Warn("server: websocket accept failed", "error", err)
			return
		}

		var limiter *rate.Limiter
		if s.cfg.RateLimit.Enabled {
			limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit.RequestsPerSecond), s.cfg.RateLimit.Burst)
		}

		id := fmt.Sprintf("c%d", s.nextID.Add(1))
		conn := newConn(id, info, tr, s.cfg.EventQueueCapacity, s.cfg.SendQueueCapacity, limiter, s.authz, s.logger)
		s.conns.Store(id, conn)

		s.logger.Info("server: client connected", "conn", id, "client", info.Name)

		connCtx := r.Context()
		go conn.send.Run(connCtx)
		go conn.dispatch(connCtx)

		handle(connCtx, conn)

		conn.Close("handler returned")
		s.conns.Delete(id)
		s.logger.Info("server: client disconnected", "conn", id)
	}
}

// Status is a snapshot of server-wide connection state (§9 supplement:
// observability beyond the core wire protocol).
type Status struct {
	ConnectedClients int
	Connections      []ConnStatus
}

// ConnStatus is one connection's contribution to Status.
type ConnStatus struct {
	ID           string
	ClientName   string
	PendingCalls int
}

// Status reports every currently connected client and its in-flight call
// count.
func (s *Server) Status() Status {
	var st Status
	s.conns.Range(func(_, value any) bool {
		c := value.(*Conn)
		st.ConnectedClients++
		st.Connections = append(st.Connections, ConnStatus{
			ID:           c.id,
			ClientName:   c.info.Name,
			PendingCalls: c.PendingCalls(),
		})
		return true
	})
	return st
}
