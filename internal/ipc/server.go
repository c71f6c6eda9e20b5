// Package ipc implements the IPC server (C8): a Unix domain socket
// listener that speaks the length-prefixed PipeRequest/PipeResponse
// protocol and dispatches register/unregister/status to the supervisor.
package ipc

import (
	"context"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	maxerrors "github.com/kellyelton/maxbackup/internal/errors"
	"github.com/kellyelton/maxbackup/internal/identity"
	"github.com/kellyelton/maxbackup/internal/metrics"
	"github.com/kellyelton/maxbackup/internal/state"
	"github.com/kellyelton/maxbackup/internal/supervisor"
	"github.com/kellyelton/maxbackup/internal/transport"
	"github.com/kellyelton/maxbackup/pkg/logger"
)

// socketMode permits any local user to dial, matching the "any
// authenticated local user" leg of the protocol's three-principal ACL.
// peerCredentials is read per connection where the platform supports it,
// but no connection is admitted or rejected by the peer's uid.
const socketMode = 0o666

// Server accepts IPC connections and dispatches each request to a
// Supervisor.
type Server struct {
	listener   net.Listener
	socketPath string
	supervisor *supervisor.Supervisor
	resolver   identity.Resolver
	store      *state.Store
	logger     logger.Logger
	metrics    metrics.Collector
}

// Listen creates the Unix domain socket at socketPath, removing any stale
// socket file left behind by a prior crash.
func Listen(socketPath string, sup *supervisor.Supervisor, resolver identity.Resolver, store *state.Store, log logger.Logger, collector metrics.Collector) (*Server, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, maxerrors.WrapWithCode(err, maxerrors.ErrIO, "removing stale socket %q", socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, maxerrors.WrapWithCode(err, maxerrors.ErrIO, "listening on %q", socketPath)
	}

	if err := os.Chmod(socketPath, socketMode); err != nil {
		listener.Close()
		return nil, maxerrors.WrapWithCode(err, maxerrors.ErrIO, "setting socket mode on %q", socketPath)
	}

	return &Server{
		listener:   listener,
		socketPath: socketPath,
		supervisor: sup,
		resolver:   resolver,
		store:      store,
		logger:     log,
		metrics:    collector,
	}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Each connection is handled on its own goroutine, so one slow
// client never blocks another.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return maxerrors.WrapWithCode(err, maxerrors.ErrIO, "accepting connection")
		}

		go s.handleConn(ctx, conn)
	}
}

// Close releases the listener and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	os.Remove(s.socketPath)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	correlationID := uuid.New().String()
	connLogger := s.logger.WithFields(logger.String("correlationId", correlationID))

	defer func() {
		if r := recover(); r != nil {
			connLogger.Error("panic recovered handling ipc connection", logger.Any("panic", r))
			_ = transport.WriteMessage(conn, transport.Err("internal error"), defaultTimeout)
		}
	}()

	if _, ok := peerCredentials(conn); !ok {
		connLogger.Debug("peer credential inspection unavailable on this platform, relying on socket file mode")
	}

	cfg, err := s.store.Load()
	if err != nil {
		connLogger.Error("failed to load service state for request timeout", logger.Error(err))
		cfg = defaultTimeoutConfig()
	}
	timeout := time.Duration(cfg.PipeTimeoutSeconds) * time.Second

	start := time.Now()

	req, err := transport.ReadMessage[transport.PipeRequest](conn, timeout)
	if err != nil {
		connLogger.Warn("failed to read request", logger.Error(err))
		_ = transport.WriteMessage(conn, transport.Err("malformed request"), timeout)
		return
	}

	displayName := req.Sid
	if profile, perr := s.resolver.Resolve(req.Sid); perr == nil && profile != nil {
		displayName = profile.DisplayName
	}

	action := strings.ToUpper(req.Action)
	connLogger = connLogger.WithFields(logger.String("sid", req.Sid), logger.String("action", action))

	resp := s.dispatch(ctx, conn, connLogger, action, req, displayName, cfg, timeout)

	if s.metrics != nil {
		s.metrics.RecordIPCRequest(action, string(resp.Status), time.Since(start))
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, connLogger logger.Logger, action string, req transport.PipeRequest, displayName string, cfg *state.ServiceConfig, timeout time.Duration) transport.PipeResponse {
	switch action {
	case string(transport.ActionRegister):
		_ = transport.WriteMessage(conn, transport.Info("Validating configuration..."), timeout)
		_ = transport.WriteMessage(conn, transport.Info("Config path: "+req.ConfigPath), timeout)
		resp := s.supervisor.Register(ctx, req.Sid, displayName, req.ConfigPath)
		if err := transport.WriteMessage(conn, resp, timeout); err != nil {
			connLogger.Warn("failed to send final response", logger.Error(err))
		}
		return resp

	case string(transport.ActionUnregister):
		_ = transport.WriteMessage(conn, transport.Info("Stopping worker..."), timeout)
		shutdownTimeout := time.Duration(cfg.WorkerShutdownTimeoutSeconds) * time.Second
		resp := s.supervisor.Unregister(req.Sid, displayName, shutdownTimeout)
		if err := transport.WriteMessage(conn, resp, timeout); err != nil {
			connLogger.Warn("failed to send final response", logger.Error(err))
		}
		return resp

	case string(transport.ActionStatus):
		resp := s.supervisor.Status(req.Sid, displayName)
		if err := transport.WriteMessage(conn, resp, timeout); err != nil {
			connLogger.Warn("failed to send final response", logger.Error(err))
		}
		return resp

	default:
		resp := transport.Err("Unknown action: " + req.Action)
		if err := transport.WriteMessage(conn, resp, timeout); err != nil {
			connLogger.Warn("failed to send final response", logger.Error(err))
		}
		return resp
	}
}

const defaultTimeout = 30 * time.Second

func defaultTimeoutConfig() *state.ServiceConfig {
	cfg := state.Defaults()
	return &cfg
}
