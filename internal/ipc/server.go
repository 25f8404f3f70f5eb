package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"laserlink/internal/daemon"
	"laserlink/internal/logging"
)

// ServiceName is the RPC receiver name clients call into.
const ServiceName = "LaserLink"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// ServerOption customises the IPC server.
type ServerOption func(*service)

// WithShutdown registers a callback invoked after a Stop request so the host
// process can exit.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) { s.shutdown = fn }
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	svc := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    svc.logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Connections still open
// are served until their clients hang up.
func (s *Server) Close() {
	s.once.Do(func() {
		s.cancel()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		if err := os.RemoveAll(s.path); err != nil {
			logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
				logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
		}
	})
}

// Wait blocks until the accept loop and every served connection finish.
func (s *Server) Wait() {
	s.wg.Wait()
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		s.shutdown()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.APIStatus(s.ctx)
	return nil
}

func (s *service) SessionList(req SessionListRequest, resp *SessionListResponse) error {
	if req.Limit < 0 {
		return fmt.Errorf("invalid limit %d", req.Limit)
	}
	list, err := s.daemon.ListSessions(s.ctx, req.Statuses, req.Limit)
	if err != nil {
		return err
	}
	resp.Sessions = list
	return nil
}

func (s *service) SessionShow(req SessionShowRequest, resp *SessionShowResponse) error {
	id := strings.TrimSpace(req.ID)
	detail, err := s.daemon.DescribeSession(s.ctx, id)
	if err != nil {
		return err
	}
	if detail == nil {
		return fmt.Errorf("session %s not found", id)
	}
	resp.Detail = *detail
	return nil
}

func (s *service) KPI(_ KPIRequest, resp *KPIResponse) error {
	report, err := s.daemon.KPI()
	if err != nil {
		return err
	}
	resp.Report = report
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	if err != nil {
		logging.WarnWithContext(s.logger, "test notification failed", "notification_test_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "Check notifications.ntfy_topic and network access"))
		resp.Message = fmt.Sprintf("%s: %v", message, err)
	}
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalSessions = health.TotalSessions
	resp.Error = health.Error
	return nil
}
