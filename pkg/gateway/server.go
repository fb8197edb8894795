// Package gateway fronts the gatekeeper's JSON-RPC server with concurrent
// TCP sessions. Every session shares one gatekeeper, and with it one
// confirmation broker and one audit log, so an operator session can
// resolve approvals for requests raised on another session.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sameehj/gate/pkg/mcp"
)

type Server struct {
	addr        string
	rpc         *mcp.Server
	authorizer  Authorizer
	maxSessions int
	logger      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*Session
}

func NewServer(addr string, rpc *mcp.Server, authorizer Authorizer) *Server {
	if authorizer == nil {
		authorizer = NoopAuthorizer{}
	}
	return &Server{addr: addr, rpc: rpc, authorizer: authorizer, sessions: make(map[string]*Session)}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

func (s *Server) SetMaxSessions(max int) {
	s.maxSessions = max
}

// Start accepts sessions until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.addr = listener.Addr().String()
	s.mu.Unlock()
	defer listener.Close()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logInfo("gateway_listening", "addr", s.addr)
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			s.logError("accept_failed", "error", err)
			return err
		}

		if s.maxSessions > 0 && s.sessionCount() >= s.maxSessions {
			s.logWarn("session_limit_reached", "remote", conn.RemoteAddr().String(), "limit", s.maxSessions)
			_ = conn.Close()
			continue
		}
		if err := s.authorizer.Allow(ctx, conn.RemoteAddr().String()); err != nil {
			s.logWarn("session_denied", "remote", conn.RemoteAddr().String(), "error", err)
			_ = conn.Close()
			continue
		}

		session := &Session{
			ID:         uuid.NewString(),
			RemoteAddr: conn.RemoteAddr().String(),
			StartedAt:  time.Now(),
		}
		s.register(session)

		go func() {
			defer s.unregister(session.ID)
			defer conn.Close()
			s.logInfo("session_start", "id", session.ID, "remote", session.RemoteAddr)
			_ = s.rpc.Serve(ctx, conn, conn)
			s.logInfo("session_end", "id", session.ID, "remote", session.RemoteAddr)
		}()
	}
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListSessions snapshots the connected sessions.
func (s *Server) ListSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *Server) register(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
