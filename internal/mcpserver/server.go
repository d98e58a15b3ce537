// Package mcpserver hosts an in-process Model Context Protocol server.
// It owns only the generic hosting/transport plumbing, not
// domain-specific tool logic, which is explicitly out of scope. It
// registers no tools of its own, internal/modloader does not resolve it as
// a Builtin mod, and the conductor does not use it; its only caller is
// its own test, which registers a fixture tool to exercise the hosting path.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// DefaultPort is the default port for the HTTP transport.
	DefaultPort = 5858
)

// TransportMode specifies how a Server exposes itself to a peer.
type TransportMode string

const (
	// TransportModeHTTP serves the MCP Streamable HTTP transport (spec 2025-03-26).
	TransportModeHTTP TransportMode = "http"

	// TransportModeSTDIO serves MCP over the process's own stdin/stdout.
	TransportModeSTDIO TransportMode = "stdio"
)

// Server wraps an mcp.Server with the lifecycle and transport selection
// conventions used throughout this module (bind to loopback only, Stop is
// idempotent, Wait blocks until a stdio session ends).
type Server struct {
	mcpServer *mcp.Server
	logger    *slog.Logger
	name      string
	host      string
	port      int
	mode      TransportMode

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server

	stdioSession *mcp.ServerSession
	stdioDone    chan struct{}

	running  bool
	shutdown bool
}

// Config holds the configuration for a Server.
type Config struct {
	// Name identifies the server in its MCP Implementation info.
	Name string
	// Version identifies the server in its MCP Implementation info.
	Version string
	// Host is the address to bind to in HTTP mode. Defaults to "127.0.0.1".
	Host string
	// Port to listen on in HTTP mode. 0 picks a random available port.
	Port int
	// Mode selects stdio or HTTP transport. Defaults to stdio.
	Mode TransportMode
}

// New constructs a Server with no tools registered; call AddTool before
// Start to expose one.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Mode == "" {
		cfg.Mode = TransportModeSTDIO
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger: logger,
		name:   cfg.Name,
		host:   cfg.Host,
		port:   cfg.Port,
		mode:   cfg.Mode,
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)
	return s
}

// AddTool registers a typed tool handler, mirroring mcp.AddTool's own
// signature so callers don't need to reach into the underlying mcp.Server.
func AddTool[In, Out any](s *Server, tool *mcp.Tool, handler mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(s.mcpServer, tool, handler)
}

// Start begins serving according to the configured transport mode. STDIO
// mode runs in a goroutine; use Wait to block until it exits.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("mcpserver: already running")
	}
	s.mu.Unlock()

	switch s.mode {
	case TransportModeSTDIO:
		return s.startSTDIO(ctx)
	case TransportModeHTTP:
		return s.startHTTP(ctx)
	default:
		return fmt.Errorf("mcpserver: unknown transport mode: %s", s.mode)
	}
}

func (s *Server) startHTTP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mcpserver: listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()

	s.logger.Info("mcp server started", "name", s.name, "mode", "http", "addr", listener.Addr())

	mux := http.NewServeMux()
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
	mux.Handle("/mcp", handler)

	s.httpSrv = &http.Server{Handler: mux}
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("mcp server error", "error", err)
		}
	}()
	return nil
}

func (s *Server) startSTDIO(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.stdioDone = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("mcp server started", "name", s.name, "mode", "stdio")

	go func() {
		defer close(s.stdioDone)

		transport := &mcp.StdioTransport{}
		session, err := s.mcpServer.Connect(ctx, transport, nil)
		if err != nil {
			s.logger.Error("mcp stdio connect failed", "error", err)
			return
		}

		s.mu.Lock()
		s.stdioSession = session
		s.mu.Unlock()

		if err := session.Wait(); err != nil {
			s.logger.Debug("mcp stdio session ended", "error", err)
		}

		s.mu.Lock()
		s.running = false
		s.stdioSession = nil
		s.mu.Unlock()
	}()

	return nil
}

// Wait blocks until a stdio-mode server's session ends. Returns
// immediately for HTTP mode or before Start has been called.
func (s *Server) Wait() error {
	s.mu.Lock()
	done := s.stdioDone
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// Stop shuts the server down; safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.shutdown {
		return nil
	}
	s.shutdown = true
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("mcp http shutdown error", "error", err)
		}
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.stdioSession != nil {
		if err := s.stdioSession.Close(); err != nil {
			s.logger.Warn("mcp stdio close error", "error", err)
		}
	}

	s.logger.Info("mcp server stopped", "name", s.name)
	return nil
}

// Port returns the actual bound port in HTTP mode, or 0 otherwise.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Mode reports the transport this server was configured for.
func (s *Server) Mode() TransportMode {
	return s.mode
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
