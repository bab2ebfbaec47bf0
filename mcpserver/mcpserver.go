// Package mcpserver wraps the mcp-go server with the transports and
// authentication used by this application: stdio for local clients,
// SSE or streamable HTTP for networked ones.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/VDIOps/CitrixMonMCP/global"
)

// Transport abstracts the network transport variants
type Transport interface {
	Start(addr string) error
	Shutdown(ctx context.Context) error
}

// Option defines a configuration option for the MCPServer
type Option func(*MCPServer)

// MCPServer wraps the mcp-go server instance
type MCPServer struct {
	listen         string
	srv            *server.MCPServer
	transport      Transport
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	logger         global.Logger
	debug          bool
	name           string
	version        string
	stdio          bool
	noStreaming    bool
	toolProviders  []global.ToolProvider
	authMiddleware *AuthMiddleware
}

// WithListen sets the address for the network transports
func WithListen(listen string) Option {
	return func(m *MCPServer) {
		m.listen = listen
	}
}

// WithLogger sets the logger
func WithLogger(logger global.Logger) Option {
	return func(m *MCPServer) {
		m.logger = logger
	}
}

// WithDebug enables request logging
func WithDebug(debug bool) Option {
	return func(m *MCPServer) {
		m.debug = debug
	}
}

// WithName sets the server name reported to MCP clients
func WithName(name string) Option {
	return func(m *MCPServer) {
		m.name = name
	}
}

// WithVersion sets the server version reported to MCP clients
func WithVersion(version string) Option {
	return func(m *MCPServer) {
		m.version = version
	}
}

// WithToolProviders sets the tool providers to register
func WithToolProviders(providers ...global.ToolProvider) Option {
	return func(m *MCPServer) {
		m.toolProviders = providers
	}
}

// WithStdio selects the stdio transport instead of a network listener
func WithStdio(stdio bool) Option {
	return func(m *MCPServer) {
		m.stdio = stdio
	}
}

// WithNoStreaming selects streamable HTTP instead of SSE
func WithNoStreaming(noStreaming bool) Option {
	return func(m *MCPServer) {
		m.noStreaming = noStreaming
	}
}

// WithAuthMiddleware enables bearer token authentication on the
// network transports. Stdio is always unauthenticated.
func WithAuthMiddleware(am *AuthMiddleware) Option {
	return func(m *MCPServer) {
		m.authMiddleware = am
	}
}

// New creates a new MCPServer instance with the provided options
func New(options ...Option) (*MCPServer, error) {
	m := &MCPServer{
		listen:  "localhost:8080",
		name:    "CitrixMonMCP",
		version: "0.0.1",
	}

	for _, opt := range options {
		opt(m)
	}

	if m.logger == nil {
		return nil, fmt.Errorf("logger not set")
	}

	serverOptions := []server.ServerOption{
		server.WithLogging(),
		server.WithRecovery(),
	}
	if m.debug {
		serverOptions = append(serverOptions, withRequestLogging(m.logger))
	}

	m.srv = server.NewMCPServer(m.name, m.version, serverOptions...)
	m.AddTools()

	return m, nil
}

// ServeStdio runs the server on stdin/stdout and blocks until the
// client disconnects.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(s.srv)
}

// Start runs the network transport in a background goroutine
func (s *MCPServer) Start() error {
	if s.stdio {
		return fmt.Errorf("stdio transport must be run with ServeStdio")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.noStreaming {
			s.logger.Infof("MCP server listening on %s (streamable HTTP mode)", s.listen)
			s.transport = server.NewStreamableHTTPServer(s.srv)
		} else {
			s.logger.Infof("MCP server listening on %s (SSE mode)", s.listen)
			s.transport = server.NewSSEServer(s.srv)
		}

		if s.authMiddleware != nil {
			wrapped := newAuthenticatedTransport(s.transport, s.authMiddleware.Middleware, s.logger)
			if wrapped != nil {
				s.transport = wrapped
			} else {
				s.logger.Error("Failed to wrap transport with authentication, continuing without it")
			}
		}

		// Shutdown errors are expected during Stop
		_ = s.transport.Start(s.listen)
	}()
	return nil
}

// Stop signals the server to shut down and waits briefly for the
// transport goroutine to exit.
func (s *MCPServer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}

	if s.transport != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.transport.Shutdown(ctx)
	}

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-time.After(1 * time.Second):
		return nil
	}
}

// authenticatedTransport wraps a transport's http.Handler with the
// authentication middleware.
type authenticatedTransport struct {
	handler http.Handler
	server  *http.Server
	logger  global.Logger
}

func newAuthenticatedTransport(underlying Transport, middleware func(http.Handler) http.Handler,
	logger global.Logger) *authenticatedTransport {

	h, ok := underlying.(http.Handler)
	if !ok {
		logger.Error("Transport does not implement http.Handler")
		return nil
	}
	return &authenticatedTransport{handler: middleware(h), logger: logger}
}

func (at *authenticatedTransport) Start(addr string) error {
	at.server = &http.Server{
		Addr:         addr,
		Handler:      at.handler,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return at.server.ListenAndServe()
}

func (at *authenticatedTransport) Shutdown(ctx context.Context) error {
	if at.server != nil {
		return at.server.Shutdown(ctx)
	}
	return nil
}

func (at *authenticatedTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	at.handler.ServeHTTP(w, r)
}

// withRequestLogging logs each tool call before dispatching it
func withRequestLogging(logger global.Logger) server.ServerOption {
	return server.WithToolHandlerMiddleware(func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			if prefix, operation, err := global.ParseToolName(request.Params.Name); err == nil {
				logger.Debugf("Tool call: provider=%s operation=%s", prefix, operation)
			} else {
				logger.Debugf("Tool call: %s", request.Params.Name)
			}
			return next(ctx, request)
		}
	})
}
