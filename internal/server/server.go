// Package server provides the MCP server wrapper with lifecycle management.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/metrics"
)

// Name is the MCP implementation name.
const Name = "pagewise"

// Server wraps the MCP server with dependencies and lifecycle management.
type Server struct {
	mcp     *mcp.Server
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates an MCP server. Request timings go to mc when it is non-nil.
func New(version string, logger *slog.Logger, mc *metrics.Collector) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{
		Name:    Name,
		Version: version,
	}
	return &Server{
		mcp:     mcp.NewServer(impl, nil),
		logger:  logger,
		metrics: mc,
	}
}

// Run serves on stdio and blocks until disconnect or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server for tool registration.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Setup installs the logging and metrics middleware.
func (s *Server) Setup() {
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(s.logger))
	if s.metrics != nil {
		s.mcp.AddReceivingMiddleware(MetricsMiddleware(s.metrics))
	}
}
