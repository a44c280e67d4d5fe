package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// Config names the daemon metadata reported to MCP clients and the model
// identity surfaced by get_status.
type Config struct {
	ModelType string
	ModelDim  int
}

// Server wraps a mark3labs/mcp-go server exposing search_context and
// get_status over stdio.
type Server struct {
	mcp *server.MCPServer
}

// New builds a Server wired to searcher (normally *query.Engine) and stats
// (normally *store.Store).
func New(searcher Searcher, stats StatsSource, cfg Config) *Server {
	mcpServer := server.NewMCPServer(
		"contextd",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	addSearchContextTool(mcpServer, searcher)
	addGetStatusTool(mcpServer, stats, cfg.ModelType, cfg.ModelDim)

	return &Server{mcp: mcpServer}
}

// Serve blocks serving the MCP protocol on stdio until ctx is canceled or
// the transport returns an error.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("mcpserver: starting stdio server")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("mcp stdio server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
