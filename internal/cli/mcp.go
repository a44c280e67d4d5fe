package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandy-sachin7/contextd/internal/config"
	"github.com/sandy-sachin7/contextd/internal/embedder"
	"github.com/sandy-sachin7/contextd/internal/mcpserver"
	"github.com/sandy-sachin7/contextd/internal/query"
	"github.com/sandy-sachin7/contextd/internal/store"
)

// mcpCmd starts the MCP stdio server standalone, opening the store
// read-only-in-spirit (no pipeline/watcher attached) so an agent client can
// spawn contextd directly over stdio rather than sharing the serve daemon's
// process.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP stdio server for agent search_context/get_status tools",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	embd, err := embedder.New(embedder.Config{
		ModelPath:  cfg.Storage.ModelPath,
		ModelType:  cfg.Storage.ModelType,
		Dimensions: cfg.ModelDimensions(),
		QueueSize:  cfg.Pipeline.EmbedQueueSize,
	})
	if err != nil {
		return fmt.Errorf("failed to load embedding model: %w", err)
	}
	defer embd.Close()

	st, err := store.Open(store.Config{
		DBPath:      cfg.Storage.DBPath,
		Dimensions:  cfg.ModelDimensions(),
		VectorIndex: cfg.Storage.VectorIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	engine := query.New(st, embd, query.Config{
		EnableCache:  cfg.Search.EnableCache,
		CacheSize:    1024,
		CacheTTL:     cfg.Search.CacheTTL(),
		HybridWeight: float32(cfg.Search.HybridWeight),
	})

	srv := mcpserver.New(engine, st, mcpserver.Config{
		ModelType: cfg.Storage.ModelType,
		ModelDim:  cfg.ModelDimensions(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
