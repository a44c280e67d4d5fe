package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandy-sachin7/contextd/internal/chunker"
	"github.com/sandy-sachin7/contextd/internal/config"
	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
	"github.com/sandy-sachin7/contextd/internal/embedder"
	"github.com/sandy-sachin7/contextd/internal/filter"
	"github.com/sandy-sachin7/contextd/internal/httpapi"
	"github.com/sandy-sachin7/contextd/internal/parser"
	"github.com/sandy-sachin7/contextd/internal/pipeline"
	"github.com/sandy-sachin7/contextd/internal/query"
	"github.com/sandy-sachin7/contextd/internal/store"
	"github.com/sandy-sachin7/contextd/internal/watcher"
)

// Exit codes per SPEC_FULL.md §6: 0 success, 1 config error, 2 model load
// failure, 3 store open failure.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitModelLoadError = 2
	exitStoreOpenError = 3
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the contextd daemon: watch, index, and serve search",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("serve: failed to load configuration", "error", err)
		os.Exit(exitConfigError)
	}

	embd, err := embedder.New(embedder.Config{
		ModelPath:  cfg.Storage.ModelPath,
		ModelType:  cfg.Storage.ModelType,
		Dimensions: cfg.ModelDimensions(),
		QueueSize:  cfg.Pipeline.EmbedQueueSize,
	})
	if err != nil {
		slog.Error("serve: failed to load embedding model", "error", err)
		os.Exit(exitModelLoadError)
	}
	defer embd.Close()

	st, err := store.Open(store.Config{
		DBPath:      cfg.Storage.DBPath,
		Dimensions:  cfg.ModelDimensions(),
		VectorIndex: cfg.Storage.VectorIndex,
	})
	if err != nil {
		slog.Error("serve: failed to open store", "error", err)
		os.Exit(exitStoreOpenError)
	}
	defer st.Close()

	engine := query.New(st, embd, query.Config{
		EnableCache:  cfg.Search.EnableCache,
		CacheSize:    1024,
		CacheTTL:     cfg.Search.CacheTTL(),
		HybridWeight: float32(cfg.Search.HybridWeight),
	})

	pl := pipeline.New(pipeline.Dependencies{
		Filter:   filter.New(".", cfg.Pipeline.MaxFileSizeBytes),
		Parser:   parser.New(cfg.Plugins),
		Chunker:  chunker.New(cfg.Chunking),
		Embedder: embd,
		Store:    st,
		Cache:    engine,
	}, pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		MaxFileSize:   cfg.Pipeline.MaxFileSizeBytes,
		ShutdownGrace: cfg.Pipeline.ShutdownGrace(),
		RetryConfig:   ctxerrors.DefaultStoreBusyRetry(),
	})

	watchCfg := watcher.DefaultConfig()
	watchCfg.DebounceMs = cfg.Watch.DebounceMs
	watchCfg.QueueSize = cfg.Pipeline.EmbedQueueSize
	watch, err := watcher.New(watchCfg, st)
	if err != nil {
		slog.Error("serve: failed to start watcher", "error", err)
		os.Exit(exitConfigError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, root := range cfg.Watch.Paths {
		if err := watch.AddRoot(ctx, root); err != nil {
			slog.Warn("serve: cannot watch root, skipping", "root", root, "error", err)
		}
	}
	go watch.Run(ctx)
	defer watch.Stop()

	embedderReady := func() bool { return true }
	httpSrv := httpapi.New(engine, st, httpapi.Config{
		QueryTimeout:  cfg.Pipeline.QueryTimeout(),
		ModelType:     cfg.Storage.ModelType,
		ModelDim:      cfg.ModelDimensions(),
		EmbedderReady: embedderReady,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: httpSrv,
	}
	go func() {
		slog.Info("serve: listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve: http server failed", "error", err)
		}
	}()

	pipelineErr := make(chan error, 1)
	go func() { pipelineErr <- pl.Run(ctx, watch.Events()) }()

	<-ctx.Done()
	slog.Info("serve: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownGrace())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("serve: http shutdown did not complete cleanly", "error", err)
	}

	select {
	case err := <-pipelineErr:
		if err != nil {
			slog.Warn("serve: pipeline stopped with error", "error", err)
		}
	case <-time.After(cfg.Pipeline.ShutdownGrace()):
		slog.Warn("serve: pipeline did not drain within grace period")
	}

	os.Exit(exitOK)
}
