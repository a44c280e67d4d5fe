package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads contextd configuration from a TOML file plus environment
// overrides.
type Loader interface {
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a loader that looks for `contextd.toml` under rootDir.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load reads configuration with priority (highest to lowest):
// 1. Environment variables (CONTEXTD_*)
// 2. contextd.toml
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("contextd")
	v.SetConfigType("toml")
	v.AddConfigPath(l.rootDir)

	v.SetEnvPrefix("CONTEXTD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"server.host", "server.port",
		"storage.db_path", "storage.model_path", "storage.model_type", "storage.vector_index",
		"watch.paths", "watch.debounce_ms",
		"search.enable_cache", "search.cache_ttl_seconds", "search.hybrid_weight",
		"chunking.max_chunk_size", "chunking.overlap",
		"pipeline.workers", "pipeline.embed_queue_size", "pipeline.shutdown_grace_seconds",
		"pipeline.query_timeout_seconds", "pipeline.max_file_size_bytes",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.model_path", d.Storage.ModelPath)
	v.SetDefault("storage.model_type", d.Storage.ModelType)
	v.SetDefault("storage.vector_index", d.Storage.VectorIndex)

	v.SetDefault("watch.paths", d.Watch.Paths)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMs)

	v.SetDefault("search.enable_cache", d.Search.EnableCache)
	v.SetDefault("search.cache_ttl_seconds", d.Search.CacheTTLSeconds)
	v.SetDefault("search.hybrid_weight", d.Search.HybridWeight)

	v.SetDefault("chunking.max_chunk_size", d.Chunking.MaxChunkSize)
	v.SetDefault("chunking.overlap", d.Chunking.Overlap)

	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.embed_queue_size", d.Pipeline.EmbedQueueSize)
	v.SetDefault("pipeline.shutdown_grace_seconds", d.Pipeline.ShutdownGraceSeconds)
	v.SetDefault("pipeline.query_timeout_seconds", d.Pipeline.QueryTimeoutSeconds)
	v.SetDefault("pipeline.max_file_size_bytes", d.Pipeline.MaxFileSizeBytes)
}

// LoadConfig loads configuration rooted at the current working directory.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration rooted at a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
