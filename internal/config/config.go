// Package config loads and validates contextd's TOML configuration, binding
// each key from SPEC_FULL.md §6 to a typed field with environment overrides.
package config

import (
	"runtime"
	"time"
)

// Config is the complete contextd configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Search   SearchConfig   `mapstructure:"search"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Plugins  map[string][]string `mapstructure:"plugins"`
}

// PipelineConfig controls the worker pool and shutdown behavior of the
// file-change pipeline (§5).
type PipelineConfig struct {
	Workers             int `mapstructure:"workers"`               // default: CPU count
	EmbedQueueSize      int `mapstructure:"embed_queue_size"`       // default 256
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"` // default 10
	QueryTimeoutSeconds  int `mapstructure:"query_timeout_seconds"`  // default 5
	MaxFileSizeBytes     int64 `mapstructure:"max_file_size_bytes"`  // default 100MB
}

func (p PipelineConfig) ShutdownGrace() time.Duration {
	return time.Duration(p.ShutdownGraceSeconds) * time.Second
}

func (p PipelineConfig) QueryTimeout() time.Duration {
	return time.Duration(p.QueryTimeoutSeconds) * time.Second
}

// ServerConfig controls the HTTP transport.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageConfig controls where the store file and model live, and which
// dense-index implementation backs vector search.
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	ModelPath   string `mapstructure:"model_path"`
	ModelType   string `mapstructure:"model_type"`
	VectorIndex string `mapstructure:"vector_index"` // "exact" (default) or "hnsw"
}

// WatchConfig controls the Watcher (C1).
type WatchConfig struct {
	Paths      []string `mapstructure:"paths"`
	DebounceMs int      `mapstructure:"debounce_ms"`
}

func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// SearchConfig controls the Query Engine (C7).
type SearchConfig struct {
	EnableCache     bool    `mapstructure:"enable_cache"`
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds"`
	HybridWeight    float64 `mapstructure:"hybrid_weight"`
}

func (s SearchConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// ChunkingConfig controls the Chunker (C4)'s paragraph strategy.
type ChunkingConfig struct {
	MaxChunkSize int `mapstructure:"max_chunk_size"`
	Overlap      int `mapstructure:"overlap"`
}

// ModelDimensions returns the embedding dimension implied by model_type.
func (c *Config) ModelDimensions() int {
	switch c.Storage.ModelType {
	case "all-mpnet-base-v2", "bge-base-en-v1.5":
		return 768
	default: // all-minilm-l6-v2 and anything else defaults to 384
		return 384
	}
}

// Default returns the configuration SPEC_FULL.md §6 specifies as defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3030,
		},
		Storage: StorageConfig{
			DBPath:      "contextd.db",
			ModelPath:   "models",
			ModelType:   "all-minilm-l6-v2",
			VectorIndex: "exact",
		},
		Watch: WatchConfig{
			Paths:      []string{"."},
			DebounceMs: 200,
		},
		Search: SearchConfig{
			EnableCache:     true,
			CacheTTLSeconds: 3600,
			HybridWeight:    0.7,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 512,
			Overlap:      50,
		},
		Pipeline: PipelineConfig{
			Workers:              runtime.NumCPU(),
			EmbedQueueSize:       256,
			ShutdownGraceSeconds: 10,
			QueryTimeoutSeconds:  5,
			MaxFileSizeBytes:     100 * 1024 * 1024,
		},
		Plugins: map[string][]string{},
	}
}
