package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPort         = errors.New("invalid server port")
	ErrEmptyDBPath         = errors.New("empty db_path")
	ErrEmptyModelPath      = errors.New("empty model_path")
	ErrInvalidModelType    = errors.New("invalid model_type")
	ErrInvalidVectorIndex  = errors.New("invalid vector_index")
	ErrInvalidDebounce     = errors.New("invalid debounce_ms")
	ErrInvalidCacheTTL     = errors.New("invalid cache_ttl_seconds")
	ErrInvalidHybridWeight = errors.New("invalid hybrid_weight")
	ErrInvalidChunkSize    = errors.New("invalid max_chunk_size")
	ErrInvalidOverlap      = errors.New("invalid overlap")
)

// Validate checks that the configuration is complete and internally
// consistent, aggregating every violation into one joined error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidPort, cfg.Server.Port))
	}

	if strings.TrimSpace(cfg.Storage.DBPath) == "" {
		errs = append(errs, ErrEmptyDBPath)
	}
	if strings.TrimSpace(cfg.Storage.ModelPath) == "" {
		errs = append(errs, ErrEmptyModelPath)
	}
	switch cfg.Storage.ModelType {
	case "all-minilm-l6-v2", "all-mpnet-base-v2", "bge-base-en-v1.5", "bge-small-en-v1.5":
		// recognized
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidModelType, cfg.Storage.ModelType))
	}
	switch cfg.Storage.VectorIndex {
	case "exact", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("%w: must be 'exact' or 'hnsw', got %q", ErrInvalidVectorIndex, cfg.Storage.VectorIndex))
	}

	if cfg.Watch.DebounceMs <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidDebounce, cfg.Watch.DebounceMs))
	}

	if cfg.Search.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: cannot be negative, got %d", ErrInvalidCacheTTL, cfg.Search.CacheTTLSeconds))
	}
	if cfg.Search.HybridWeight < 0 || cfg.Search.HybridWeight > 1 {
		errs = append(errs, fmt.Errorf("%w: must be within [0,1], got %f", ErrInvalidHybridWeight, cfg.Search.HybridWeight))
	}

	if cfg.Chunking.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidChunkSize, cfg.Chunking.MaxChunkSize))
	}
	if cfg.Chunking.Overlap < 0 {
		errs = append(errs, fmt.Errorf("%w: cannot be negative, got %d", ErrInvalidOverlap, cfg.Chunking.Overlap))
	}
	if cfg.Chunking.MaxChunkSize > 0 && cfg.Chunking.Overlap >= cfg.Chunking.MaxChunkSize {
		errs = append(errs, fmt.Errorf("%w: overlap (%d) must be less than max_chunk_size (%d)", ErrInvalidOverlap, cfg.Chunking.Overlap, cfg.Chunking.MaxChunkSize))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
