package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Supported backends
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendMilvus  = "milvus"
)

// ErrUnsupportedBackend is returned for an unknown backend name
var ErrUnsupportedBackend = errors.New("unsupported vector store backend")

// Config selects and configures a VectorStore
type Config struct {
	Backend    string
	SQLitePath string
	Chromem    ChromemConfig
	Milvus     MilvusConfig
}

// Open constructs the configured store. An empty backend means sqlite.
func Open(ctx context.Context, cfg Config) (VectorStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		if err := ensureParentDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case BackendChromem:
		if !cfg.Chromem.InMemory && cfg.Chromem.Path != "" {
			if err := os.MkdirAll(cfg.Chromem.Path, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create chromem directory: %w", err)
			}
		}
		return NewChromemStore(cfg.Chromem)
	case BackendMilvus:
		return NewMilvusStore(ctx, cfg.Milvus)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Backend)
	}
}

func ensureParentDir(dbPath string) error {
	if dbPath == "" || dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
