// Package storage provides output sinks for the feature table.
//
// A sink holds named tables of feature records. The pipeline writes a run into
// a staging table and publishes it over the target at the end; sinks that can
// do that atomically implement Swapper.
package storage

import (
	"context"
	"fmt"

	"github.com/HatiCode/gridcast/pkg/features"
)

// Sink is the output side of the pipeline.
type Sink interface {
	// DropIfExists removes a table. Dropping a missing table is not an error.
	DropIfExists(ctx context.Context, name string) error
	// Create makes an empty table. It fails if the table exists.
	Create(ctx context.Context, name string) error
	// InsertBatch appends records to an existing table. It must be safe to call
	// concurrently for the same table.
	InsertBatch(ctx context.Context, name string, recs []features.Record) error
	Name() string
}

// Swapper is implemented by sinks that can replace target with staging in one
// step readers never observe half-done. After Swap, staging no longer exists.
type Swapper interface {
	Swap(ctx context.Context, staging, target string) error
}

// Reader returns every row of a table as a flat document.
type Reader interface {
	Rows(ctx context.Context, name string) ([]map[string]any, error)
}

// New creates a sink by kind from a generic config map. The caller owns the
// returned sink and must Close it when it implements io.Closer.
//
// Supported kinds: memory, mongo, redis, sqlite.
func New(ctx context.Context, kind string, config map[string]string) (Sink, error) {
	switch kind {
	case "memory":
		return NewMemorySink(), nil
	case "mongo", "mongodb":
		return newMongoFromConfig(ctx, config)
	case "redis":
		return newRedisFromConfig(ctx, config)
	case "sqlite":
		return newSQLiteFromConfig(config)
	default:
		return nil, fmt.Errorf("unknown sink kind: %s (must be memory, mongo, redis, or sqlite)", kind)
	}
}

func validTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid table name %q: only alphanumeric, hyphens, and underscores allowed", name)
		}
	}
	return nil
}
