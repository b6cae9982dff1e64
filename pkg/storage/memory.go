package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/HatiCode/gridcast/pkg/features"
)

// MemorySink keeps tables in memory. It is safe for concurrent use and is
// mostly useful for tests and dry runs.
type MemorySink struct {
	mu     sync.RWMutex
	tables map[string][]features.Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string][]features.Record)}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) DropIfExists(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, name)
	return nil
}

func (s *MemorySink) Create(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; ok {
		return fmt.Errorf("table %q already exists", name)
	}
	s.tables[name] = []features.Record{}
	return nil
}

func (s *MemorySink) InsertBatch(ctx context.Context, name string, recs []features.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return fmt.Errorf("table %q does not exist", name)
	}
	s.tables[name] = append(t, recs...)
	return nil
}

// Swap replaces target with staging under a single lock.
func (s *MemorySink) Swap(ctx context.Context, staging, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[staging]
	if !ok {
		return fmt.Errorf("table %q does not exist", staging)
	}
	s.tables[target] = t
	delete(s.tables, staging)
	return nil
}

func (s *MemorySink) Rows(ctx context.Context, name string) ([]map[string]any, error) {
	recs, ok := s.Table(name)
	if !ok {
		return nil, fmt.Errorf("table %q does not exist", name)
	}
	rows := make([]map[string]any, len(recs))
	for i := range recs {
		rows[i] = recs[i].Document()
	}
	return rows, nil
}

// Table returns a copy of a table's records.
func (s *MemorySink) Table(name string) ([]features.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, false
	}
	return append([]features.Record(nil), t...), true
}

// Tables returns the number of tables.
func (s *MemorySink) Tables() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}
