package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/HatiCode/gridcast/pkg/features"
)

// SQLiteSink stores each table as an SQLite table of (region, ts, doc) rows,
// with doc holding the JSON document. Swap drops the target and renames
// staging inside one transaction.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// One connection serialises concurrent inserts and keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func newSQLiteFromConfig(config map[string]string) (*SQLiteSink, error) {
	path := config["path"]
	if path == "" {
		path = "gridcast.db"
	}
	return NewSQLiteSink(path)
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) DropIfExists(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
		return fmt.Errorf("failed to drop table %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteSink) Create(ctx context.Context, name string) error {
	if err := validTableName(name); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`CREATE TABLE "%s" (
		region TEXT NOT NULL,
		ts INTEGER NOT NULL,
		doc TEXT NOT NULL
	)`, name)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %q: %w", name, err)
	}
	return nil
}

func (s *SQLiteSink) InsertBatch(ctx context.Context, name string, recs []features.Record) error {
	if err := validTableName(name); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO "%s" (region, ts, doc) VALUES (?, ?, ?)`, name))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %q: %w", name, err)
	}
	defer stmt.Close()

	for i := range recs {
		doc, err := json.Marshal(recs[i].Document())
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, recs[i].Region, recs[i].Timestamp.Unix(), string(doc)); err != nil {
			return fmt.Errorf("failed to insert into %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert into %q: %w", name, err)
	}
	return nil
}

// Swap replaces target with staging in a single transaction.
func (s *SQLiteSink) Swap(ctx context.Context, staging, target string) error {
	if err := validTableName(staging); err != nil {
		return err
	}
	if err := validTableName(target); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, target)); err != nil {
		return fmt.Errorf("failed to drop %q: %w", target, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE "%s" RENAME TO "%s"`, staging, target)); err != nil {
		return fmt.Errorf("failed to rename %q to %q: %w", staging, target, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit swap: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Rows(ctx context.Context, name string) ([]map[string]any, error) {
	if err := validTableName(name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM "%s" ORDER BY region, ts`, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read table %q: %w", name, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
