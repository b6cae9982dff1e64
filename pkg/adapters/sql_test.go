package adapters

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/HatiCode/gridcast/pkg/series"
)

func seedSQLSource(t *testing.T) *SQLSource {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE temps (ts INTEGER, state TEXT, celsius REAL, site TEXT)`,
		`INSERT INTO temps VALUES (1704067200, 'NSW', 21.5, 'airport')`,
		`INSERT INTO temps VALUES (1704067200, 'NSW', 22.5, 'observatory')`,
		`INSERT INTO temps VALUES (1704069000, 'NSW', NULL, 'airport')`,
		`INSERT INTO temps VALUES (1706745600, 'NSW', 30, 'airport')`,
		`INSERT INTO temps VALUES (1704067200, 'VIC', 18, 'airport')`,
		`INSERT INTO temps VALUES (NULL, 'VIC', 19, 'airport')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	src, err := NewSQLSource(db, "temps", SQLColumns{Timestamp: "ts", Region: "state", Value: "celsius", Station: "site"})
	if err != nil {
		t.Fatalf("NewSQLSource: %v", err)
	}
	return src
}

func TestSQLSource_Read(t *testing.T) {
	src := seedSQLSource(t)

	obs, err := src.Read(context.Background(), Query{Region: "NSW", Range: jan})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	if obs[0].Station == "" || obs[0].Region != "NSW" {
		t.Errorf("obs[0] = %+v", obs[0])
	}
	if !math.IsNaN(obs[2].Value) {
		t.Errorf("NULL value = %v, want NaN", obs[2].Value)
	}
	if want := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC); !obs[2].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", obs[2].Timestamp, want)
	}

	all, err := src.Read(context.Background(), Query{Region: "VIC"})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	unknown := 0
	for _, o := range all {
		if !o.HasTimestamp() {
			unknown++
		}
	}
	if len(all) != 2 || unknown != 1 {
		t.Errorf("VIC read = %d observations with %d unknown timestamps, want 2 and 1", len(all), unknown)
	}
}

func TestSQLSource_ReadKeepsRegionlessRows(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	stmts := []string{
		`CREATE TABLE demand (ts INTEGER, state TEXT, mw REAL)`,
		`INSERT INTO demand VALUES (1704067200, NULL, 7000)`,
		`INSERT INTO demand VALUES (1704069000, '', 7100)`,
		`INSERT INTO demand VALUES (1704070800, 'NSW', 7200)`,
		`INSERT INTO demand VALUES (1704070800, 'VIC', 5000)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	src, err := NewSQLSource(db, "demand", SQLColumns{Timestamp: "ts", Region: "state", Value: "mw"})
	if err != nil {
		t.Fatalf("NewSQLSource: %v", err)
	}

	tests := []struct {
		region string
		want   []float64
	}{
		{"NSW", []float64{7000, 7100, 7200}},
		{"VIC", []float64{7000, 7100, 5000}},
	}
	for _, tt := range tests {
		obs, err := src.Read(context.Background(), Query{Region: tt.region, Range: jan})
		if err != nil {
			t.Fatalf("Read(%s) error: %v", tt.region, err)
		}
		if len(obs) != len(tt.want) {
			t.Fatalf("Read(%s) returned %d observations, want %d", tt.region, len(obs), len(tt.want))
		}
		for i, o := range obs {
			if o.Value != tt.want[i] {
				t.Errorf("Read(%s)[%d].Value = %v, want %v", tt.region, i, o.Value, tt.want[i])
			}
		}
		if obs[0].Region != "" || obs[1].Region != "" {
			t.Errorf("Read(%s) regions = %q, %q, want empty", tt.region, obs[0].Region, obs[1].Region)
		}
	}
}

func TestSQLSource_BatchKeys(t *testing.T) {
	src := seedSQLSource(t)

	keys, err := src.BatchKeys(context.Background())
	if err != nil {
		t.Fatalf("BatchKeys error: %v", err)
	}
	want := []series.BatchKey{
		{Region: "NSW", Year: 2024, Month: time.January},
		{Region: "NSW", Year: 2024, Month: time.February},
		{Region: "VIC", Year: 2024, Month: time.January},
	}
	if len(keys) != len(want) {
		t.Fatalf("BatchKeys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestNewSQLSource_InvalidIdentifier(t *testing.T) {
	if _, err := NewSQLSource(nil, "temps; DROP TABLE x", SQLColumns{Timestamp: "ts", Region: "r", Value: "v"}); err == nil {
		t.Error("expected error for invalid table name")
	}
	if _, err := NewSQLSource(nil, "temps", SQLColumns{Timestamp: "ts", Region: "r"}); err == nil {
		t.Error("expected error for empty value column")
	}
}

func TestOpenSQLSource_Close(t *testing.T) {
	src, err := OpenSQLSource(":memory:", "t", SQLColumns{Timestamp: "ts", Region: "r", Value: "v"})
	if err != nil {
		t.Fatalf("OpenSQLSource: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
