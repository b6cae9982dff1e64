package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HatiCode/gridcast/pkg/series"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLColumns names the columns an SQLSource reads. Timestamps are Unix
// seconds.
type SQLColumns struct {
	Timestamp string
	Region    string
	Value     string
	// Station is optional.
	Station string
}

// SQLSource reads one row per reading from an SQLite table.
type SQLSource struct {
	db    *sql.DB
	table string
	cols  SQLColumns
	owned bool
}

// NewSQLSource reads table from db.
func NewSQLSource(db *sql.DB, table string, cols SQLColumns) (*SQLSource, error) {
	idents := []string{table, cols.Timestamp, cols.Region, cols.Value}
	if cols.Station != "" {
		idents = append(idents, cols.Station)
	}
	for _, id := range idents {
		if !identRe.MatchString(id) {
			return nil, fmt.Errorf("invalid sql identifier %q", id)
		}
	}
	return &SQLSource{db: db, table: table, cols: cols}, nil
}

// OpenSQLSource opens the SQLite database at path and reads table from it.
func OpenSQLSource(path, table string, cols SQLColumns) (*SQLSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	s, err := NewSQLSource(db, table, cols)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *SQLSource) Name() string { return "sqlite:" + s.table }

// Read implements Source. NULL timestamps become unknown timestamps and NULL
// values become missing readings. Rows with a NULL or empty region match any
// region.
func (s *SQLSource) Read(ctx context.Context, q Query) ([]series.Observation, error) {
	station := "NULL"
	if s.cols.Station != "" {
		station = s.cols.Station
	}
	var (
		where []string
		args  []any
	)
	if q.Region != "" {
		// Rows without a region belong to whichever batch reads them.
		where = append(where, fmt.Sprintf("(%[1]s = ? OR %[1]s IS NULL OR %[1]s = '')", s.cols.Region))
		args = append(args, q.Region)
	}
	if !q.Range.Start.IsZero() {
		where = append(where, s.cols.Timestamp+" >= ?")
		args = append(args, q.Range.Start.Unix())
	}
	if !q.Range.End.IsZero() {
		where = append(where, s.cols.Timestamp+" < ?")
		args = append(args, q.Range.End.Unix())
	}

	stmt := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s",
		s.cols.Timestamp, s.cols.Region, s.cols.Value, station, s.table)
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY " + s.cols.Timestamp

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var obs []series.Observation
	for rows.Next() {
		var (
			ts      sql.NullInt64
			region  sql.NullString
			value   sql.NullFloat64
			station sql.NullString
		)
		if err := rows.Scan(&ts, &region, &value, &station); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		o := series.Observation{Region: region.String, Station: station.String, Value: math.NaN()}
		if ts.Valid {
			o.Timestamp = time.Unix(ts.Int64, 0).UTC()
		}
		if value.Valid {
			o.Value = value.Float64
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// BatchKeys implements KeyEnumerator by grouping on the UTC year and month.
func (s *SQLSource) BatchKeys(ctx context.Context) ([]series.BatchKey, error) {
	stmt := fmt.Sprintf(`SELECT DISTINCT %[2]s,
		CAST(strftime('%%Y', %[1]s, 'unixepoch') AS INTEGER),
		CAST(strftime('%%m', %[1]s, 'unixepoch') AS INTEGER)
		FROM %[3]s
		WHERE %[1]s IS NOT NULL AND %[2]s IS NOT NULL AND %[2]s != ''`,
		s.cols.Timestamp, s.cols.Region, s.table)

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query batch keys: %w", err)
	}
	defer rows.Close()

	var keys []series.BatchKey
	for rows.Next() {
		var (
			k     series.BatchKey
			month int
		)
		if err := rows.Scan(&k.Region, &k.Year, &month); err != nil {
			return nil, fmt.Errorf("scan batch key: %w", err)
		}
		k.Month = time.Month(month)
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return series.SortKeys(keys), nil
}

// Close closes the database if the source opened it.
func (s *SQLSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
