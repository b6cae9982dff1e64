package features

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/HatiCode/gridcast/pkg/series"
)

// Boundary selects what happens to rows whose future values fall outside the
// available data. There is no default; it must be chosen explicitly.
type Boundary int

const (
	BoundaryUnset Boundary = iota
	// BoundaryDrop removes rows with any unavailable future value.
	BoundaryDrop
	// BoundaryMark keeps such rows with the unavailable values left missing.
	BoundaryMark
)

func (b Boundary) String() string {
	switch b {
	case BoundaryDrop:
		return "drop"
	case BoundaryMark:
		return "mark"
	default:
		return "unset"
	}
}

// ParseBoundary parses "drop" or "mark".
func ParseBoundary(s string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop":
		return BoundaryDrop, nil
	case "mark":
		return BoundaryMark, nil
	case "":
		return BoundaryUnset, errors.New("boundary policy is required (drop or mark)")
	default:
		return BoundaryUnset, fmt.Errorf("unknown boundary policy %q (must be drop or mark)", s)
	}
}

// Lag adds the value of each column at t+Horizon to the row at t.
type Lag struct {
	Horizon time.Duration
	Columns []string
}

// Shift adds the value of Column at every Cadence step from t+Cadence up to
// t+Horizon. A zero Horizon disables it.
type Shift struct {
	Column  string
	Horizon time.Duration
}

// Generator builds forward-looking columns within each region's own
// chronologically sorted sequence.
type Generator struct {
	Lags     []Lag
	Shift    Shift
	Cadence  time.Duration
	Boundary Boundary
}

// DefaultLagColumns are the columns lagged when none are configured.
func DefaultLagColumns() []string {
	return []string{ColYear, ColMonth, ColDayOfMonth, ColDayOfWeek, ColDemand}
}

// LagName names the column holding col at horizon h, e.g. h1_demand.
func LagName(h time.Duration, col string) string {
	if h%time.Hour == 0 {
		return fmt.Sprintf("h%d_%s", h/time.Hour, col)
	}
	return fmt.Sprintf("m%d_%s", h/time.Minute, col)
}

// ShiftName names the dense shift column at offset d, e.g. TM30.
func ShiftName(d time.Duration) string {
	return fmt.Sprintf("TM%d", d/time.Minute)
}

// Validate checks the generator configuration.
func (g *Generator) Validate() error {
	if g.Boundary != BoundaryDrop && g.Boundary != BoundaryMark {
		return errors.New("boundary policy is required (drop or mark)")
	}
	if g.Cadence <= 0 {
		return fmt.Errorf("cadence must be positive, got %s", g.Cadence)
	}
	for _, l := range g.Lags {
		if l.Horizon <= 0 {
			return fmt.Errorf("lag horizon must be positive, got %s", l.Horizon)
		}
		if l.Horizon%time.Minute != 0 {
			return fmt.Errorf("lag horizon %s is not a whole number of minutes", l.Horizon)
		}
		if len(l.Columns) == 0 {
			return fmt.Errorf("lag horizon %s has no columns", l.Horizon)
		}
		for _, c := range l.Columns {
			if !IsBaseColumn(c) {
				return fmt.Errorf("unknown lag column %q", c)
			}
		}
	}
	if g.Shift.Horizon < 0 {
		return fmt.Errorf("shift horizon must not be negative, got %s", g.Shift.Horizon)
	}
	if g.Shift.Horizon > 0 {
		if !IsBaseColumn(g.Shift.Column) {
			return fmt.Errorf("unknown shift column %q", g.Shift.Column)
		}
		if g.Shift.Horizon%g.Cadence != 0 {
			return fmt.Errorf("shift horizon %s is not a multiple of cadence %s", g.Shift.Horizon, g.Cadence)
		}
		if g.Cadence%time.Minute != 0 {
			return fmt.Errorf("cadence %s is not a whole number of minutes", g.Cadence)
		}
	}
	seen := make(map[string]bool)
	for _, n := range g.Names() {
		if seen[n] {
			return fmt.Errorf("duplicate future column %q", n)
		}
		seen[n] = true
	}
	return nil
}

// Names returns the generated column names in a stable order.
func (g *Generator) Names() []string {
	var names []string
	for _, l := range g.Lags {
		for _, c := range l.Columns {
			names = append(names, LagName(l.Horizon, c))
		}
	}
	for k := 1; k <= g.shiftSteps(); k++ {
		names = append(names, ShiftName(time.Duration(k)*g.Cadence))
	}
	return names
}

// MaxHorizon is the furthest offset any generated column looks ahead.
func (g *Generator) MaxHorizon() time.Duration {
	var m time.Duration
	for _, l := range g.Lags {
		m = max(m, l.Horizon)
	}
	if g.shiftSteps() > 0 {
		m = max(m, g.Shift.Horizon)
	}
	return m
}

func (g *Generator) shiftSteps() int {
	if g.Shift.Horizon <= 0 || g.Cadence <= 0 {
		return 0
	}
	return int(g.Shift.Horizon / g.Cadence)
}

// Result is the output of Generate.
type Result struct {
	Records []Record
	// Dropped counts rows removed under BoundaryDrop.
	Dropped int
	// Marked counts rows kept with at least one unavailable value.
	Marked int
	// Positional counts regions whose dense shift used row offsets.
	Positional int
}

// Generate sorts recs by (region, timestamp) and fills each row's future
// columns from rows of the same region only. Rows outside emit are used as
// lookup targets but not returned; a zero emit returns every row.
func (g *Generator) Generate(recs []Record, emit series.TimeRange) (Result, error) {
	if err := g.Validate(); err != nil {
		return Result{}, err
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Region != recs[j].Region {
			return recs[i].Region < recs[j].Region
		}
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})

	var res Result
	res.Records = make([]Record, 0, len(recs))
	for start := 0; start < len(recs); {
		end := start
		for end < len(recs) && recs[end].Region == recs[start].Region {
			end++
		}
		if g.generateRegion(recs[start:end], emit, &res) {
			res.Positional++
		}
		start = end
	}
	return res, nil
}

// generateRegion handles one region's sorted rows. It reports whether the
// dense shift used positional offsets.
func (g *Generator) generateRegion(rows []Record, emit series.TimeRange, res *Result) bool {
	index := make(map[int64]int, len(rows))
	for i := range rows {
		index[rows[i].Timestamp.UnixNano()] = i
	}
	at := func(t time.Time) (int, bool) {
		j, ok := index[t.UnixNano()]
		return j, ok
	}

	steps := g.shiftSteps()
	positional := steps > 0 && gapFree(rows, g.Cadence)

	for i := range rows {
		row := rows[i]
		if !emit.IsZero() && !emit.Contains(row.Timestamp) {
			continue
		}

		future := make(map[string]series.Value, len(g.Lags)*4+steps)
		complete := true
		set := func(name string, v series.Value) {
			future[name] = v
			if !v.Valid {
				complete = false
			}
		}

		for _, l := range g.Lags {
			j, ok := at(row.Timestamp.Add(l.Horizon))
			for _, c := range l.Columns {
				v := series.Missing()
				if ok {
					v, _ = rows[j].Column(c)
				}
				set(LagName(l.Horizon, c), v)
			}
		}

		for k := 1; k <= steps; k++ {
			offset := time.Duration(k) * g.Cadence
			j, ok := i+k, i+k < len(rows)
			if !positional {
				j, ok = at(row.Timestamp.Add(offset))
			}
			v := series.Missing()
			if ok {
				v, _ = rows[j].Column(g.Shift.Column)
			}
			set(ShiftName(offset), v)
		}

		if !complete {
			if g.Boundary == BoundaryDrop {
				res.Dropped++
				continue
			}
			res.Marked++
		}
		row.Future = future
		res.Records = append(res.Records, row)
	}
	return positional
}

// gapFree reports whether consecutive rows are exactly cadence apart.
func gapFree(rows []Record, cadence time.Duration) bool {
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp.Sub(rows[i-1].Timestamp) != cadence {
			return false
		}
	}
	return true
}
