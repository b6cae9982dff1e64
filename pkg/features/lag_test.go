package features

import (
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/gridcast/pkg/series"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// regionRows returns n rows at 30-minute cadence with demand base+i.
func regionRows(region string, n int, base float64) []Record {
	rows := make([]Record, n)
	for i := range rows {
		rows[i] = Record{
			Timestamp: t0.Add(time.Duration(i) * 30 * time.Minute),
			Region:    region,
			Demand:    series.Some(base + float64(i)),
			Year:      2024,
		}
	}
	return rows
}

func hourAhead(b Boundary) *Generator {
	return &Generator{
		Lags:     []Lag{{Horizon: time.Hour, Columns: []string{ColDemand}}},
		Cadence:  30 * time.Minute,
		Boundary: b,
	}
}

func TestGenerate_HourAheadDrop(t *testing.T) {
	const n = 10
	rows := regionRows("A", n, 0)

	res, err := hourAhead(BoundaryDrop).Generate(rows, series.TimeRange{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Records) != n-2 {
		t.Fatalf("len(Records) = %d, want %d", len(res.Records), n-2)
	}
	if res.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", res.Dropped)
	}
	for i, r := range res.Records {
		got := r.Future["h1_demand"]
		want := float64(i + 2)
		if !got.Valid || got.Float64 != want {
			t.Errorf("h1_demand[t%d] = %v, want %v", i, got, want)
		}
	}
}

func TestGenerate_HourAheadMark(t *testing.T) {
	const n = 10
	rows := regionRows("A", n, 0)

	res, err := hourAhead(BoundaryMark).Generate(rows, series.TimeRange{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Records) != n {
		t.Fatalf("len(Records) = %d, want %d", len(res.Records), n)
	}
	if res.Marked != 2 || res.Dropped != 0 {
		t.Errorf("Marked/Dropped = %d/%d, want 2/0", res.Marked, res.Dropped)
	}
	for i, r := range res.Records {
		got := r.Future["h1_demand"]
		if i < n-2 {
			if !got.Valid || got.Float64 != float64(i+2) {
				t.Errorf("h1_demand[t%d] = %v, want %d", i, got, i+2)
			}
			continue
		}
		if got.Valid {
			t.Errorf("h1_demand[t%d] = %v, want unavailable", i, got)
		}
	}
}

func TestGenerate_NoCrossRegionLeakage(t *testing.T) {
	a := regionRows("A", 6, 0)
	b := regionRows("B", 6, 100)

	// Interleaved and unsorted, the way a careless global shift would see it.
	var rows []Record
	for i := len(a) - 1; i >= 0; i-- {
		rows = append(rows, b[i], a[i])
	}

	g := &Generator{
		Lags:     []Lag{{Horizon: time.Hour, Columns: []string{ColDemand}}},
		Shift:    Shift{Column: ColDemand, Horizon: 90 * time.Minute},
		Cadence:  30 * time.Minute,
		Boundary: BoundaryMark,
	}
	res, err := g.Generate(rows, series.TimeRange{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Records) != 12 {
		t.Fatalf("len(Records) = %d, want 12", len(res.Records))
	}

	for i, r := range res.Records {
		if i > 0 {
			prev := res.Records[i-1]
			if prev.Region > r.Region || (prev.Region == r.Region && !prev.Timestamp.Before(r.Timestamp)) {
				t.Fatalf("records not sorted by (region, timestamp) at %d", i)
			}
		}
		for name, v := range r.Future {
			if !v.Valid {
				continue
			}
			fromB := v.Float64 >= 100
			if fromB != (r.Region == "B") {
				t.Errorf("%s row %v: %s = %v comes from another region", r.Region, r.Timestamp, name, v)
			}
		}
	}

	// Last row of A must not borrow B's first rows.
	lastA := res.Records[5]
	if lastA.Region != "A" || lastA.Future["TM30"].Valid {
		t.Errorf("last A row TM30 = %v, want unavailable", lastA.Future["TM30"])
	}
}

func TestGenerate_GapsUseTimestamps(t *testing.T) {
	full := regionRows("A", 8, 0)
	// Drop t2: a positional offset would now pair t0 with t3.
	rows := append(append([]Record{}, full[:2]...), full[3:]...)

	g := &Generator{
		Lags:     []Lag{{Horizon: time.Hour, Columns: []string{ColDemand}}},
		Shift:    Shift{Column: ColDemand, Horizon: time.Hour},
		Cadence:  30 * time.Minute,
		Boundary: BoundaryMark,
	}
	res, err := g.Generate(rows, series.TimeRange{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Positional != 0 {
		t.Errorf("Positional = %d, want 0 for a gapped series", res.Positional)
	}

	byTime := make(map[time.Time]Record)
	for _, r := range res.Records {
		byTime[r.Timestamp] = r
	}

	r0 := byTime[full[0].Timestamp]
	if r0.Future["h1_demand"].Valid {
		t.Errorf("h1_demand[t0] = %v, want unavailable (t2 missing)", r0.Future["h1_demand"])
	}
	if v := r0.Future["TM30"]; !v.Valid || v.Float64 != 1 {
		t.Errorf("TM30[t0] = %v, want 1", v)
	}
	if r0.Future["TM60"].Valid {
		t.Errorf("TM60[t0] = %v, want unavailable", r0.Future["TM60"])
	}

	r1 := byTime[full[1].Timestamp]
	if v := r1.Future["h1_demand"]; !v.Valid || v.Float64 != 3 {
		t.Errorf("h1_demand[t1] = %v, want 3", v)
	}
	if r1.Future["TM30"].Valid {
		t.Errorf("TM30[t1] = %v, want unavailable (t2 missing)", r1.Future["TM30"])
	}
}

func TestGenerate_DenseShiftPositional(t *testing.T) {
	rows := regionRows("A", 50, 0)
	g := &Generator{
		Shift:    Shift{Column: ColDemand, Horizon: 24 * time.Hour},
		Cadence:  30 * time.Minute,
		Boundary: BoundaryDrop,
	}
	res, err := g.Generate(rows, series.TimeRange{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Positional != 1 {
		t.Errorf("Positional = %d, want 1", res.Positional)
	}
	if len(res.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(res.Records))
	}
	r := res.Records[1]
	for k := 1; k <= 48; k++ {
		name := ShiftName(time.Duration(k) * 30 * time.Minute)
		if v := r.Future[name]; !v.Valid || v.Float64 != float64(1+k) {
			t.Errorf("%s[t1] = %v, want %d", name, v, 1+k)
		}
	}
}

func TestGenerate_EmitRange(t *testing.T) {
	rows := regionRows("A", 6, 0)
	emit := series.TimeRange{Start: t0, End: t0.Add(2 * time.Hour)}

	res, err := hourAhead(BoundaryDrop).Generate(rows, emit)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Records) != 4 || res.Dropped != 0 {
		t.Fatalf("Records/Dropped = %d/%d, want 4/0", len(res.Records), res.Dropped)
	}
	if v := res.Records[3].Future["h1_demand"]; v.Float64 != 5 {
		t.Errorf("h1_demand[t3] = %v, want 5 from the lookahead row", v)
	}
}

func TestGenerate_LagCalendarColumns(t *testing.T) {
	rows := regionRows("A", 3, 0)
	rows[2].Year = 2025
	g := &Generator{
		Lags:     []Lag{{Horizon: time.Hour, Columns: []string{ColYear}}},
		Cadence:  30 * time.Minute,
		Boundary: BoundaryDrop,
	}
	res, err := g.Generate(rows, series.TimeRange{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(res.Records))
	}
	if v := res.Records[0].Future["h1_year"]; v.Float64 != 2025 {
		t.Errorf("h1_year = %v, want 2025", v)
	}
}

func TestGenerator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		g       Generator
		wantErr string
	}{
		{"boundary unset", Generator{Cadence: time.Minute}, "boundary"},
		{"no cadence", Generator{Boundary: BoundaryDrop}, "cadence"},
		{"unknown column", Generator{Cadence: time.Minute, Boundary: BoundaryDrop,
			Lags: []Lag{{Horizon: time.Hour, Columns: []string{"price"}}}}, "unknown lag column"},
		{"shift not multiple", Generator{Cadence: 30 * time.Minute, Boundary: BoundaryDrop,
			Shift: Shift{Column: ColDemand, Horizon: 45 * time.Minute}}, "multiple"},
		{"duplicate", Generator{Cadence: time.Minute, Boundary: BoundaryDrop,
			Lags: []Lag{{Horizon: time.Hour, Columns: []string{ColDemand}}, {Horizon: 60 * time.Minute, Columns: []string{ColDemand}}}}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := (&Generator{}).Generate(nil, series.TimeRange{}); err == nil {
		t.Error("Generate() with unset boundary error = nil, want error")
	}
}

func TestGenerator_NamesAndHorizon(t *testing.T) {
	g := &Generator{
		Lags: []Lag{
			{Horizon: time.Hour, Columns: DefaultLagColumns()},
			{Horizon: 24 * time.Hour, Columns: DefaultLagColumns()},
		},
		Shift:    Shift{Column: ColDemand, Horizon: 24 * time.Hour},
		Cadence:  30 * time.Minute,
		Boundary: BoundaryDrop,
	}
	names := g.Names()
	if len(names) != 10+48 {
		t.Fatalf("len(Names()) = %d, want 58", len(names))
	}
	if names[0] != "h1_year" || names[9] != "h24_demand" {
		t.Errorf("Names()[0], [9] = %s, %s", names[0], names[9])
	}
	if names[10] != "TM30" || names[len(names)-1] != "TM1440" {
		t.Errorf("shift names = %s..%s, want TM30..TM1440", names[10], names[len(names)-1])
	}
	if got := g.MaxHorizon(); got != 24*time.Hour {
		t.Errorf("MaxHorizon() = %v, want 24h", got)
	}
	if got := LagName(90*time.Minute, ColDemand); got != "m90_demand" {
		t.Errorf("LagName(90m) = %s, want m90_demand", got)
	}
}

func TestParseBoundary(t *testing.T) {
	for in, want := range map[string]Boundary{"drop": BoundaryDrop, "MARK": BoundaryMark} {
		got, err := ParseBoundary(in)
		if err != nil || got != want {
			t.Errorf("ParseBoundary(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	for _, in := range []string{"", "zero"} {
		if _, err := ParseBoundary(in); err == nil {
			t.Errorf("ParseBoundary(%q) error = nil, want error", in)
		}
	}
}
