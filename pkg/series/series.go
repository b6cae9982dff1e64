// Package series defines the data model shared by every stage of the feature
// pipeline: raw observations read from the demand and temperature sources,
// the (region, year, month) batch keys that partition the work, and the
// aligned records produced by joining both sources.
//
// All instants are expected in UTC. The zero time.Time is used as the
// "unknown timestamp" marker for observations whose source carries no
// timestamp field.
package series

import (
	"fmt"
	"math"
	"time"
)

// Observation is a single reading from either source series.
// Station is optional and only meaningful for temperature sources that report
// several locations per region; it never reaches the feature table.
type Observation struct {
	Timestamp time.Time
	Region    string
	Value     float64
	Station   string
}

// HasTimestamp reports whether the observation carries a usable timestamp.
func (o Observation) HasTimestamp() bool {
	return !o.Timestamp.IsZero()
}

// Value is a float that may be missing. The zero Value is missing.
type Value struct {
	Float64 float64
	Valid   bool
}

// Some returns a valid Value holding f. NaN is treated as missing.
func Some(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	return Value{Float64: f, Valid: true}
}

// Missing returns the missing Value.
func Missing() Value {
	return Value{}
}

// OrNaN returns the float, or NaN when the value is missing.
func (v Value) OrNaN() float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// Any returns the float as an interface, or nil when the value is missing.
// Sinks use it to persist explicit nulls.
func (v Value) Any() any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func (v Value) String() string {
	if !v.Valid {
		return "<missing>"
	}
	return fmt.Sprintf("%g", v.Float64)
}

// TimeRange is a half-open interval [Start, End). A zero TimeRange means
// "unbounded".
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the range is unbounded.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls in [Start, End). Zero bounds are open.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// Extend returns the range with End moved forward by d.
func (r TimeRange) Extend(d time.Duration) TimeRange {
	if r.End.IsZero() || d <= 0 {
		return r
	}
	return TimeRange{Start: r.Start, End: r.End.Add(d)}
}

// Aligned is the result of outer-joining demand and temperature on
// (timestamp, region). Either side may be missing.
type Aligned struct {
	Timestamp   time.Time
	Region      string
	Demand      Value
	Temperature Value
}
