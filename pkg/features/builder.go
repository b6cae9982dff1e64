// Package features turns aligned demand/temperature records into feature
// table rows: calendar fields derived in the region's local time, holiday and
// daylight flags, and forward-looking lag and shift columns.
package features

import (
	"fmt"
	"time"

	"github.com/HatiCode/gridcast/pkg/calendar"
	"github.com/HatiCode/gridcast/pkg/series"
)

// Builder derives calendar and astronomical fields for aligned records.
type Builder struct {
	oracle *calendar.Oracle
	cosine bool
}

// NewBuilder creates a builder backed by oracle. With cosine set, every record
// also carries the cosine companions of its encoded fields.
func NewBuilder(oracle *calendar.Oracle, cosine bool) *Builder {
	return &Builder{oracle: oracle, cosine: cosine}
}

// Build converts aligned records into feature records, preserving order.
// Every record must have a known timestamp and a region the oracle knows.
func (b *Builder) Build(recs []series.Aligned) ([]Record, error) {
	out := make([]Record, 0, len(recs))
	for i := range recs {
		r, err := b.build(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *Builder) build(a *series.Aligned) (Record, error) {
	if a.Timestamp.IsZero() {
		return Record{}, fmt.Errorf("record in region %q has no timestamp", a.Region)
	}

	local, err := b.oracle.Local(a.Timestamp, a.Region)
	if err != nil {
		return Record{}, err
	}
	holiday, err := b.oracle.IsPublicHoliday(local, a.Region)
	if err != nil {
		return Record{}, err
	}
	daylight, err := b.oracle.IsDaylight(a.Timestamp, a.Region)
	if err != nil {
		return Record{}, err
	}

	weekday := Weekday(local)
	slot := HalfHourSlot(local)

	r := Record{
		Timestamp:       a.Timestamp.UTC(),
		Region:          a.Region,
		Demand:          a.Demand,
		Temperature:     a.Temperature,
		Year:            local.Year(),
		Month:           Encode(float64(local.Month()), PeriodMonth),
		DayOfMonth:      local.Day(),
		DayOfWeek:       Encode(float64(weekday), PeriodWeekday),
		PeriodOfDay:     Encode(float64(slot), PeriodHalfHours),
		IsWeekday:       weekday < 5,
		IsPublicHoliday: holiday,
		IsDaylight:      daylight,
	}
	if b.cosine {
		_, mc := EncodePair(float64(local.Month()), PeriodMonth)
		_, wc := EncodePair(float64(weekday), PeriodWeekday)
		_, pc := EncodePair(float64(slot), PeriodHalfHours)
		r.Cos = &Cosines{Month: mc, DayOfWeek: wc, PeriodOfDay: pc}
	}
	return r, nil
}

// Weekday returns the day of week with Monday=0 and Sunday=6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// HalfHourSlot returns the half-hour slot of the day, 0 to 47.
func HalfHourSlot(t time.Time) int {
	return t.Hour()*2 + t.Minute()/30
}
