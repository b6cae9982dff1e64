package features

import (
	"time"

	"github.com/HatiCode/gridcast/pkg/series"
)

// Column names of the feature table.
//
// year and day_of_month are raw integers. month, day_of_week (Monday=0) and
// period_of_day (half-hour slot) are sine-encoded with Encode. The *_cos
// columns are present only when cosine companions are enabled.
const (
	ColTimestamp       = "timestamp"
	ColRegion          = "region"
	ColDemand          = "demand"
	ColTemperature     = "temperature"
	ColYear            = "year"
	ColMonth           = "month"
	ColDayOfMonth      = "day_of_month"
	ColDayOfWeek       = "day_of_week"
	ColPeriodOfDay     = "period_of_day"
	ColMonthCos        = "month_cos"
	ColDayOfWeekCos    = "day_of_week_cos"
	ColPeriodOfDayCos  = "period_of_day_cos"
	ColIsWeekday       = "is_weekday"
	ColIsPublicHoliday = "is_public_holiday"
	ColIsDaylight      = "is_daylight"
)

// Cosines holds the cosine companions of the encoded calendar fields.
type Cosines struct {
	Month       float64
	DayOfWeek   float64
	PeriodOfDay float64
}

// Record is one row of the feature table.
type Record struct {
	Timestamp   time.Time
	Region      string
	Demand      series.Value
	Temperature series.Value

	Year        int
	Month       float64
	DayOfMonth  int
	DayOfWeek   float64
	PeriodOfDay float64
	Cos         *Cosines

	IsWeekday       bool
	IsPublicHoliday bool
	IsDaylight      bool

	// Future holds lag and shift columns by name. A missing or invalid entry
	// means the future value is unavailable.
	Future map[string]series.Value
}

// Column returns a base column as a numeric value. Booleans map to 0 and 1.
// It reports false for names that are not base columns.
func (r *Record) Column(name string) (series.Value, bool) {
	switch name {
	case ColDemand:
		return r.Demand, true
	case ColTemperature:
		return r.Temperature, true
	case ColYear:
		return series.Some(float64(r.Year)), true
	case ColMonth:
		return series.Some(r.Month), true
	case ColDayOfMonth:
		return series.Some(float64(r.DayOfMonth)), true
	case ColDayOfWeek:
		return series.Some(r.DayOfWeek), true
	case ColPeriodOfDay:
		return series.Some(r.PeriodOfDay), true
	case ColIsWeekday:
		return boolValue(r.IsWeekday), true
	case ColIsPublicHoliday:
		return boolValue(r.IsPublicHoliday), true
	case ColIsDaylight:
		return boolValue(r.IsDaylight), true
	}
	if r.Cos != nil {
		switch name {
		case ColMonthCos:
			return series.Some(r.Cos.Month), true
		case ColDayOfWeekCos:
			return series.Some(r.Cos.DayOfWeek), true
		case ColPeriodOfDayCos:
			return series.Some(r.Cos.PeriodOfDay), true
		}
	}
	return series.Missing(), false
}

// IsBaseColumn reports whether name can be used as a lag or shift source.
func IsBaseColumn(name string) bool {
	switch name {
	case ColDemand, ColTemperature, ColYear, ColMonth, ColDayOfMonth, ColDayOfWeek,
		ColPeriodOfDay, ColIsWeekday, ColIsPublicHoliday, ColIsDaylight,
		ColMonthCos, ColDayOfWeekCos, ColPeriodOfDayCos:
		return true
	}
	return false
}

// Document flattens the record for persistence. Unavailable values are nil.
func (r *Record) Document() map[string]any {
	doc := map[string]any{
		ColTimestamp:       r.Timestamp.UTC(),
		ColRegion:          r.Region,
		ColDemand:          r.Demand.Any(),
		ColTemperature:     r.Temperature.Any(),
		ColYear:            r.Year,
		ColMonth:           r.Month,
		ColDayOfMonth:      r.DayOfMonth,
		ColDayOfWeek:       r.DayOfWeek,
		ColPeriodOfDay:     r.PeriodOfDay,
		ColIsWeekday:       r.IsWeekday,
		ColIsPublicHoliday: r.IsPublicHoliday,
		ColIsDaylight:      r.IsDaylight,
	}
	if r.Cos != nil {
		doc[ColMonthCos] = r.Cos.Month
		doc[ColDayOfWeekCos] = r.Cos.DayOfWeek
		doc[ColPeriodOfDayCos] = r.Cos.PeriodOfDay
	}
	for name, v := range r.Future {
		doc[name] = v.Any()
	}
	return doc
}

func boolValue(b bool) series.Value {
	if b {
		return series.Some(1)
	}
	return series.Some(0)
}
