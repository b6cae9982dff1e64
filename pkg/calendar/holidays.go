package calendar

import (
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"
)

// holidayCalendars maps a calendar name to the public holidays it observes.
// "AU" holds the holidays every state shares.
var holidayCalendars = map[string][]*cal.Holiday{
	"AU": {
		au.NewYear,
		au.AustraliaDay,
		au.GoodFriday,
		au.EasterMonday,
		au.AnzacDay,
		au.MourningDay2022,
		au.ChristmasDay,
		au.BoxingDay,
	},
	"NSW": au.HolidaysNSW,
	"VIC": au.HolidaysVIC,
	"QLD": au.HolidaysQLD,
	"SA":  au.HolidaysSA,
	"TAS": au.HolidaysTAS,
	"WA":  au.HolidaysWA,
	"ACT": au.HolidaysACT,
	"NT":  au.HolidaysNT,
}

type dateKey struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) dateKey {
	y, m, d := t.Date()
	return dateKey{y, m, d}
}

// holidaysIn returns every actual and observed holiday date of year. Rules
// outside their start/end years yield zero times and are skipped.
func holidaysIn(hols []*cal.Holiday, year int) map[dateKey]string {
	out := make(map[dateKey]string, 2*len(hols))
	for _, h := range hols {
		actual, observed := h.Calc(year)
		if !actual.IsZero() {
			out[dateOf(actual)] = h.Name
		}
		if !observed.IsZero() {
			out[dateOf(observed)] = h.Name
		}
	}
	return out
}
