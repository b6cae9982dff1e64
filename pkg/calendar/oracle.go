// Package calendar answers calendar and astronomical questions about a region:
// whether a date is a public holiday there, and whether an instant falls in
// daylight at the region's representative location.
//
// Every question is asked in the region's own civil time. An instant is first
// converted to the region's timezone and reduced to that local calendar date;
// sunrise and sunset are computed for the local date, never for the UTC date.
//
// Regions are fixed at construction. Asking about a region that is not in the
// table returns an error wrapping ErrUnknownRegion instead of falling back to
// a default timezone.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/nathan-osman/go-sunrise"
	cal "github.com/rickar/cal/v2"
)

// ErrUnknownRegion is returned for regions missing from the region table.
var ErrUnknownRegion = errors.New("unknown region")

type region struct {
	Region
	loc      *time.Location
	holidays []*cal.Holiday
}

type yearKey struct {
	calendar string
	year     int
}

// Oracle is safe for concurrent use.
type Oracle struct {
	regions map[string]*region

	mu    sync.RWMutex
	years map[yearKey]map[dateKey]string
}

// NewOracle builds an Oracle from a region table. It fails if a region has an
// invalid timezone or location, names an unknown holiday calendar, or appears
// twice.
func NewOracle(regions []Region) (*Oracle, error) {
	if len(regions) == 0 {
		return nil, errors.New("region table is empty")
	}

	o := &Oracle{
		regions: make(map[string]*region, len(regions)),
		years:   make(map[yearKey]map[dateKey]string),
	}
	for _, r := range regions {
		loc, err := r.validate()
		if err != nil {
			return nil, err
		}
		if _, dup := o.regions[r.Code]; dup {
			return nil, fmt.Errorf("region %q listed twice", r.Code)
		}
		if r.Holidays == "" {
			r.Holidays = r.Code
		}
		hols, ok := holidayCalendars[r.Holidays]
		if !ok {
			return nil, fmt.Errorf("region %q: no holiday calendar %q", r.Code, r.Holidays)
		}
		o.regions[r.Code] = &region{Region: r, loc: loc, holidays: hols}
	}
	return o, nil
}

// Default returns an Oracle over DefaultRegions.
func Default() *Oracle {
	o, err := NewOracle(DefaultRegions())
	if err != nil {
		panic(fmt.Sprintf("default region table: %v", err))
	}
	return o
}

// Regions returns the configured region codes, sorted.
func (o *Oracle) Regions() []string {
	codes := make([]string, 0, len(o.regions))
	for c := range o.regions {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Validate checks that every code is in the region table.
func (o *Oracle) Validate(codes ...string) error {
	var unknown []string
	seen := make(map[string]bool)
	for _, c := range codes {
		if _, ok := o.regions[c]; !ok && !seen[c] {
			unknown = append(unknown, fmt.Sprintf("%q", c))
			seen[c] = true
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, strings.Join(unknown, ", "))
	}
	return nil
}

func (o *Oracle) lookup(code string) (*region, error) {
	r, ok := o.regions[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, code)
	}
	return r, nil
}

// Region returns the table entry for code.
func (o *Oracle) Region(code string) (Region, error) {
	r, err := o.lookup(code)
	if err != nil {
		return Region{}, err
	}
	return r.Region, nil
}

// Local converts an instant to the region's civil time.
func (o *Oracle) Local(instant time.Time, code string) (time.Time, error) {
	r, err := o.lookup(code)
	if err != nil {
		return time.Time{}, err
	}
	return instant.In(r.loc), nil
}

// IsPublicHoliday reports whether date is a public holiday (actual or
// observed substitute) in the region. Only the calendar date of date, in its
// own location, is considered; convert instants with Local first.
func (o *Oracle) IsPublicHoliday(date time.Time, code string) (bool, error) {
	r, err := o.lookup(code)
	if err != nil {
		return false, err
	}
	_, ok := o.holidaysFor(r, date.Year())[dateOf(date)]
	return ok, nil
}

// HolidayName returns the holiday falling on date, or "".
func (o *Oracle) HolidayName(date time.Time, code string) (string, error) {
	r, err := o.lookup(code)
	if err != nil {
		return "", err
	}
	return o.holidaysFor(r, date.Year())[dateOf(date)], nil
}

func (o *Oracle) holidaysFor(r *region, year int) map[dateKey]string {
	k := yearKey{calendar: r.Holidays, year: year}

	o.mu.RLock()
	days, ok := o.years[k]
	o.mu.RUnlock()
	if ok {
		return days
	}

	days = holidaysIn(r.holidays, year)
	o.mu.Lock()
	o.years[k] = days
	o.mu.Unlock()
	return days
}

// Sun returns sunrise and sunset (as UTC instants) for the region's local
// calendar date containing instant. Both are zero during polar day or night.
func (o *Oracle) Sun(instant time.Time, code string) (time.Time, time.Time, error) {
	r, err := o.lookup(code)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	local := instant.In(r.loc)
	rise, set := sunrise.SunriseSunset(r.Latitude, r.Longitude, local.Year(), local.Month(), local.Day())
	return rise, set, nil
}

// IsDaylight reports whether instant falls strictly between sunrise and
// sunset of the region's local day.
func (o *Oracle) IsDaylight(instant time.Time, code string) (bool, error) {
	rise, set, err := o.Sun(instant, code)
	if err != nil {
		return false, err
	}
	if rise.IsZero() || set.IsZero() {
		return false, nil
	}
	return instant.After(rise) && instant.Before(set), nil
}
