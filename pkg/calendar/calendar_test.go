package calendar

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOracle_IsPublicHoliday(t *testing.T) {
	o := Default()

	tests := []struct {
		name   string
		region string
		date   time.Time
		want   bool
	}{
		{"australia day", "NSW", day(2024, time.January, 26), true},
		{"ordinary friday", "NSW", day(2024, time.February, 2), false},
		{"christmas observed tuesday", "NSW", day(2022, time.December, 27), true},
		{"boxing day monday", "NSW", day(2022, time.December, 26), true},
		{"new year observed monday", "VIC", day(2023, time.January, 2), true},
		{"melbourne cup in VIC", "VIC", day(2024, time.November, 5), true},
		{"melbourne cup not in NSW", "NSW", day(2024, time.November, 5), false},
		{"good friday", "QLD", day(2024, time.March, 29), true},
		{"easter monday", "TAS", day(2024, time.April, 1), true},
		{"WA day", "WA", day(2024, time.June, 3), true},
		{"NSW labour day", "NSW", day(2024, time.October, 7), true},
		{"QLD king's birthday", "QLD", day(2024, time.October, 7), true},
		{"anzac day", "SA", day(2024, time.April, 25), true},
		{"AFL grand final eve", "VIC", day(2019, time.September, 27), true},
		{"AFL eve moved by schedule", "VIC", day(2020, time.October, 23), true},
		{"no AFL eve before 2015", "VIC", day(2014, time.September, 26), false},
		{"AFL eve not in NSW", "NSW", day(2019, time.September, 27), false},
		{"ACT reconciliation day", "ACT", day(2019, time.May, 27), true},
		{"no reconciliation day before 2018", "ACT", day(2017, time.May, 29), false},
		{"QLD may labour day", "QLD", day(2014, time.May, 5), true},
		{"QLD october monday", "QLD", day(2014, time.October, 6), true},
		{"day of mourning 2022", "NSW", day(2022, time.September, 22), true},
		{"day of mourning only in 2022", "NSW", day(2023, time.September, 22), false},
		{"WA king's birthday moved 2024", "WA", day(2024, time.September, 23), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.IsPublicHoliday(tt.date, tt.region)
			if err != nil {
				t.Fatalf("IsPublicHoliday() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsPublicHoliday(%s, %s) = %v, want %v", tt.date.Format(time.DateOnly), tt.region, got, tt.want)
			}
		})
	}
}

func TestOracle_HolidayName(t *testing.T) {
	o := Default()

	tests := []struct {
		region string
		date   time.Time
		want   string
	}{
		{"VIC", day(2019, time.September, 27), "Friday before the AFL Grand Final"},
		{"ACT", day(2019, time.May, 27), "Reconciliation Day"},
		{"NSW", day(2024, time.January, 26), "Australia Day"},
		{"NSW", day(2024, time.February, 2), ""},
	}

	for _, tt := range tests {
		got, err := o.HolidayName(tt.date, tt.region)
		if err != nil {
			t.Fatalf("HolidayName() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("HolidayName(%s, %s) = %q, want %q", tt.date.Format(time.DateOnly), tt.region, got, tt.want)
		}
	}
}

func TestOracle_NationalCalendar(t *testing.T) {
	o, err := NewOracle([]Region{{Code: "X", Timezone: "UTC", Holidays: "AU"}})
	if err != nil {
		t.Fatalf("NewOracle() error = %v", err)
	}

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"anzac day", day(2024, time.April, 25), true},
		{"australia day observed", day(2020, time.January, 27), true},
		{"day of mourning", day(2022, time.September, 22), true},
		{"melbourne cup is state only", day(2024, time.November, 5), false},
		{"easter saturday is state only", day(2024, time.March, 30), false},
	}

	for _, tt := range tests {
		got, err := o.IsPublicHoliday(tt.date, "X")
		if err != nil {
			t.Fatalf("IsPublicHoliday() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("%s: IsPublicHoliday(%s) = %v, want %v", tt.name, tt.date.Format(time.DateOnly), got, tt.want)
		}
	}
}

func TestOracle_HolidayDependsOnLocalDate(t *testing.T) {
	o := Default()
	// 00:30 on Jan 2 in Sydney, 21:30 on Jan 1 in Perth.
	instant := time.Date(2024, time.January, 1, 13, 30, 0, 0, time.UTC)

	for _, tt := range []struct {
		region string
		want   bool
	}{
		{"NSW", false},
		{"WA", true},
	} {
		local, err := o.Local(instant, tt.region)
		if err != nil {
			t.Fatalf("Local(%s) error = %v", tt.region, err)
		}
		got, err := o.IsPublicHoliday(local, tt.region)
		if err != nil {
			t.Fatalf("IsPublicHoliday(%s) error = %v", tt.region, err)
		}
		if got != tt.want {
			t.Errorf("IsPublicHoliday(%s local %s) = %v, want %v", tt.region, local, got, tt.want)
		}
	}
}

func TestOracle_Sun(t *testing.T) {
	o := Default()
	syd, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatal(err)
	}

	rise, set, err := o.Sun(time.Date(2024, time.January, 1, 12, 0, 0, 0, syd), "NSW")
	if err != nil {
		t.Fatalf("Sun() error = %v", err)
	}

	wantRise := time.Date(2024, time.January, 1, 5, 47, 0, 0, syd)
	wantSet := time.Date(2024, time.January, 1, 20, 9, 0, 0, syd)
	if d := rise.Sub(wantRise).Abs(); d > 10*time.Minute {
		t.Errorf("sunrise = %v, want about %v", rise.In(syd), wantRise)
	}
	if d := set.Sub(wantSet).Abs(); d > 10*time.Minute {
		t.Errorf("sunset = %v, want about %v", set.In(syd), wantSet)
	}
}

func TestOracle_IsDaylight(t *testing.T) {
	o := Default()

	tests := []struct {
		name    string
		region  string
		instant time.Time
		want    bool
	}{
		// 07:00 AEDT on Jan 1, the previous day in UTC.
		{"morning across UTC date", "NSW", time.Date(2023, time.December, 31, 20, 0, 0, 0, time.UTC), true},
		{"sydney midday", "NSW", time.Date(2024, time.January, 1, 2, 0, 0, 0, time.UTC), true},
		{"sydney 23:00", "NSW", time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC), false},
		{"sydney 04:00", "NSW", time.Date(2023, time.December, 31, 17, 0, 0, 0, time.UTC), false},
		// Same instant, 04:00 AWST in Perth.
		{"perth before dawn", "WA", time.Date(2023, time.December, 31, 20, 0, 0, 0, time.UTC), false},
		{"perth afternoon", "WA", time.Date(2024, time.January, 1, 7, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := o.IsDaylight(tt.instant, tt.region)
			if err != nil {
				t.Fatalf("IsDaylight() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsDaylight(%v, %s) = %v, want %v", tt.instant, tt.region, got, tt.want)
			}
		})
	}
}

func TestOracle_UnknownRegion(t *testing.T) {
	o := Default()

	if err := o.Validate("NSW", "VIC"); err != nil {
		t.Errorf("Validate(known) error = %v", err)
	}
	if err := o.Validate("NSW", "XX", "XX"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("Validate(XX) error = %v, want ErrUnknownRegion", err)
	}
	if _, err := o.IsDaylight(time.Now(), "XX"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("IsDaylight(XX) error = %v, want ErrUnknownRegion", err)
	}
	if _, err := o.IsPublicHoliday(time.Now(), "XX"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("IsPublicHoliday(XX) error = %v, want ErrUnknownRegion", err)
	}
	if _, err := o.Local(time.Now(), ""); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("Local(\"\") error = %v, want ErrUnknownRegion", err)
	}
}

func TestNewOracle_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		regions []Region
	}{
		{"empty", nil},
		{"bad timezone", []Region{{Code: "A", Timezone: "Mars/Olympus", Latitude: 0, Longitude: 0, Holidays: "AU"}}},
		{"bad latitude", []Region{{Code: "A", Timezone: "UTC", Latitude: 91, Holidays: "AU"}}},
		{"unknown calendar", []Region{{Code: "A", Timezone: "UTC"}}},
		{"duplicate", []Region{
			{Code: "A", Timezone: "UTC", Holidays: "AU"},
			{Code: "A", Timezone: "UTC", Holidays: "AU"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOracle(tt.regions); err == nil {
				t.Error("NewOracle() error = nil, want error")
			}
		})
	}
}

func TestParseRegions(t *testing.T) {
	data := []byte(`
regions:
  - code: A
    timezone: Australia/Sydney
    latitude: -33.8688
    longitude: 151.2093
    holidays: NSW
  - code: B
    timezone: Australia/Perth
    latitude: -31.95
    longitude: 115.86
    holidays: WA
`)
	regions, err := ParseRegions(data)
	if err != nil {
		t.Fatalf("ParseRegions() error = %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("len(regions) = %d, want 2", len(regions))
	}
	if regions[1].Timezone != "Australia/Perth" || regions[1].Holidays != "WA" {
		t.Errorf("regions[1] = %+v", regions[1])
	}

	o, err := NewOracle(regions)
	if err != nil {
		t.Fatalf("NewOracle() error = %v", err)
	}
	if got := o.Regions(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Regions() = %v, want [A B]", got)
	}
	ok, err := o.IsPublicHoliday(day(2024, time.June, 3), "B")
	if err != nil || !ok {
		t.Errorf("IsPublicHoliday(WA day, B) = %v, %v, want true", ok, err)
	}

	if _, err := ParseRegions([]byte("regions: []")); err == nil {
		t.Error("ParseRegions(empty) error = nil, want error")
	}
	if _, err := ParseRegions([]byte("regions: [")); err == nil {
		t.Error("ParseRegions(malformed) error = nil, want error")
	}
}

func TestOracle_ConcurrentHolidayCache(t *testing.T) {
	o := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			year := 2020 + i%4
			if ok, _ := o.IsPublicHoliday(day(year, time.January, 26), "NSW"); !ok {
				t.Errorf("Australia Day %d not a holiday", year)
			}
		}(i)
	}
	wg.Wait()
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
