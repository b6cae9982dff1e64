package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/HatiCode/gridcast/pkg/calendar"
)

// Pattern shapes the demand of one region over a local day.
type Pattern struct {
	Name        string
	Description string
	// Load returns a multiplier of the region's base load for a local time.
	Load func(local time.Time) float64
}

var patterns = map[string]Pattern{
	"flat": {
		Name:        "Flat",
		Description: "Constant load",
		Load: func(time.Time) float64 {
			return 1
		},
	},
	"business-hours": {
		Name:        "Business Hours",
		Description: "High during 9-5 on weekdays, low otherwise",
		Load: func(t time.Time) float64 {
			if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
				return 0.75
			}
			hour := t.Hour()
			if hour >= 9 && hour < 17 {
				return 1.1 + 0.15*math.Sin(float64(hour-9)*math.Pi/8)
			}
			return 0.8
		},
	},
	"sine-wave": {
		Name:        "Sine Wave",
		Description: "Smooth daily cycle peaking mid-afternoon",
		Load: func(t time.Time) float64 {
			minutes := float64(t.Hour()*60 + t.Minute())
			return 1 + 0.25*math.Sin((minutes-540)*math.Pi/720)
		},
	},
	"double-peak": {
		Name:        "Double Peak",
		Description: "Morning and evening peaks (8am, 6pm)",
		Load: func(t time.Time) float64 {
			minutes := float64(t.Hour()*60 + t.Minute())
			morning := math.Exp(-math.Pow(minutes-480, 2) / 7200)
			evening := math.Exp(-math.Pow(minutes-1080, 2) / 7200)
			return 0.8 + 0.4*math.Max(morning, 0.9*evening)
		},
	},
}

// Reading is one generated row.
type Reading struct {
	Timestamp time.Time
	Region    string
	Station   string
	// Value is nil for a missing reading.
	Value *float64
}

// Options controls generation.
type Options struct {
	Regions  []string
	Start    time.Time
	Days     int
	Cadence  time.Duration
	Pattern  Pattern
	Stations int
	// Missing is the probability that a temperature reading is null.
	Missing float64
	Seed    uint64
}

// Generate returns demand and temperature readings for every region from
// Start over Days. Output is a pure function of opts.
func Generate(oracle *calendar.Oracle, opts Options) (demand, temperature []Reading, err error) {
	if err := oracle.Validate(opts.Regions...); err != nil {
		return nil, nil, err
	}
	if opts.Cadence <= 0 || opts.Days <= 0 {
		return nil, nil, fmt.Errorf("cadence and days must be positive")
	}
	if opts.Stations < 1 {
		opts.Stations = 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	end := opts.Start.AddDate(0, 0, opts.Days)

	for i, region := range opts.Regions {
		base := 4000 + 1500*float64(i%4)
		for ts := opts.Start; ts.Before(end); ts = ts.Add(opts.Cadence) {
			local, err := oracle.Local(ts, region)
			if err != nil {
				return nil, nil, err
			}

			temp := temperatureAt(local)
			// Demand rises with heating and cooling load away from 18C.
			load := base*opts.Pattern.Load(local) + 60*math.Abs(temp-18) + rng.NormFloat64()*25
			demand = append(demand, Reading{Timestamp: ts, Region: region, Value: &load})

			for s := range opts.Stations {
				r := Reading{Timestamp: ts, Region: region, Station: fmt.Sprintf("station-%d", s+1)}
				if rng.Float64() >= opts.Missing {
					v := temp + rng.NormFloat64()*0.5 + float64(s)*0.3
					r.Value = &v
				}
				temperature = append(temperature, r)
			}
		}
	}
	return demand, temperature, nil
}

// temperatureAt is a southern-hemisphere climate: warmest in mid-January and
// at 3pm local.
func temperatureAt(local time.Time) float64 {
	season := math.Cos(float64(local.YearDay()-15) * 2 * math.Pi / 365.25)
	hour := float64(local.Hour()) + float64(local.Minute())/60
	daily := math.Cos((hour - 15) * math.Pi / 12)
	return 17 + 7*season + 5*daily
}
