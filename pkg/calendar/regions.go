package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Region describes where a region lives: its civil timezone, the location used
// for sunrise/sunset, and the public-holiday calendar it follows.
type Region struct {
	Code      string  `yaml:"code"`
	Timezone  string  `yaml:"timezone"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	// Holidays names the holiday calendar. Defaults to Code.
	Holidays string `yaml:"holidays,omitempty"`
}

// DefaultRegions is the table for the Australian NEM states and territories.
// Each region is represented by its capital city.
func DefaultRegions() []Region {
	return []Region{
		{Code: "NSW", Timezone: "Australia/Sydney", Latitude: -33.8688, Longitude: 151.2093},
		{Code: "VIC", Timezone: "Australia/Melbourne", Latitude: -37.8136, Longitude: 144.9631},
		{Code: "QLD", Timezone: "Australia/Brisbane", Latitude: -27.4698, Longitude: 153.0251},
		{Code: "SA", Timezone: "Australia/Adelaide", Latitude: -34.9285, Longitude: 138.6007},
		{Code: "TAS", Timezone: "Australia/Hobart", Latitude: -42.8821, Longitude: 147.3272},
		{Code: "WA", Timezone: "Australia/Perth", Latitude: -31.9505, Longitude: 115.8605},
		{Code: "ACT", Timezone: "Australia/Sydney", Latitude: -35.2809, Longitude: 149.1300},
		{Code: "NT", Timezone: "Australia/Darwin", Latitude: -12.4634, Longitude: 130.8456},
	}
}

type regionFile struct {
	Regions []Region `yaml:"regions"`
}

// ParseRegions decodes a YAML region table:
//
//	regions:
//	  - code: NSW
//	    timezone: Australia/Sydney
//	    latitude: -33.8688
//	    longitude: 151.2093
func ParseRegions(data []byte) ([]Region, error) {
	var f regionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode region table: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("region table is empty")
	}
	return f.Regions, nil
}

// LoadRegions reads a YAML region table from path.
func LoadRegions(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region table: %w", err)
	}
	return ParseRegions(data)
}

func (r Region) validate() (*time.Location, error) {
	if r.Code == "" {
		return nil, fmt.Errorf("region code cannot be empty")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return nil, fmt.Errorf("region %q: latitude %v out of range", r.Code, r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return nil, fmt.Errorf("region %q: longitude %v out of range", r.Code, r.Longitude)
	}
	if r.Timezone == "" {
		return nil, fmt.Errorf("region %q: timezone cannot be empty", r.Code)
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("region %q: %w", r.Code, err)
	}
	return loc, nil
}
