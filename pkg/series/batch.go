package series

import (
	"fmt"
	"sort"
	"time"
)

// BatchKey is the unit of work: one region for one UTC calendar month.
type BatchKey struct {
	Region string
	Year   int
	Month  time.Month
}

// KeyOf returns the batch key an observation belongs to. The month is taken
// from the UTC instant.
func KeyOf(region string, ts time.Time) BatchKey {
	u := ts.UTC()
	return BatchKey{Region: region, Year: u.Year(), Month: u.Month()}
}

// Range returns the UTC month covered by the key.
func (k BatchKey) Range() TimeRange {
	start := time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
	return TimeRange{Start: start, End: start.AddDate(0, 1, 0)}
}

// Less orders keys by (region, year, month).
func (k BatchKey) Less(o BatchKey) bool {
	if k.Region != o.Region {
		return k.Region < o.Region
	}
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

func (k BatchKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.Region, k.Year, int(k.Month))
}

// SortKeys sorts keys in place by (region, year, month) and removes duplicates.
func SortKeys(keys []BatchKey) []BatchKey {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && k == keys[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}
