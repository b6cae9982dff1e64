// Package align merges demand and temperature observations for one batch into
// a single record set keyed by (region, timestamp).
//
// Both sides are first reduced to one value per key by arithmetic mean, so a
// temperature source reporting several stations per region never multiplies
// rows in the join. The join itself is a full outer join: a key present on
// only one side is emitted with the other side missing.
package align

import (
	"math"
	"sort"
	"time"

	"github.com/HatiCode/gridcast/pkg/series"
)

// Result is the output of Join.
type Result struct {
	// Records are unique per (region, timestamp) and sorted by region, then
	// timestamp.
	Records []series.Aligned

	// Unaligned counts observations that carried no timestamp. They cannot be
	// keyed and are left out of Records.
	Unaligned int

	// Collapsed counts observations merged into another one for the same key
	// (e.g. several temperature stations).
	Collapsed int
}

type key struct {
	region string
	ts     int64
}

type accumulator struct {
	ts    time.Time
	sum   float64
	count int
}

func (a *accumulator) mean() series.Value {
	if a.count == 0 {
		return series.Missing()
	}
	return series.Some(a.sum / float64(a.count))
}

// Join outer-joins demand and temperature on (timestamp, region).
// Observations with an empty region are attributed to region, the region of
// the batch being processed.
func Join(region string, demand, temperature []series.Observation) Result {
	var res Result

	d, unaligned, collapsed := reduce(region, demand)
	res.Unaligned += unaligned
	res.Collapsed += collapsed

	t, unaligned, collapsed := reduce(region, temperature)
	res.Unaligned += unaligned
	res.Collapsed += collapsed

	keys := make(map[key]time.Time, len(d)+len(t))
	for k, acc := range d {
		keys[k] = acc.ts
	}
	for k, acc := range t {
		if _, ok := keys[k]; !ok {
			keys[k] = acc.ts
		}
	}

	res.Records = make([]series.Aligned, 0, len(keys))
	for k, ts := range keys {
		rec := series.Aligned{Timestamp: ts, Region: k.region}
		if acc, ok := d[k]; ok {
			rec.Demand = acc.mean()
		}
		if acc, ok := t[k]; ok {
			rec.Temperature = acc.mean()
		}
		res.Records = append(res.Records, rec)
	}

	Sort(res.Records)
	return res
}

// reduce averages observations sharing a (region, timestamp) key.
func reduce(region string, obs []series.Observation) (map[key]*accumulator, int, int) {
	out := make(map[key]*accumulator, len(obs))
	unaligned, collapsed := 0, 0

	for _, o := range obs {
		if !o.HasTimestamp() {
			unaligned++
			continue
		}
		r := o.Region
		if r == "" {
			r = region
		}
		ts := o.Timestamp.UTC()
		k := key{region: r, ts: ts.UnixNano()}

		acc, ok := out[k]
		if ok {
			collapsed++
		} else {
			acc = &accumulator{ts: ts}
			out[k] = acc
		}
		// A NaN reading keeps its key but does not enter the mean.
		if math.IsNaN(o.Value) {
			continue
		}
		acc.sum += o.Value
		acc.count++
	}

	return out, unaligned, collapsed
}

// Sort orders aligned records by region, then timestamp.
func Sort(recs []series.Aligned) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Region != recs[j].Region {
			return recs[i].Region < recs[j].Region
		}
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
}
