// Package adapters provides the source connectors that read the demand and
// temperature series. Every adapter returns plain observations keyed by
// timestamp and region; joining, imputation and feature building happen in
// the layers above.
//
// Available sources:
//   - MemorySource: a fixed slice of observations, mostly for tests
//   - MongoSource: a MongoDB collection, one document per reading
//   - SQLSource: an SQLite table, one row per reading
//   - HTTPSource: any REST API returning JSON, extracted with gjson paths
//   - PrometheusSource: the Prometheus HTTP API, one observation per series point
//   - VictoriaMetrics: the same API served by VictoriaMetrics
//
// Sources that can group by (region, year, month) on the server side also
// implement KeyEnumerator so the partitioner does not have to read the whole
// series to find the batches.
package adapters

import (
	"context"
	"sort"

	"github.com/HatiCode/gridcast/pkg/series"
)

// Query restricts a read. An empty Region or a zero Range means no restriction.
type Query struct {
	Region string
	Range  series.TimeRange
}

// Source reads observations of one series.
//
// Read is synchronous and should respect context cancellation and deadlines.
// Observations whose source record carries no timestamp are returned with a
// zero Timestamp rather than failing the read.
type Source interface {
	Read(ctx context.Context, q Query) ([]series.Observation, error)

	// Name returns a short identifier, e.g. "mongo" or "http".
	Name() string
}

// KeyEnumerator is implemented by sources that can list their batch keys
// without returning every observation.
type KeyEnumerator interface {
	BatchKeys(ctx context.Context) ([]series.BatchKey, error)
}

// Matches reports whether o satisfies q. Observations without a timestamp
// only match an unbounded range; observations without a region match any
// region, since the batch region fills them in later.
func (q Query) Matches(o series.Observation) bool {
	if q.Region != "" && o.Region != "" && o.Region != q.Region {
		return false
	}
	if q.Range.IsZero() {
		return true
	}
	return o.HasTimestamp() && q.Range.Contains(o.Timestamp)
}

func filter(obs []series.Observation, q Query) []series.Observation {
	out := make([]series.Observation, 0, len(obs))
	for _, o := range obs {
		if q.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

func sortByTime(obs []series.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Timestamp.Before(obs[j].Timestamp)
	})
}

// MemorySource serves a fixed set of observations.
type MemorySource struct {
	name string
	obs  []series.Observation
}

// NewMemorySource copies obs into a new source.
func NewMemorySource(name string, obs []series.Observation) *MemorySource {
	if name == "" {
		name = "memory"
	}
	return &MemorySource{name: name, obs: append([]series.Observation(nil), obs...)}
}

func (m *MemorySource) Name() string { return m.name }

func (m *MemorySource) Read(ctx context.Context, q Query) ([]series.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return filter(m.obs, q), nil
}
