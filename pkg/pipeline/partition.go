// Package pipeline runs the feature pipeline over a demand and a temperature
// source: it partitions the demand series into (region, year, month) batches,
// processes each batch through align, impute, derive and shift, and publishes
// the result as a full replacement of the target table.
package pipeline

import (
	"context"
	"fmt"

	"github.com/HatiCode/gridcast/pkg/adapters"
	"github.com/HatiCode/gridcast/pkg/series"
)

// Partition returns the distinct batch keys of the demand series, sorted by
// (region, year, month). Sources that implement adapters.KeyEnumerator are
// asked directly; otherwise the whole series is read once.
func Partition(ctx context.Context, demand adapters.Source) ([]series.BatchKey, error) {
	if ke, ok := demand.(adapters.KeyEnumerator); ok {
		keys, err := ke.BatchKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("enumerate batch keys from %s: %w", demand.Name(), err)
		}
		return series.SortKeys(keys), nil
	}

	obs, err := demand.Read(ctx, adapters.Query{})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", demand.Name(), err)
	}
	return PartitionObservations(obs), nil
}

// PartitionObservations derives batch keys from observations. Observations
// without a timestamp or a region belong to no batch.
func PartitionObservations(obs []series.Observation) []series.BatchKey {
	keys := make([]series.BatchKey, 0)
	seen := make(map[series.BatchKey]struct{})
	for _, o := range obs {
		if !o.HasTimestamp() || o.Region == "" {
			continue
		}
		k := series.KeyOf(o.Region, o.Timestamp)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return series.SortKeys(keys)
}
