package pipeline

import (
	"fmt"

	"github.com/HatiCode/gridcast/pkg/series"
)

// Stage names a step of batch processing.
type Stage string

const (
	StageRead    Stage = "read"
	StageAlign   Stage = "align"
	StageImpute  Stage = "impute"
	StageDerive  Stage = "derive"
	StageShift   Stage = "shift"
	StageWrite   Stage = "write"
	StagePublish Stage = "publish"
)

// BatchError reports the batch and stage a run failed in. Re-running that
// batch alone is enough to reproduce it.
type BatchError struct {
	Key   series.BatchKey
	Stage Stage
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s: %s: %v", e.Key, e.Stage, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ConfigError is returned before any batch runs, for problems such as a region
// missing from the region table or an invalid lag configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }
