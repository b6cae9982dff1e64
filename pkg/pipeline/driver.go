package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/gridcast/pkg/adapters"
	"github.com/HatiCode/gridcast/pkg/align"
	"github.com/HatiCode/gridcast/pkg/calendar"
	"github.com/HatiCode/gridcast/pkg/features"
	"github.com/HatiCode/gridcast/pkg/impute"
	"github.com/HatiCode/gridcast/pkg/series"
	"github.com/HatiCode/gridcast/pkg/storage"
)

// StagingSuffix is appended to the target name to form the staging table.
const StagingSuffix = "__staging"

// Metrics receives run instrumentation. A nil Metrics passed to New disables
// it.
type Metrics interface {
	ObserveStage(stage string, d time.Duration)
	RecordBatch(status string)
	AddRows(written, dropped int)
	RecordImputation(column string, filled int, skipped bool)
	RecordError(component, reason string)
	SetPlanned(batches int)
	SetRunResult(success bool, at time.Time)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, time.Duration) {}
func (nopMetrics) RecordBatch(string) {}
func (nopMetrics) AddRows(int, int) {}
func (nopMetrics) RecordImputation(string, int, bool) {}
func (nopMetrics) RecordError(string, string) {}
func (nopMetrics) SetPlanned(int) {}
func (nopMetrics) SetRunResult(bool, time.Time) {}

// Options configures a Driver.
type Options struct {
	// Target is the output table. Defaults to "features".
	Target string
	// Parallelism is the number of batches processed at once. Values below 1
	// mean sequential.
	Parallelism int
	// Lookahead makes each batch also read the next max-horizon of its region,
	// so rows at the end of a month get real future values. Lookahead rows are
	// never emitted and never imputed: a lag pointing at a missing lookahead
	// reading stays missing and falls under the boundary policy.
	Lookahead bool
	// Cosine adds the cosine companions of the encoded calendar fields.
	Cosine bool
	Impute impute.Options
	Lags   features.Generator
}

// Report summarizes a run.
type Report struct {
	Target      string
	Batches     int
	RowsWritten int
	RowsDropped int
	// Unaligned counts observations without a timestamp.
	Unaligned int
	// Skipped lists "<batch>:<column>" pairs left unimputed because the
	// column was entirely missing in the batch.
	Skipped  []string
	Duration time.Duration
}

// Driver owns a run: it enumerates batches, processes them and publishes the
// target table.
type Driver struct {
	demand      adapters.Source
	temperature adapters.Source
	sink        storage.Sink
	oracle      *calendar.Oracle
	builder     *features.Builder
	imputer     *impute.Imputer
	opts        Options
	logger      *slog.Logger
	metrics     Metrics
	progress    tracker
}

// New creates a Driver.
func New(
	demand, temperature adapters.Source,
	sink storage.Sink,
	oracle *calendar.Oracle,
	opts Options,
	logger *slog.Logger,
	metrics Metrics,
) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if opts.Target == "" {
		opts.Target = "features"
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	return &Driver{
		demand:      demand,
		temperature: temperature,
		sink:        sink,
		oracle:      oracle,
		builder:     features.NewBuilder(oracle, opts.Cosine),
		imputer:     impute.New(opts.Impute),
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
	}
}

// Progress returns the state of the current or last run.
func (d *Driver) Progress() Progress {
	return d.progress.snapshot()
}

// Run executes a full run. On success the target holds exactly the rows of
// this run. On failure the target is left as it was before the run.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	d.progress.start(d.opts.Target, start)

	rep, err := d.run(ctx)
	rep.Duration = time.Since(start)

	d.progress.finish(err, time.Now())
	d.metrics.SetRunResult(err == nil, time.Now())

	if err != nil {
		d.logger.Error("run failed",
			"target", d.opts.Target,
			"batches", rep.Batches,
			"duration_ms", rep.Duration.Milliseconds(),
			"error", err,
		)
		return rep, err
	}

	d.logger.Info("run complete",
		"target", rep.Target,
		"batches", rep.Batches,
		"rows_written", rep.RowsWritten,
		"rows_dropped", rep.RowsDropped,
		"unaligned", rep.Unaligned,
		"skipped_columns", len(rep.Skipped),
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

func (d *Driver) run(ctx context.Context) (Report, error) {
	rep := Report{Target: d.opts.Target}

	if err := d.opts.Lags.Validate(); err != nil {
		d.metrics.RecordError("config", "invalid_lags")
		return rep, &ConfigError{Err: err}
	}

	keys, err := Partition(ctx, d.demand)
	if err != nil {
		d.metrics.RecordError("source", "enumerate_failed")
		return rep, fmt.Errorf("enumerate batches: %w", err)
	}

	if err := d.oracle.Validate(regionsOf(keys)...); err != nil {
		d.metrics.RecordError("config", "unknown_region")
		return rep, &ConfigError{Err: err}
	}

	rep.Batches = len(keys)
	d.metrics.SetPlanned(len(keys))
	d.progress.planned(len(keys))

	// Sinks without an atomic swap get the rows buffered and written to the
	// target only once every batch succeeded.
	swapper, atomic := d.sink.(storage.Swapper)
	staging := d.opts.Target + StagingSuffix
	if atomic {
		if err := d.prepare(ctx, staging); err != nil {
			d.metrics.RecordError("sink", "prepare_failed")
			return rep, err
		}
	}

	if len(keys) == 0 {
		d.logger.Info("no batches found", "source", d.demand.Name())
	}

	var (
		mu       sync.Mutex
		buffered []features.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallelism)
	for i, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.logger.Info("processing batch", "index", i+1, "total", len(keys), "batch", key.String())

			out, err := d.processBatch(gctx, key)
			if err != nil {
				d.metrics.RecordBatch("failed")
				d.metrics.RecordError(componentOf(err), "batch_failed")
				return err
			}
			if atomic {
				start := time.Now()
				if err := d.sink.InsertBatch(gctx, staging, out.records); err != nil {
					d.metrics.RecordBatch("failed")
					d.metrics.RecordError("sink", "insert_failed")
					return &BatchError{Key: key, Stage: StageWrite, Err: err}
				}
				d.metrics.ObserveStage(string(StageWrite), time.Since(start))
			}

			mu.Lock()
			if !atomic {
				buffered = append(buffered, out.records...)
			}
			rep.RowsWritten += len(out.records)
			rep.RowsDropped += out.dropped
			rep.Unaligned += out.unaligned
			rep.Skipped = append(rep.Skipped, out.skipped...)
			mu.Unlock()

			d.metrics.RecordBatch("success")
			d.metrics.AddRows(len(out.records), out.dropped)
			d.progress.batchDone(len(out.records))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if atomic {
			d.discard(staging)
		}
		return rep, err
	}
	sort.Strings(rep.Skipped)

	start := time.Now()
	if atomic {
		if err := swapper.Swap(ctx, staging, d.opts.Target); err != nil {
			d.discard(staging)
			d.metrics.RecordError("sink", "swap_failed")
			return rep, fmt.Errorf("publish %s: %w", d.opts.Target, err)
		}
	} else {
		d.logger.Warn("sink cannot swap tables atomically, replacing target in place",
			"sink", d.sink.Name(),
			"target", d.opts.Target,
		)
		if err := d.replace(ctx, buffered); err != nil {
			d.metrics.RecordError("sink", "replace_failed")
			return rep, fmt.Errorf("publish %s: %w", d.opts.Target, err)
		}
	}
	d.metrics.ObserveStage(string(StagePublish), time.Since(start))

	return rep, nil
}

// prepare recreates the staging table empty.
func (d *Driver) prepare(ctx context.Context, staging string) error {
	if err := d.sink.DropIfExists(ctx, staging); err != nil {
		return fmt.Errorf("drop %s: %w", staging, err)
	}
	if err := d.sink.Create(ctx, staging); err != nil {
		return fmt.Errorf("create %s: %w", staging, err)
	}
	return nil
}

// discard drops the staging table after a failed run. The run context may
// already be canceled.
func (d *Driver) discard(staging string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.sink.DropIfExists(ctx, staging); err != nil {
		d.logger.Warn("failed to drop staging table", "table", staging, "error", err)
	}
}

func (d *Driver) replace(ctx context.Context, recs []features.Record) error {
	if err := d.sink.DropIfExists(ctx, d.opts.Target); err != nil {
		return err
	}
	if err := d.sink.Create(ctx, d.opts.Target); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	return d.sink.InsertBatch(ctx, d.opts.Target, recs)
}

type batchOutput struct {
	records   []features.Record
	dropped   int
	unaligned int
	skipped   []string
}

// processBatch runs read, align, impute, derive and shift for one key.
func (d *Driver) processBatch(ctx context.Context, key series.BatchKey) (batchOutput, error) {
	var out batchOutput
	fail := func(stage Stage, err error) (batchOutput, error) {
		return out, &BatchError{Key: key, Stage: stage, Err: err}
	}

	emit := key.Range()
	fetch := emit
	if d.opts.Lookahead {
		fetch = emit.Extend(d.opts.Lags.MaxHorizon())
	}
	q := adapters.Query{Region: key.Region, Range: fetch}

	start := time.Now()
	var demand, temperature []series.Observation
	rg, rctx := errgroup.WithContext(ctx)
	rg.Go(func() error {
		obs, err := d.demand.Read(rctx, q)
		if err != nil {
			return fmt.Errorf("demand from %s: %w", d.demand.Name(), err)
		}
		demand = obs
		return nil
	})
	rg.Go(func() error {
		obs, err := d.temperature.Read(rctx, q)
		if err != nil {
			return fmt.Errorf("temperature from %s: %w", d.temperature.Name(), err)
		}
		temperature = obs
		return nil
	})
	if err := rg.Wait(); err != nil {
		return fail(StageRead, err)
	}
	d.metrics.ObserveStage(string(StageRead), time.Since(start))

	start = time.Now()
	aligned := align.Join(key.Region, demand, temperature)
	out.unaligned = aligned.Unaligned
	d.metrics.ObserveStage(string(StageAlign), time.Since(start))

	start = time.Now()
	own, ahead := splitLookahead(aligned.Records, emit)
	imputed, irep := d.imputer.Impute(own)
	imputed = append(imputed, ahead...)
	for col, n := range irep.Filled {
		d.metrics.RecordImputation(col, n, false)
	}
	for _, col := range irep.Skipped {
		d.metrics.RecordImputation(col, 0, true)
		out.skipped = append(out.skipped, key.String()+":"+col)
	}
	if len(irep.Skipped) > 0 {
		d.logger.Debug("imputation skipped fully missing columns", "batch", key.String(), "columns", irep.Skipped)
	}
	d.metrics.ObserveStage(string(StageImpute), time.Since(start))

	start = time.Now()
	recs, err := d.builder.Build(imputed)
	if err != nil {
		return fail(StageDerive, err)
	}
	d.metrics.ObserveStage(string(StageDerive), time.Since(start))

	start = time.Now()
	gen := d.opts.Lags
	res, err := gen.Generate(recs, emit)
	if err != nil {
		return fail(StageShift, err)
	}
	d.metrics.ObserveStage(string(StageShift), time.Since(start))

	out.records = res.Records
	out.dropped = res.Dropped

	d.logger.Debug("batch processed",
		"batch", key.String(),
		"demand", len(demand),
		"temperature", len(temperature),
		"aligned", len(aligned.Records),
		"rows", len(res.Records),
		"dropped", res.Dropped,
		"marked", res.Marked,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// splitLookahead separates the batch's own records from those read ahead of
// it. Lookahead rows are owned by the next batch and keep their raw values.
func splitLookahead(recs []series.Aligned, emit series.TimeRange) (own, ahead []series.Aligned) {
	own = make([]series.Aligned, 0, len(recs))
	for _, r := range recs {
		if emit.Contains(r.Timestamp) {
			own = append(own, r)
		} else {
			ahead = append(ahead, r)
		}
	}
	return own, ahead
}

func regionsOf(keys []series.BatchKey) []string {
	seen := make(map[string]struct{})
	var regions []string
	for _, k := range keys {
		if _, ok := seen[k.Region]; !ok {
			seen[k.Region] = struct{}{}
			regions = append(regions, k.Region)
		}
	}
	return regions
}

func componentOf(err error) string {
	var be *BatchError
	if errors.As(err, &be) {
		switch be.Stage {
		case StageRead:
			return "source"
		case StageWrite, StagePublish:
			return "sink"
		}
	}
	return "pipeline"
}
