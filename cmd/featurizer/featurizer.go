package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/HatiCode/gridcast/cmd/featurizer/config"
	"github.com/HatiCode/gridcast/pkg/adapters"
	"github.com/HatiCode/gridcast/pkg/calendar"
	"github.com/HatiCode/gridcast/pkg/httpx"
	"github.com/HatiCode/gridcast/pkg/pipeline"
	"github.com/HatiCode/gridcast/pkg/storage"
)

// Featurizer wires the configured sources, sink and region table into a
// pipeline driver and owns the connections it opened.
type Featurizer struct {
	driver  *pipeline.Driver
	closers []io.Closer
	logger  *slog.Logger
}

// New opens the sources and the sink described by cfg. On error, anything
// already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics pipeline.Metrics) (*Featurizer, error) {
	f := &Featurizer{logger: logger}
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	oracle, err := loadOracle(cfg.RegionsFile)
	if err != nil {
		return nil, err
	}

	lags, err := cfg.Generator()
	if err != nil {
		return nil, err
	}

	client, err := httpx.NewClient(cfg.SourceTLS, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("source http client: %w", err)
	}

	demand, err := f.openSource(ctx, cfg.DemandSource, cfg.DemandConfig, client)
	if err != nil {
		return nil, fmt.Errorf("demand source: %w", err)
	}
	temperature, err := f.openSource(ctx, cfg.TemperatureSource, cfg.TemperatureConfig, client)
	if err != nil {
		return nil, fmt.Errorf("temperature source: %w", err)
	}

	sink, err := storage.New(ctx, cfg.Sink, cfg.SinkConfig)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	f.track(sink)

	logger.Info("pipeline configured",
		"demand_source", demand.Name(),
		"temperature_source", temperature.Name(),
		"sink", sink.Name(),
		"target", cfg.Target,
		"regions", len(oracle.Regions()),
		"boundary", lags.Boundary.String(),
		"parallelism", cfg.Parallelism,
	)

	f.driver = pipeline.New(demand, temperature, sink, oracle, pipeline.Options{
		Target:      cfg.Target,
		Parallelism: cfg.Parallelism,
		Lookahead:   cfg.Lookahead,
		Cosine:      cfg.CyclicCosine,
		Impute:      cfg.ImputeOptions(),
		Lags:        lags,
	}, logger, metrics)

	ok = true
	return f, nil
}

func loadOracle(path string) (*calendar.Oracle, error) {
	if path == "" {
		return calendar.Default(), nil
	}
	regions, err := calendar.LoadRegions(path)
	if err != nil {
		return nil, err
	}
	return calendar.NewOracle(regions)
}

// openSource creates a source and hands HTTP-based ones the shared client.
func (f *Featurizer) openSource(ctx context.Context, kind string, cfg map[string]string, client *http.Client) (adapters.Source, error) {
	src, err := adapters.New(ctx, kind, cfg)
	if err != nil {
		return nil, err
	}
	f.track(src)

	switch s := src.(type) {
	case *adapters.HTTPSource:
		s.HTTPClient = client
	case *adapters.PrometheusSource:
		s.HTTPClient = client
	}
	return src, nil
}

func (f *Featurizer) track(v any) {
	if c, ok := v.(io.Closer); ok {
		f.closers = append(f.closers, c)
	}
}

// Run executes one pipeline run.
func (f *Featurizer) Run(ctx context.Context) (pipeline.Report, error) {
	return f.driver.Run(ctx)
}

// Progress reports the run's progress.
func (f *Featurizer) Progress() pipeline.Progress {
	if f.driver == nil {
		return pipeline.Progress{State: pipeline.StateIdle}
	}
	return f.driver.Progress()
}

// Close releases every opened source and sink.
func (f *Featurizer) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			f.logger.Error("failed to close connection", "error", err)
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}
