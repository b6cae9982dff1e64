// Command featurizer builds the gridcast feature table.
//
// One run reads the demand and temperature series, processes them one
// (region, month) batch at a time and publishes the result as the target
// table:
//  1. Partitions the demand series into batches
//  2. Joins demand and temperature on (timestamp, region), averaging stations
//  3. Imputes missing values by chained regressions
//  4. Derives calendar, holiday and daylight columns in each region's timezone
//  5. Adds forward-looking lag and shift columns
//  6. Writes every batch to a staging table and swaps it over the target
//
// A failed run leaves the previous target in place and exits with status 1.
//
// While running it can serve (see -listen):
//   - GET /status  - Run progress
//   - GET /healthz - Liveness check
//   - GET /readyz  - Fails once the run has failed
//   - GET /metrics - Prometheus metrics
//
// Usage:
//
//	featurizer \
//	  -boundary=drop \
//	  -mongo-uri=mongodb://mongo:27017 \
//	  -parallelism=4
//
// Environment variables:
//
//	BOUNDARY           - drop or mark (required)
//	SOURCE             - Source kind for both series (default: mongo)
//	DEMAND_SOURCE      - Demand source kind
//	TEMPERATURE_SOURCE - Temperature source kind
//	MONGO_URI          - MongoDB URI shared by mongo sources and sink
//	MONGO_USER         - MongoDB user
//	MONGO_PASSWORD     - MongoDB password
//	DATABASE           - MongoDB database (default: data)
//	SINK               - mongo, redis, sqlite, memory (default: mongo)
//	TARGET             - Target table (default: features)
//	REGIONS_FILE       - YAML region table
//	LAG_HORIZONS       - Lag horizons (default: 1h,24h)
//	SHIFT_HORIZON      - Dense shift horizon (default: 24h)
//	PARALLELISM        - Batches processed at once (default: 1)
//	LISTEN             - Status server address
//	PUSHGATEWAY_URL    - Pushgateway for run metrics
//	LOG_LEVEL          - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT         - Logging format: text, json (default: text)
//
// Source and sink settings are read from DEMAND_SOURCE_*, TEMPERATURE_SOURCE_*
// and SINK_* variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/gridcast/cmd/featurizer/config"
	"github.com/HatiCode/gridcast/cmd/featurizer/logger"
	"github.com/HatiCode/gridcast/cmd/featurizer/metrics"
	"github.com/HatiCode/gridcast/cmd/featurizer/router"
	"github.com/HatiCode/gridcast/pkg/httpx"
	"github.com/HatiCode/gridcast/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "featurizer: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting gridcast featurizer", "version", version, "target", cfg.Target)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	m := metrics.New(cfg.Target)

	f, err := New(ctx, cfg, log, m)
	if err != nil {
		log.Error("failed to initialize", "error", err)
		m.RecordError("setup", "init")
		pushMetrics(cfg, m, log)
		return err
	}
	defer f.Close()

	if cfg.Listen != "" {
		srv := httpx.NewServer(cfg.Listen, router.SetupRoutes(f.Progress, m.Registry, log), log)
		if cfg.TLS.Enabled {
			tlsConfig, err := tls.NewServerTLSConfig(cfg.TLS)
			if err != nil {
				log.Error("failed to configure TLS", "error", err)
				return err
			}
			srv.SetTLSConfig(tlsConfig)
		}
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			if err := srv.Stop(5 * time.Second); err != nil {
				log.Error("status server shutdown failed", "error", err)
			}
		}()
	}

	_, err = f.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("run interrupted")
	}

	pushMetrics(cfg, m, log)
	return err
}

func pushMetrics(cfg *config.Config, m *metrics.Metrics, log *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Push(ctx, cfg.PushgatewayURL, cfg.JobName); err != nil {
		log.Error("failed to push metrics", "error", err)
	}
}
