// Command seeder loads synthetic demand and temperature series for trying
// out the featurizer.
//
// Demand follows a daily load pattern plus a heating/cooling term driven by
// the generated temperature. Temperature comes from several stations per
// region, with a fraction of readings left null so imputation has work to do.
//
// Usage:
//
//	seeder -sink=mongo -mongo-uri=mongodb://localhost:27017 -regions=NSW,VIC -days=60
//	seeder -sink=sqlite -sqlite-path=sources.db -pattern=business-hours
//
// Patterns: flat, business-hours, sine-wave, double-peak.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/HatiCode/gridcast/pkg/calendar"
	"github.com/HatiCode/gridcast/pkg/storage"
)

func main() {
	var (
		sink        = flag.String("sink", getEnv("SINK", "mongo"), "Where to write: mongo or sqlite")
		mongoURI    = flag.String("mongo-uri", getEnv("MONGO_URI", "mongodb://localhost:27017"), "MongoDB URI")
		database    = flag.String("database", getEnv("DATABASE", "data"), "MongoDB database")
		sqlitePath  = flag.String("sqlite-path", getEnv("SQLITE_PATH", "sources.db"), "SQLite file")
		regions     = flag.String("regions", getEnv("REGIONS", "NSW,VIC,QLD,SA,TAS"), "Comma-separated region codes")
		start       = flag.String("start", getEnv("START", "2024-01-01"), "First day (YYYY-MM-DD, UTC)")
		days        = flag.Int("days", 60, "Number of days")
		cadence     = flag.Duration("cadence", 30*time.Minute, "Reading cadence")
		patternName = flag.String("pattern", getEnv("PATTERN", "double-peak"), "Demand pattern")
		stations    = flag.Int("stations", 2, "Temperature stations per region")
		missing     = flag.Float64("missing", 0.03, "Fraction of null temperature readings")
		seed        = flag.Uint64("seed", 1, "Random seed")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	pattern, ok := patterns[*patternName]
	if !ok {
		logger.Warn("unknown pattern, using double-peak", "pattern", *patternName)
		pattern = patterns["double-peak"]
	}
	from, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		logger.Error("invalid start date", "start", *start, "error", err)
		os.Exit(2)
	}

	demand, temperature, err := Generate(calendar.Default(), Options{
		Regions:  strings.Split(*regions, ","),
		Start:    from,
		Days:     *days,
		Cadence:  *cadence,
		Pattern:  pattern,
		Stations: *stations,
		Missing:  *missing,
		Seed:     *seed,
	})
	if err != nil {
		logger.Error("failed to generate readings", "error", err)
		os.Exit(2)
	}

	logger.Info("generated readings",
		"pattern", pattern.Name,
		"demand", len(demand),
		"temperature", len(temperature),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := write(ctx, *sink, *mongoURI, *database, *sqlitePath, demand, temperature); err != nil {
		logger.Error("failed to write readings", "sink", *sink, "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete", "sink", *sink)
}

func write(ctx context.Context, sink, mongoURI, database, sqlitePath string, demand, temperature []Reading) error {
	switch sink {
	case "mongo":
		client, err := storage.ConnectMongo(ctx, mongoURI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		return writeMongo(ctx, client.Database(database), "total_demand", "temperature", demand, temperature)
	case "sqlite":
		return writeSQLite(ctx, sqlitePath, demand, temperature)
	default:
		return fmt.Errorf("unknown sink %q (must be mongo or sqlite)", sink)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
