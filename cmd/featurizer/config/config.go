// Package config provides configuration parsing for the featurizer.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for one run:
//   - Sources for the demand and temperature series, and their settings
//   - The output sink and target table
//   - Lag/shift generation (horizons, columns, boundary policy)
//   - Imputation (iterations, tolerance, seed, column order)
//   - Execution (parallelism, lookahead, timeout)
//   - Observability (status listener, pushgateway, logging)
//
// Source and sink settings are passed through prefixed environment variables,
// converted to camelCase keys:
//
//	DEMAND_SOURCE_COLLECTION=total_demand  -> demand config "collection"
//	TEMPERATURE_SOURCE_VALUE_PATH=data.#.t -> temperature config "valuePath"
//	SINK_DATABASE=data                     -> sink config "database"
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/gridcast/pkg/features"
	"github.com/HatiCode/gridcast/pkg/impute"
	"github.com/HatiCode/gridcast/pkg/tls"
)

// Config holds all featurizer configuration.
type Config struct {
	Listen         string
	LogFormat      string
	LogLevel       string
	PushgatewayURL string
	JobName        string
	TLS            tls.Config

	DemandSource      string
	TemperatureSource string
	DemandConfig      map[string]string
	TemperatureConfig map[string]string
	SourceTLS         tls.Config
	MongoURI          string
	MongoUser         string
	MongoPassword     string
	Database          string

	Sink       string
	SinkConfig map[string]string
	Target     string

	RegionsFile  string
	Cadence      time.Duration
	LagHorizons  string
	LagColumns   string
	ShiftColumn  string
	ShiftHorizon time.Duration
	Boundary     string
	CyclicCosine bool

	ImputeMaxIter int
	ImputeTol     float64
	ImputeSeed    int
	ImputeOrder   string

	Parallelism int
	Lookahead   bool
	Timeout     time.Duration
}

// Parse parses args and environment variables into a Config and validates it.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("featurizer", flag.ContinueOnError)

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ""), "Status HTTP listen address (empty disables the server)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", getEnv("PUSHGATEWAY_URL", ""), "Pushgateway URL for run metrics (empty disables push)")
	fs.StringVar(&cfg.JobName, "job", getEnv("JOB_NAME", "gridcast_featurizer"), "Pushgateway job name")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for the status server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	source := getEnv("SOURCE", "mongo")
	fs.StringVar(&cfg.DemandSource, "demand-source", getEnv("DEMAND_SOURCE", source), "Demand source: mongo, sqlite, http, prometheus, or victoriametrics")
	fs.StringVar(&cfg.TemperatureSource, "temperature-source", getEnv("TEMPERATURE_SOURCE", source), "Temperature source: mongo, sqlite, http, prometheus, or victoriametrics")
	fs.BoolVar(&cfg.SourceTLS.Enabled, "source-tls-enabled", getEnvBool("SOURCE_TLS_ENABLED", false), "Use TLS client certificates for HTTP sources")
	fs.StringVar(&cfg.SourceTLS.CertFile, "source-tls-cert-file", getEnv("SOURCE_TLS_CERT_FILE", ""), "Client certificate for HTTP sources")
	fs.StringVar(&cfg.SourceTLS.KeyFile, "source-tls-key-file", getEnv("SOURCE_TLS_KEY_FILE", ""), "Client private key for HTTP sources")
	fs.StringVar(&cfg.SourceTLS.CAFile, "source-tls-ca-file", getEnv("SOURCE_TLS_CA_FILE", ""), "CA certificate for HTTP sources")
	fs.StringVar(&cfg.MongoURI, "mongo-uri", getEnv("MONGO_URI", "mongodb://localhost:27017"), "MongoDB URI shared by mongo sources and sink")
	fs.StringVar(&cfg.MongoUser, "mongo-user", getEnv("MONGO_USER", ""), "MongoDB user (overrides credentials in the URI)")
	fs.StringVar(&cfg.MongoPassword, "mongo-password", getEnv("MONGO_PASSWORD", ""), "MongoDB password")
	fs.StringVar(&cfg.Database, "database", getEnv("DATABASE", "data"), "MongoDB database shared by mongo sources and sink")

	fs.StringVar(&cfg.Sink, "sink", getEnv("SINK", "mongo"), "Output sink: mongo, redis, sqlite, or memory")
	fs.StringVar(&cfg.Target, "target", getEnv("TARGET", "features"), "Target table name")

	fs.StringVar(&cfg.RegionsFile, "regions-file", getEnv("REGIONS_FILE", ""), "YAML region table (empty uses the built-in Australian table)")
	fs.DurationVar(&cfg.Cadence, "cadence", getEnvDuration("CADENCE", 30*time.Minute), "Observation cadence")
	fs.StringVar(&cfg.LagHorizons, "lag-horizons", getEnv("LAG_HORIZONS", "1h,24h"), "Comma-separated lag horizons")
	fs.StringVar(&cfg.LagColumns, "lag-columns", getEnv("LAG_COLUMNS", strings.Join(features.DefaultLagColumns(), ",")), "Comma-separated lagged columns")
	fs.StringVar(&cfg.ShiftColumn, "shift-column", getEnv("SHIFT_COLUMN", features.ColDemand), "Column of the dense shift series")
	fs.DurationVar(&cfg.ShiftHorizon, "shift-horizon", getEnvDuration("SHIFT_HORIZON", 24*time.Hour), "Dense shift horizon (0 disables)")
	fs.StringVar(&cfg.Boundary, "boundary", getEnv("BOUNDARY", ""), "Boundary policy for unavailable future values: drop or mark (required)")
	fs.BoolVar(&cfg.CyclicCosine, "cyclic-cosine", getEnvBool("CYCLIC_COSINE", false), "Add cosine companions of encoded calendar fields")

	fs.IntVar(&cfg.ImputeMaxIter, "impute-max-iter", getEnvInt("IMPUTE_MAX_ITER", 10), "Maximum imputation rounds")
	fs.Float64Var(&cfg.ImputeTol, "impute-tol", getEnvFloat("IMPUTE_TOL", 1e-3), "Imputation convergence tolerance")
	fs.IntVar(&cfg.ImputeSeed, "impute-seed", getEnvInt("IMPUTE_SEED", 0), "Imputation seed")
	fs.StringVar(&cfg.ImputeOrder, "impute-order", getEnv("IMPUTE_ORDER", string(impute.OrderAscending)), "Imputation order: ascending or random")

	fs.IntVar(&cfg.Parallelism, "parallelism", getEnvInt("PARALLELISM", 1), "Batches processed at once")
	fs.BoolVar(&cfg.Lookahead, "lookahead", getEnvBool("LOOKAHEAD", true), "Read past each month end so boundary rows get future values")
	fs.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("TIMEOUT", 0), "Overall run timeout (0 means none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.MongoUser != "" {
		uri, err := withCredentials(cfg.MongoURI, cfg.MongoUser, cfg.MongoPassword)
		if err != nil {
			return nil, err
		}
		cfg.MongoURI = uri
	}

	environ := os.Environ()
	cfg.DemandConfig = sourceDefaults(cfg.DemandSource, "demand", cfg, parsePrefixedConfig(environ, "DEMAND_SOURCE_"))
	cfg.TemperatureConfig = sourceDefaults(cfg.TemperatureSource, "temperature", cfg, parsePrefixedConfig(environ, "TEMPERATURE_SOURCE_"))
	cfg.SinkConfig = parsePrefixedConfig(environ, "SINK_")
	if cfg.Sink == "mongo" || cfg.Sink == "mongodb" {
		setDefault(cfg.SinkConfig, "uri", cfg.MongoURI)
		setDefault(cfg.SinkConfig, "database", cfg.Database)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withCredentials sets the user info of a MongoDB URI.
func withCredentials(uri, user, password string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid mongo uri: %w", err)
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}

// sourceDefaults fills mongo settings the way the original collections are
// laid out: database "data", collections total_demand and temperature.
func sourceDefaults(kind, series string, cfg *Config, m map[string]string) map[string]string {
	if kind != "mongo" && kind != "mongodb" {
		return m
	}
	setDefault(m, "uri", cfg.MongoURI)
	setDefault(m, "database", cfg.Database)
	setDefault(m, "preset", series)
	if series == "demand" {
		setDefault(m, "collection", "total_demand")
	} else {
		setDefault(m, "collection", "temperature")
	}
	return m
}

func setDefault(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

var (
	sourceKinds = map[string]bool{"mongo": true, "mongodb": true, "sqlite": true, "http": true, "prometheus": true, "victoriametrics": true}
	sinkKinds   = map[string]bool{"mongo": true, "mongodb": true, "redis": true, "sqlite": true, "memory": true}
)

// Validate checks the configuration. Generator settings are checked by
// building the generator.
func (c *Config) Validate() error {
	if !sourceKinds[c.DemandSource] {
		return fmt.Errorf("invalid demand source %q", c.DemandSource)
	}
	if !sourceKinds[c.TemperatureSource] {
		return fmt.Errorf("invalid temperature source %q", c.TemperatureSource)
	}
	if !sinkKinds[c.Sink] {
		return fmt.Errorf("invalid sink %q (must be mongo, redis, sqlite, or memory)", c.Sink)
	}
	if c.Target == "" {
		return errors.New("target cannot be empty")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	}
	if c.ImputeMaxIter < 1 {
		return fmt.Errorf("impute-max-iter must be >= 1, got %d", c.ImputeMaxIter)
	}
	if c.ImputeTol <= 0 {
		return fmt.Errorf("impute-tol must be > 0, got %v", c.ImputeTol)
	}
	if c.ImputeSeed < 0 {
		return fmt.Errorf("impute-seed must be >= 0, got %d", c.ImputeSeed)
	}
	if c.ImputeOrder != string(impute.OrderAscending) && c.ImputeOrder != string(impute.OrderRandom) {
		return fmt.Errorf("invalid impute-order %q (must be ascending or random)", c.ImputeOrder)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("status tls: %w", err)
	}
	if err := c.SourceTLS.Validate(); err != nil {
		return fmt.Errorf("source tls: %w", err)
	}
	if _, err := c.Generator(); err != nil {
		return err
	}
	return nil
}

// Generator builds the lag/shift generator.
func (c *Config) Generator() (features.Generator, error) {
	boundary, err := features.ParseBoundary(c.Boundary)
	if err != nil {
		return features.Generator{}, err
	}

	columns := splitList(c.LagColumns)
	var lags []features.Lag
	for _, h := range splitList(c.LagHorizons) {
		d, err := time.ParseDuration(h)
		if err != nil {
			return features.Generator{}, fmt.Errorf("invalid lag horizon %q: %w", h, err)
		}
		lags = append(lags, features.Lag{Horizon: d, Columns: columns})
	}

	g := features.Generator{
		Lags:     lags,
		Shift:    features.Shift{Column: c.ShiftColumn, Horizon: c.ShiftHorizon},
		Cadence:  c.Cadence,
		Boundary: boundary,
	}
	if err := g.Validate(); err != nil {
		return features.Generator{}, err
	}
	return g, nil
}

// ImputeOptions returns the imputer settings.
func (c *Config) ImputeOptions() impute.Options {
	return impute.Options{
		MaxIter: c.ImputeMaxIter,
		Tol:     c.ImputeTol,
		Seed:    uint64(c.ImputeSeed),
		Order:   impute.Order(c.ImputeOrder),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePrefixedConfig turns PREFIX_* environment variables into a
// configuration map. Names are converted to camelCase for the map keys
// (DEMAND_SOURCE_VALUE_PATH -> valuePath).
func parsePrefixedConfig(environ []string, prefix string) map[string]string {
	config := make(map[string]string)

	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		config[toLowerCamelCase(key[len(prefix):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
