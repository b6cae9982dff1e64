package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HatiCode/gridcast/pkg/series"
)

// New creates a source based on kind and a generic configuration map.
// This is the central extension point for adding new source types.
//
// Supported kinds:
//   - "mongo": MongoDB collection
//   - "sqlite": SQLite table
//   - "http": Generic HTTP source
//   - "prometheus": Prometheus query_range
//   - "victoriametrics": VictoriaMetrics query_range
//
// Returns error if kind is unknown or required fields are missing. Sources
// holding connections implement io.Closer.
func New(ctx context.Context, kind string, config map[string]string) (Source, error) {
	switch kind {
	case "mongo", "mongodb":
		return newMongo(ctx, config)
	case "sqlite":
		return newSQL(config)
	case "http":
		return newHTTP(config)
	case "prometheus":
		return newPrometheus(config, "http://localhost:9090", "prometheus")
	case "victoriametrics":
		return newPrometheus(config, "http://localhost:8428", "victoria-metrics")
	default:
		return nil, fmt.Errorf("unknown source kind: %s (must be mongo, sqlite, http, prometheus, or victoriametrics)", kind)
	}
}

// ClosableMongoSource is a MongoSource that owns its client.
type ClosableMongoSource struct {
	*MongoSource
	client *mongo.Client
}

// Close disconnects the client.
func (c *ClosableMongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// newMongo creates a MongoDB source. "preset" selects the default field names
// ("demand" or "temperature"); individual *Field keys override them.
func newMongo(ctx context.Context, config map[string]string) (Source, error) {
	collection := config["collection"]
	if collection == "" {
		return nil, fmt.Errorf("mongo source requires 'collection' config")
	}
	uri := orDefault(config["uri"], "mongodb://localhost:27017")
	database := orDefault(config["database"], "data")

	var fields MongoFields
	switch config["preset"] {
	case "", "demand":
		fields = DemandFields()
	case "temperature":
		fields = TemperatureFields()
	default:
		return nil, fmt.Errorf("unknown mongo preset %q (must be demand or temperature)", config["preset"])
	}
	fields.Timestamp = orDefault(config["timestampField"], fields.Timestamp)
	fields.Region = orDefault(config["regionField"], fields.Region)
	fields.Value = orDefault(config["valueField"], fields.Value)
	fields.Station = orDefault(config["stationField"], fields.Station)
	fields.Layout = config["timestampLayout"]

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetConnectTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &ClosableMongoSource{
		MongoSource: NewMongoSource(client.Database(database), collection, fields),
		client:      client,
	}, nil
}

// newSQL creates an SQLite source.
func newSQL(config map[string]string) (Source, error) {
	path := config["path"]
	table := config["table"]
	if path == "" || table == "" {
		return nil, fmt.Errorf("sqlite source requires 'path' and 'table' config")
	}
	return OpenSQLSource(path, table, SQLColumns{
		Timestamp: orDefault(config["timestampColumn"], "ts"),
		Region:    orDefault(config["regionColumn"], "region"),
		Value:     orDefault(config["valueColumn"], "value"),
		Station:   config["stationColumn"],
	})
}

// newPrometheus creates a Prometheus-compatible source. "start" and "end"
// (RFC3339) bound unbounded reads.
func newPrometheus(config map[string]string, defaultURL, name string) (Source, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s source requires 'query' config", name)
	}

	var step time.Duration
	if v := config["step"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid 'step': %w", err)
		}
		step = d
	}

	var rng series.TimeRange
	for key, dst := range map[string]*time.Time{"start": &rng.Start, "end": &rng.End} {
		if v := config[key]; v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("invalid '%s': %w", key, err)
			}
			*dst = t.UTC()
		}
	}

	return &PrometheusSource{
		ServerURL:    orDefault(config["url"], defaultURL),
		Query:        query,
		Step:         step,
		Range:        rng,
		RegionLabel:  config["regionLabel"],
		StationLabel: config["stationLabel"],
		name:         name,
	}, nil
}

// newHTTP creates a generic HTTP source from generic config.
func newHTTP(config map[string]string) (Source, error) {
	src := &HTTPSource{
		URL:             config["url"],
		Method:          orDefault(config["method"], "GET"),
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		RegionPath:      config["regionPath"],
		StationPath:     config["stationPath"],
		TimestampFormat: orDefault(config["timestampFormat"], "rfc3339"),
		TimestampLayout: config["timestampLayout"],
		SourceName:      config["name"],
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &src.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &src.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := src.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}
	return src, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
