package adapters

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HatiCode/gridcast/pkg/series"
)

// MongoFields names the document fields a MongoSource reads.
type MongoFields struct {
	Timestamp string
	Region    string
	Value     string
	// Station is optional.
	Station string
	// Layout, when set, means timestamps are stored as strings in this Go
	// layout (UTC) instead of BSON dates. Range filtering then happens in
	// the client.
	Layout string
}

// DemandFields matches the demand collection: DATETIME, state, TOTALDEMAND.
func DemandFields() MongoFields {
	return MongoFields{Timestamp: "DATETIME", Region: "state", Value: "TOTALDEMAND"}
}

// TemperatureFields matches the temperature collection: DATETIME, state,
// TEMPERATURE, LOCATION.
func TemperatureFields() MongoFields {
	return MongoFields{Timestamp: "DATETIME", Region: "state", Value: "TEMPERATURE", Station: "LOCATION"}
}

// MongoSource reads one document per reading from a collection.
type MongoSource struct {
	coll   *mongo.Collection
	fields MongoFields
}

// NewMongoSource reads collection from db using fields.
func NewMongoSource(db *mongo.Database, collection string, fields MongoFields) *MongoSource {
	return &MongoSource{coll: db.Collection(collection), fields: fields}
}

func (m *MongoSource) Name() string { return "mongo:" + m.coll.Name() }

// Read implements Source. Documents without the timestamp field come back
// with an unknown timestamp when the query is unbounded. Documents without a
// region are returned for every region.
func (m *MongoSource) Read(ctx context.Context, q Query) ([]series.Observation, error) {
	match := bson.D{}
	if q.Region != "" {
		// A null or absent region matches too; the batch region fills it in.
		match = append(match, bson.E{Key: m.fields.Region, Value: bson.D{
			{Key: "$in", Value: bson.A{q.Region, nil, ""}},
		}})
	}
	if m.fields.Layout == "" && !q.Range.IsZero() {
		cond := bson.D{}
		if !q.Range.Start.IsZero() {
			cond = append(cond, bson.E{Key: "$gte", Value: q.Range.Start.UTC()})
		}
		if !q.Range.End.IsZero() {
			cond = append(cond, bson.E{Key: "$lt", Value: q.Range.End.UTC()})
		}
		match = append(match, bson.E{Key: m.fields.Timestamp, Value: cond})
	}

	projection := bson.D{
		{Key: "_id", Value: 0},
		{Key: m.fields.Timestamp, Value: 1},
		{Key: m.fields.Region, Value: 1},
		{Key: m.fields.Value, Value: 1},
	}
	if m.fields.Station != "" {
		projection = append(projection, bson.E{Key: m.fields.Station, Value: 1})
	}

	cur, err := m.coll.Find(ctx, match, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", m.coll.Name(), err)
	}
	defer cur.Close(ctx)

	var obs []series.Observation
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		o, err := m.observation(doc)
		if err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.coll.Name(), err)
	}

	if m.fields.Layout != "" {
		obs = filter(obs, q)
	}
	sortByTime(obs)
	return obs, nil
}

func (m *MongoSource) observation(doc bson.M) (series.Observation, error) {
	o := series.Observation{Value: math.NaN()}

	ts, err := m.timestamp(doc[m.fields.Timestamp])
	if err != nil {
		return o, err
	}
	o.Timestamp = ts

	if r, ok := doc[m.fields.Region].(string); ok {
		o.Region = r
	}
	if v, ok := toFloat64(doc[m.fields.Value]); ok {
		o.Value = v
	}
	if m.fields.Station != "" {
		if st, ok := doc[m.fields.Station].(string); ok {
			o.Station = st
		}
	}
	return o, nil
}

func (m *MongoSource) timestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case primitive.DateTime:
		return t.Time().UTC(), nil
	case time.Time:
		return t.UTC(), nil
	case string:
		layout := m.fields.Layout
		if layout == "" {
			layout = time.RFC3339
		}
		ts, err := time.ParseInLocation(layout, t, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %s %q: %w", m.fields.Timestamp, t, err)
		}
		return ts.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported %s type %T", m.fields.Timestamp, v)
	}
}

// BatchKeys implements KeyEnumerator with a $group aggregation over the
// UTC year and month of each document. String timestamps are grouped in the
// client instead.
func (m *MongoSource) BatchKeys(ctx context.Context) ([]series.BatchKey, error) {
	if m.fields.Layout != "" {
		obs, err := m.Read(ctx, Query{})
		if err != nil {
			return nil, err
		}
		return keysOf(obs), nil
	}

	ts := "$" + m.fields.Timestamp
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: m.fields.Timestamp, Value: bson.D{{Key: "$ne", Value: nil}}},
			{Key: m.fields.Region, Value: bson.D{{Key: "$type", Value: "string"}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "region", Value: "$" + m.fields.Region},
				{Key: "year", Value: bson.D{{Key: "$year", Value: bson.D{{Key: "$toDate", Value: ts}}}}},
				{Key: "month", Value: bson.D{{Key: "$month", Value: bson.D{{Key: "$toDate", Value: ts}}}}},
			}},
		}}},
	}

	cur, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate batch keys: %w", err)
	}
	var groups []struct {
		ID struct {
			Region string `bson:"region"`
			Year   int    `bson:"year"`
			Month  int    `bson:"month"`
		} `bson:"_id"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode batch keys: %w", err)
	}

	keys := make([]series.BatchKey, 0, len(groups))
	for _, g := range groups {
		if g.ID.Region == "" {
			continue
		}
		keys = append(keys, series.BatchKey{Region: g.ID.Region, Year: g.ID.Year, Month: time.Month(g.ID.Month)})
	}
	return series.SortKeys(keys), nil
}

func keysOf(obs []series.Observation) []series.BatchKey {
	keys := make([]series.BatchKey, 0)
	for _, o := range obs {
		if o.HasTimestamp() && o.Region != "" {
			keys = append(keys, series.KeyOf(o.Region, o.Timestamp))
		}
	}
	return series.SortKeys(keys)
}

// toFloat64 converts the numeric types a document or row may carry.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	default:
		return 0, false
	}
}
