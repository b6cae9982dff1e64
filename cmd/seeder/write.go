package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	_ "modernc.org/sqlite"

	"github.com/HatiCode/gridcast/pkg/adapters"
)

const insertChunk = 1000

// writeMongo replaces the demand and temperature collections with readings,
// using the field names the mongo source presets expect.
func writeMongo(ctx context.Context, db *mongo.Database, demandColl, temperatureColl string, demand, temperature []Reading) error {
	for _, w := range []struct {
		coll     string
		fields   adapters.MongoFields
		readings []Reading
	}{
		{demandColl, adapters.DemandFields(), demand},
		{temperatureColl, adapters.TemperatureFields(), temperature},
	} {
		coll := db.Collection(w.coll)
		if err := coll.Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", w.coll, err)
		}

		docs := make([]any, 0, insertChunk)
		flush := func() error {
			if len(docs) == 0 {
				return nil
			}
			if _, err := coll.InsertMany(ctx, docs); err != nil {
				return fmt.Errorf("insert into %s: %w", w.coll, err)
			}
			docs = docs[:0]
			return nil
		}

		for _, r := range w.readings {
			doc := bson.M{
				w.fields.Timestamp: r.Timestamp,
				w.fields.Region:    r.Region,
				w.fields.Value:     nil,
			}
			if r.Value != nil {
				doc[w.fields.Value] = *r.Value
			}
			if w.fields.Station != "" && r.Station != "" {
				doc[w.fields.Station] = r.Station
			}
			docs = append(docs, doc)
			if len(docs) == insertChunk {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := flush(); err != nil {
			return err
		}
	}
	return nil
}

// writeSQLite replaces the demand and temperature tables at path. Columns
// match the sqlite source defaults: ts (Unix seconds), region, value, station.
func writeSQLite(ctx context.Context, path string, demand, temperature []Reading) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, w := range []struct {
		table    string
		readings []Reading
	}{
		{"demand", demand},
		{"temperature", temperature},
	} {
		stmts := []string{
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, w.table),
			fmt.Sprintf(`CREATE TABLE %s (ts INTEGER, region TEXT, value REAL, station TEXT)`, w.table),
			fmt.Sprintf(`CREATE INDEX %s_region_ts ON %s (region, ts)`, w.table, w.table),
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("prepare %s: %w", w.table, err)
			}
		}

		ins, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (ts, region, value, station) VALUES (?, ?, ?, ?)`, w.table))
		if err != nil {
			return err
		}
		for _, r := range w.readings {
			var value, station any
			if r.Value != nil {
				value = *r.Value
			}
			if r.Station != "" {
				station = r.Station
			}
			if _, err := ins.ExecContext(ctx, r.Timestamp.Unix(), r.Region, value, station); err != nil {
				ins.Close()
				return fmt.Errorf("insert into %s: %w", w.table, err)
			}
		}
		ins.Close()
	}

	return tx.Commit()
}
