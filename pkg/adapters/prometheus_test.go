package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const rangeResponse = `{
    "status":"success",
    "data":{
        "resultType":"matrix",
        "result":[
            { "metric":{"state":"NSW","site":"airport"}, "values":[ [ 1704067200, "20" ], [ 1704069000, "21" ] ] },
            { "metric":{"state":"NSW","site":"observatory"}, "values":[ [ 1704067200, "22" ] ] }
        ]
    }
}`

func TestPrometheusSource_PerSeriesObservations(t *testing.T) {
	var gotQuery, gotStart, gotEnd, gotStep string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotStart = r.URL.Query().Get("start")
		gotEnd = r.URL.Query().Get("end")
		gotStep = r.URL.Query().Get("step")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, rangeResponse)
	}))
	defer server.Close()

	src := &PrometheusSource{
		ServerURL:    server.URL,
		Query:        `air_temperature{state="{{.Region}}"}`,
		RegionLabel:  "state",
		StationLabel: "site",
	}

	obs, err := src.Read(context.Background(), Query{Region: "NSW", Range: jan})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if gotQuery != `air_temperature{state="NSW"}` {
		t.Errorf("query = %s", gotQuery)
	}
	if gotStart != "1704067200" || gotEnd != "1706745599" || gotStep != "1800" {
		t.Errorf("start/end/step = %s/%s/%s", gotStart, gotEnd, gotStep)
	}

	// Stations stay separate; the aligner averages them.
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	prev := time.Time{}
	stations := map[string]bool{}
	for i, o := range obs {
		if o.Timestamp.Before(prev) {
			t.Fatalf("observation %d not sorted", i)
		}
		prev = o.Timestamp
		if o.Region != "NSW" {
			t.Errorf("obs %d region = %q", i, o.Region)
		}
		stations[o.Station] = true
	}
	if !stations["airport"] || !stations["observatory"] {
		t.Errorf("stations = %v", stations)
	}
}

func TestPrometheusSource_RequiresRange(t *testing.T) {
	src := &PrometheusSource{ServerURL: "http://localhost:1", Query: "up"}
	if _, err := src.Read(context.Background(), Query{}); err == nil {
		t.Error("expected error for unbounded read without a configured range")
	}
	if _, err := (&PrometheusSource{}).Read(context.Background(), Query{Range: jan}); err == nil {
		t.Error("expected error for missing ServerURL and Query")
	}
}

func TestPrometheusSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","data":{"result":[]}}`)
	}))
	defer server.Close()

	src := &PrometheusSource{ServerURL: server.URL, Query: "up", Range: jan}
	if _, err := src.Read(context.Background(), Query{}); err == nil {
		t.Error("expected error for non-success status")
	}
}

func TestVictoriaMetricsSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"matrix","result":[
			{"metric":{},"values":[[1704067200,"7000"],[1704069000,"7100"]]}
		]}}`)
	}))
	defer server.Close()

	src := NewVictoriaMetricsSource(server.URL, "nem_demand", 30*time.Minute)
	if src.Name() != "victoria-metrics" {
		t.Errorf("Name() = %s, want victoria-metrics", src.Name())
	}

	obs, err := src.Read(context.Background(), Query{Region: "QLD", Range: jan})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	// No region label: observations take the queried region.
	if obs[0].Region != "QLD" || obs[1].Value != 7100 {
		t.Errorf("observations = %+v", obs)
	}
}

func TestRangeObservations_InvalidPair(t *testing.T) {
	_, err := RangeObservations([]PrometheusRangeSerie{{Values: [][]any{{1.0}}}}, "region", "station")
	if err == nil {
		t.Error("expected error for invalid pair")
	}
}
