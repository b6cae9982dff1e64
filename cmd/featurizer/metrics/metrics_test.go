package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/HatiCode/gridcast/pkg/pipeline"
)

var _ pipeline.Metrics = (*Metrics)(nil)

func TestRecording(t *testing.T) {
	m := New("features")

	m.SetPlanned(4)
	m.RecordBatch("success")
	m.RecordBatch("success")
	m.RecordBatch("failure")
	m.AddRows(96, 2)
	m.AddRows(48, 0)
	m.RecordImputation("temperature", 5, false)
	m.RecordImputation("temperature", 0, true)
	m.RecordError("source", "read")
	m.ObserveStage("impute", 20*time.Millisecond)
	m.SetRunResult(true, time.Unix(1706745600, 0))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"planned", testutil.ToFloat64(m.BatchesPlanned), 4},
		{"success batches", testutil.ToFloat64(m.BatchesTotal.WithLabelValues("success")), 2},
		{"failed batches", testutil.ToFloat64(m.BatchesTotal.WithLabelValues("failure")), 1},
		{"rows written", testutil.ToFloat64(m.RowsWritten), 144},
		{"rows dropped", testutil.ToFloat64(m.RowsDropped), 2},
		{"imputed", testutil.ToFloat64(m.ImputedValues.WithLabelValues("temperature")), 5},
		{"skipped", testutil.ToFloat64(m.ImputationSkipped.WithLabelValues("temperature")), 1},
		{"errors", testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("source", "read")), 1},
		{"last success", testutil.ToFloat64(m.LastRunSuccess), 1},
		{"last timestamp", testutil.ToFloat64(m.LastRunTimestamp), 1706745600},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if n := testutil.CollectAndCount(m.StageSeconds, "gridcast_stage_seconds"); n != 1 {
		t.Errorf("stage series = %d, want 1", n)
	}

	m.SetRunResult(false, time.Unix(1706745700, 0))
	if got := testutil.ToFloat64(m.LastRunSuccess); got != 0 {
		t.Errorf("last success after failure = %v, want 0", got)
	}
}

func TestNewRegistriesAreIndependent(t *testing.T) {
	a := New("features")
	b := New("features")

	a.RecordBatch("success")
	if got := testutil.ToFloat64(b.BatchesTotal.WithLabelValues("success")); got != 0 {
		t.Errorf("second registry saw %v batches, want 0", got)
	}
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		method string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, method, body = r.URL.Path, r.Method, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New("features")
	m.AddRows(10, 0)

	if err := m.Push(context.Background(), srv.URL, "gridcast_featurizer"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/gridcast_featurizer" {
		t.Errorf("path = %s, want /metrics/job/gridcast_featurizer", path)
	}
	if !strings.Contains(body, "gridcast_rows_written_total") {
		t.Error("pushed body missing gridcast_rows_written_total")
	}
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := New("features").Push(context.Background(), srv.URL, "job"); err == nil {
		t.Error("Push expected error on 500")
	}
}
