package adapters

import "time"

// NewVictoriaMetricsSource returns a source reading from VictoriaMetrics via
// its Prometheus-compatible query_range API.
func NewVictoriaMetricsSource(serverURL, query string, step time.Duration) *PrometheusSource {
	return &PrometheusSource{
		ServerURL: serverURL,
		Query:     query,
		Step:      step,
		name:      "victoria-metrics",
	}
}
