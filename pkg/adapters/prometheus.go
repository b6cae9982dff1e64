package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/gridcast/pkg/series"
)

// PrometheusSource reads a series from the Prometheus HTTP API. It issues one
// /api/v1/query_range call per read and returns every point of every returned
// series as its own observation: the region comes from RegionLabel and the
// station from StationLabel, so several stations per region are averaged by
// the aligner instead of summed here.
//
// Query may reference {{.Region}}, e.g. `temperature_celsius{state="{{.Region}}"}`.
type PrometheusSource struct {
	// ServerURL is the base URL to Prometheus, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL expression to evaluate.
	Query string
	// Step controls the resolution (defaults to 30m if <= 0).
	Step time.Duration
	// Range bounds reads whose query carries no range.
	Range series.TimeRange
	// RegionLabel defaults to "region"; StationLabel defaults to "station".
	RegionLabel  string
	StationLabel string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	name string
}

func (p *PrometheusSource) Name() string {
	if p.name != "" {
		return p.name
	}
	return "prometheus"
}

// Read implements Source.
func (p *PrometheusSource) Read(ctx context.Context, q Query) ([]series.Observation, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, fmt.Errorf("%s source: ServerURL and Query are required", p.Name())
	}
	step := p.Step
	if step <= 0 {
		step = 30 * time.Minute
	}
	rng := q.Range
	if rng.Start.IsZero() {
		rng.Start = p.Range.Start
	}
	if rng.End.IsZero() {
		rng.End = p.Range.End
	}
	if rng.Start.IsZero() || rng.End.IsZero() {
		return nil, fmt.Errorf("%s source: reads need a bounded time range", p.Name())
	}

	query, err := renderTemplate(p.Query, map[string]any{"Region": q.Region})
	if err != nil {
		return nil, fmt.Errorf("render query template: %w", err)
	}

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	params := u.Query()
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(rng.Start.Unix(), 10))
	// query_range includes its end; the read range does not.
	params.Set("end", strconv.FormatInt(rng.End.Add(-time.Second).Unix(), 10))
	params.Set("step", strconv.FormatInt(int64(step/time.Second), 10))
	u.RawQuery = params.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.Name(), resp.StatusCode)
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if pr.Status != "success" {
		return nil, fmt.Errorf("%s status: %s", p.Name(), pr.Status)
	}

	regionLabel, stationLabel := p.RegionLabel, p.StationLabel
	if regionLabel == "" {
		regionLabel = "region"
	}
	if stationLabel == "" {
		stationLabel = "station"
	}

	obs, err := RangeObservations(pr.Data.Result, regionLabel, stationLabel)
	if err != nil {
		return nil, err
	}
	for i := range obs {
		if obs[i].Region == "" {
			obs[i].Region = q.Region
		}
	}

	obs = filter(obs, Query{Region: q.Region, Range: rng})
	sortByTime(obs)
	return obs, nil
}

// PrometheusRangeResponse represents the response from Prometheus (and compatible systems).
type PrometheusRangeResponse struct {
	Status string              `json:"status"`
	Data   PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string                 `json:"resultType"`
	Result     []PrometheusRangeSerie `json:"result"`
}

// PrometheusRangeSerie represents a single time series in the result.
type PrometheusRangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// RangeObservations flattens range query series into observations, one per
// point, labelled with each series' region and station labels.
func RangeObservations(result []PrometheusRangeSerie, regionLabel, stationLabel string) ([]series.Observation, error) {
	var obs []series.Observation
	for _, s := range result {
		region, station := s.Metric[regionLabel], s.Metric[stationLabel]
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			var ts time.Time
			switch v := pair[0].(type) {
			case float64:
				ts = time.UnixMilli(int64(v * 1000)).UTC()
			case json.Number:
				f, _ := v.Float64()
				ts = time.UnixMilli(int64(f * 1000)).UTC()
			default:
				return nil, fmt.Errorf("unexpected timestamp type %T", v)
			}

			var val float64
			switch vv := pair[1].(type) {
			case string:
				f, err := strconv.ParseFloat(vv, 64)
				if err != nil {
					return nil, fmt.Errorf("parse value: %w", err)
				}
				val = f
			case float64:
				val = vv
			case json.Number:
				f, _ := vv.Float64()
				val = f
			default:
				return nil, fmt.Errorf("unexpected value type %T", vv)
			}

			obs = append(obs, series.Observation{Timestamp: ts, Region: region, Value: val, Station: station})
		}
	}
	return obs, nil
}
