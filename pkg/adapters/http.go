package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/gridcast/pkg/series"
)

// HTTPSource calls a REST API endpoint and extracts observations using JSON
// path expressions.
//
// It supports:
//   - Configurable HTTP method (GET, POST, etc.)
//   - Templates in the URL, body and headers with variables: {{.Region}},
//     {{.Start}}, {{.End}}, {{.StartRFC3339}}, {{.EndRFC3339}}
//   - Custom headers including authentication (Bearer tokens, API keys, etc.)
//   - gjson paths for timestamps, values and optionally regions and stations
//   - Flexible timestamp parsing (RFC3339, Unix seconds, Unix milliseconds, Go layouts)
//
// Example configuration for a temperature API:
//
//	src := &HTTPSource{
//	    URL:           "https://api.example.com/temperature?state={{.Region}}&from={{.StartRFC3339}}",
//	    ValuePath:     "data.#.celsius",
//	    TimestampPath: "data.#.time",
//	    StationPath:   "data.#.station",
//	}
//
// Rows outside the query are dropped after extraction, so an API that ignores
// the template variables still yields a correct read.
type HTTPSource struct {
	// URL is the endpoint to call (required). Supports template variables.
	URL string

	// Method is the HTTP method (GET, POST, etc.). Defaults to GET if empty.
	Method string

	// Headers are custom HTTP headers to include in the request.
	Headers map[string]string

	// Body is the request body template (for POST/PUT).
	Body string

	// ValuePath is the gjson path to the values, e.g. "data.#.value".
	// A null value becomes a missing reading.
	ValuePath string

	// TimestampPath is the gjson path to the timestamps.
	// Must return the same number of elements as ValuePath.
	TimestampPath string

	// RegionPath is an optional gjson path to each reading's region. Without
	// it, readings take the queried region.
	RegionPath string

	// StationPath is an optional gjson path to each reading's station.
	StationPath string

	// TimestampFormat specifies how to parse timestamps:
	//   "rfc3339"    - RFC3339 strings (default)
	//   "unix"       - Unix seconds (float or int)
	//   "unix_milli" - Unix milliseconds (float or int)
	//   "layout"     - TimestampLayout, interpreted in UTC
	TimestampFormat string

	// TimestampLayout is the Go time layout used with the "layout" format.
	TimestampLayout string

	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom variables available in templates.
	TemplateVars map[string]string

	// SourceName overrides Name(). Defaults to "http".
	SourceName string
}

func (h *HTTPSource) Name() string {
	if h.SourceName != "" {
		return h.SourceName
	}
	return "http"
}

// Read implements Source.
func (h *HTTPSource) Read(ctx context.Context, q Query) ([]series.Observation, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http source: %w", err)
	}

	data := map[string]any{
		"Region":       q.Region,
		"Start":        unixOrEmpty(q.Range.Start),
		"End":          unixOrEmpty(q.Range.End),
		"StartRFC3339": rfc3339OrEmpty(q.Range.Start),
		"EndRFC3339":   rfc3339OrEmpty(q.Range.End),
	}
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	body, err := h.fetch(ctx, data)
	if err != nil {
		return nil, err
	}

	values := gjson.GetBytes(body, h.ValuePath)
	timestamps := gjson.GetBytes(body, h.TimestampPath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}

	valArray := values.Array()
	var tsArray []gjson.Result
	if timestamps.Exists() {
		tsArray = timestamps.Array()
		if len(valArray) != len(tsArray) {
			return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
		}
	}
	regions, err := optionalArray(body, h.RegionPath, len(valArray), "region")
	if err != nil {
		return nil, err
	}
	stations, err := optionalArray(body, h.StationPath, len(valArray), "station")
	if err != nil {
		return nil, err
	}

	obs := make([]series.Observation, 0, len(valArray))
	for i := range valArray {
		o := series.Observation{Region: q.Region, Value: math.NaN()}
		if valArray[i].Type != gjson.Null {
			o.Value = valArray[i].Float()
		}
		// A response without the timestamp path yields unknown timestamps.
		if tsArray != nil {
			ts, err := h.parseTimestamp(tsArray[i])
			if err != nil {
				return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
			}
			o.Timestamp = ts
		}
		if regions != nil {
			o.Region = regions[i].String()
		}
		if stations != nil {
			o.Station = stations[i].String()
		}
		obs = append(obs, o)
	}

	obs = filter(obs, q)
	sortByTime(obs)
	return obs, nil
}

func (h *HTTPSource) fetch(ctx context.Context, data map[string]any) ([]byte, error) {
	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := renderTemplate(h.URL, data)
	if err != nil {
		return nil, fmt.Errorf("render url template: %w", err)
	}

	var bodyReader io.Reader
	if h.Body != "" {
		renderedBody, err := renderTemplate(h.Body, data)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		bodyReader = bytes.NewBufferString(renderedBody)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return respBody, nil
}

func optionalArray(body []byte, path string, n int, what string) ([]gjson.Result, error) {
	if path == "" {
		return nil, nil
	}
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return nil, fmt.Errorf("%s path %q not found in response", what, path)
	}
	arr := res.Array()
	if len(arr) != n {
		return nil, fmt.Errorf("%s count (%d) != value count (%d)", what, len(arr), n)
	}
	return arr, nil
}

// parseTimestamp parses a timestamp according to the configured format
func (h *HTTPSource) parseTimestamp(value gjson.Result) (time.Time, error) {
	if value.Type == gjson.Null {
		return time.Time{}, nil
	}

	format := h.TimestampFormat
	if format == "" {
		format = "rfc3339"
	}

	switch format {
	case "rfc3339":
		t, err := time.Parse(time.RFC3339, value.String())
		return t.UTC(), err

	case "unix":
		// Unix seconds (supports both int and float)
		sec := value.Float()
		return time.Unix(int64(sec), 0).UTC(), nil

	case "unix_milli":
		ms := value.Float()
		return time.UnixMilli(int64(ms)).UTC(), nil

	case "layout":
		return time.ParseInLocation(h.TimestampLayout, value.String(), time.UTC)

	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", format)
	}
}

// renderTemplate renders a text template with the given data
func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func unixOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d", t.Unix())
}

func rfc3339OrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ValidateConfig checks if the source configuration is valid
func (h *HTTPSource) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}

	switch h.TimestampFormat {
	case "", "rfc3339", "unix", "unix_milli":
	case "layout":
		if h.TimestampLayout == "" {
			return errors.New("timestampLayout is required with the layout format")
		}
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, unix_milli, or layout)", h.TimestampFormat)
	}

	return nil
}
