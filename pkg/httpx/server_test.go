package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gridtls "github.com/HatiCode/gridcast/pkg/tls"
)

func TestHealthHandlerWithCheck(t *testing.T) {
	tests := []struct {
		name       string
		check      func() error
		wantStatus int
		wantBody   string
	}{
		{"healthy", func() error { return nil }, http.StatusOK, "OK"},
		{"unhealthy", func() error { return errors.New("run failed") }, http.StatusServiceUnavailable, "{\"error\":\"run failed\"}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HealthHandlerWithCheck(tt.check)(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusAccepted, map[string]int{"batches": 3}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
	var got map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["batches"] != 3 {
		t.Errorf("batches = %d, want 3", got["batches"])
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	h := LoggingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestNewClient(t *testing.T) {
	cli, err := NewClient(gridtls.Config{}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if cli.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cli.Timeout)
	}

	if _, err := NewClient(gridtls.Config{Enabled: true}, time.Second); err == nil {
		t.Error("NewClient with TLS and no cert expected error")
	}
}
