package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftguard/driftguard/internal/config"
)

func httpSource(url string) config.Source {
	return config.Source{Name: "api", Type: "http", Connection: url}
}

func TestHTTPCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"row_count": 120, "latest_timestamp": "2026-03-01T05:00:00Z", "error_rate": 0.02}`))
	}))
	defer srv.Close()

	src := httpSource(srv.URL)
	conn, err := New(src)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	snap, err := conn.Collect(context.Background(), src)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	if rc, ok := snap.RowCount(); !ok || rc != 120 {
		t.Errorf("RowCount() = (%d, %v), want (120, true)", rc, ok)
	}
	if ts, ok := snap.LatestTimestamp(); !ok || ts.Hour() != 5 {
		t.Errorf("LatestTimestamp() = (%v, %v), want 05:00 timestamp", ts, ok)
	}
	if got := snap.Metrics["error_rate"]; got != 0.02 {
		t.Errorf("error_rate = %v, want 0.02", got)
	}
	if ct, _ := snap.Metadata["connector_type"].(string); ct != "http" {
		t.Errorf("connector_type = %q, want http", ct)
	}
}

func TestHTTPCollectBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	src := httpSource(srv.URL)
	conn, _ := New(src)
	_, err := conn.Collect(context.Background(), src)

	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeQuery {
		t.Fatalf("Collect() error = %v, want QUERY_ERROR", err)
	}
}

func TestHTTPCollectConnectionRefused(t *testing.T) {
	// Reserve a port, then close it so the connection is refused.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := httpSource(url)
	conn, _ := New(src)
	_, err := conn.Collect(context.Background(), src)

	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeConnection {
		t.Fatalf("Collect() error = %v, want CONNECTION_ERROR", err)
	}
}

func TestHTTPCollectNonObjectBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2, 3]`))
	}))
	defer srv.Close()

	src := httpSource(srv.URL)
	conn, _ := New(src)
	_, err := conn.Collect(context.Background(), src)

	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeValidation {
		t.Fatalf("Collect() error = %v, want VALIDATION_ERROR", err)
	}
}

func TestNewUnsupportedType(t *testing.T) {
	_, err := New(config.Source{Name: "x", Type: "ftp"})
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeValidation {
		t.Fatalf("New() error = %v, want VALIDATION_ERROR", err)
	}
}
