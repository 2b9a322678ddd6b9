package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftguard/driftguard/internal/store"
)

// HealthServer serves /healthz and /metrics while the daemon runs.
type HealthServer struct {
	srv  *http.Server
	addr string
}

// Addr returns the address the server is listening on.
func (h *HealthServer) Addr() string { return h.addr }

// StartHealth listens on port and serves health and metrics in a background
// goroutine. The returned server must be shut down by the caller.
func StartHealth(port int, st *store.Store, metrics *Metrics) (*HealthServer, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := st.Healthcheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("daemon: health listener: %w", err)
	}

	hs := &HealthServer{
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		addr: ln.Addr().String(),
	}
	go func() {
		if err := hs.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("daemon: health server stopped", "err", err)
		}
	}()

	slog.Info("daemon: health endpoint listening", "addr", ln.Addr().String())
	return hs, nil
}

// Shutdown stops the health server, waiting for in-flight requests.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}
