// Package ops serves the operational HTTP endpoint of the catalog process:
// liveness, readiness of the backing stores and Prometheus metrics.
package ops

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"MiniCatalog/pkg/kit"
)

const readyTimeout = time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is one named readiness probe.
type Check struct {
	Name   string
	Target Pinger
}

type Server struct {
	Checks []Check
	Log    *zap.Logger
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	results := make(map[string]string, len(s.Checks))
	var failed []string
	for _, c := range s.Checks {
		if err := c.Target.Ping(ctx); err != nil {
			if s.Log != nil {
				s.Log.Warn("readyz check failed", zap.String("check", c.Name), zap.Error(err))
			}
			results[c.Name] = "unavailable"
			failed = append(failed, c.Name)
			continue
		}
		results[c.Name] = "ok"
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", map[string]any{"failed": failed})
		return
	}
	if err := kit.WriteJSON(w, http.StatusOK, readyResponse{Status: "ready", Checks: results}); err != nil && s.Log != nil {
		s.Log.Debug("write readyz response", zap.Error(err))
	}
}
