package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Check is one named readiness dependency, e.g. a database ping.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// HealthReport is the readiness response body.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Liveness always answers 200 while the process serves requests.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeReport(w, http.StatusOK, HealthReport{Status: "alive"})
	}
}

// Readiness runs every check concurrently, each bounded by timeout, and
// answers 503 when any of them fails.
func Readiness(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			failed bool
			report = HealthReport{Status: "ready", Checks: make(map[string]string, len(checks))}
		)
		for _, c := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.Fn(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = true
					report.Checks[c.Name] = "unavailable"
					log.WarnContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
					return
				}
				report.Checks[c.Name] = "ok"
			}()
		}
		wg.Wait()

		if failed {
			report.Status = "not_ready"
			writeReport(w, http.StatusServiceUnavailable, report)
			return
		}
		writeReport(w, http.StatusOK, report)
	}
}

func writeReport(w http.ResponseWriter, status int, report HealthReport) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
