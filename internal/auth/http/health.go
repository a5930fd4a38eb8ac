package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
)

// Pinger is a backend the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecks names the backends behind the service. Nil entries are
// reported as "ok".
type ReadinessChecks struct {
	Database    Pinger
	Sessions    Pinger
	Revocations Pinger
}

// LivezHandler always answers 200 while the process is up.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler answers 503 when any backend fails its ping.
func ReadyzHandler(startTime time.Time, version string, checks ReadinessChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		overallStatus := "ok"
		statusCode := http.StatusOK

		probe := func(p Pinger) string {
			if p == nil {
				return "ok"
			}
			if err := p.Ping(ctx); err != nil {
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
				return "error: " + err.Error()
			}
			return "ok"
		}

		result := &authsdk.HealthChecks{
			Database:    probe(checks.Database),
			Sessions:    probe(checks.Sessions),
			Revocations: probe(checks.Revocations),
		}

		httpx.WriteJSON(w, statusCode, authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  result,
		})
	}
}
