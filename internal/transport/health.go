package transport

import (
	"net/http"
	"time"
)

// HealthChecker reports the liveness of an optional dependency. A nil
// checker is treated as "not configured" rather than "unhealthy".
type HealthChecker interface {
	HealthCheck() error
}

// HealthHandler reports process uptime plus the status of whichever
// optional dependencies (session feed, audit log) are configured.
type HealthHandler struct {
	version   string
	startTime time.Time
	mqtt      HealthChecker
	auditDB   HealthChecker
}

// NewHealthHandler builds a health handler. mqtt and auditDB may be nil
// when the corresponding feature is disabled.
func NewHealthHandler(version string, startTime time.Time, mqtt, auditDB HealthChecker) *HealthHandler {
	return &HealthHandler{version: version, startTime: startTime, mqtt: mqtt, auditDB: auditDB}
}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptimeSeconds"`
	Checks        map[string]string `json:"checks"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "ok"

	if h.mqtt != nil {
		if err := h.mqtt.HealthCheck(); err != nil {
			checks["sessionFeed"] = "down: " + err.Error()
			status = "degraded"
		} else {
			checks["sessionFeed"] = "ok"
		}
	}
	if h.auditDB != nil {
		if err := h.auditDB.HealthCheck(); err != nil {
			checks["auditLog"] = "down: " + err.Error()
			status = "degraded"
		} else {
			checks["auditLog"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Checks:        checks,
	})
}
