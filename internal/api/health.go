package api

import (
	"net/http"
	"time"

	"github.com/enplayer/sr-engine/internal/settings"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	svc       Service
	settings  *settings.Manager
	probe     ProbeFunc
	version   string
	startTime time.Time
}

func NewHealthHandler(svc Service, mgr *settings.Manager, probe ProbeFunc, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		svc:       svc,
		settings:  mgr,
		probe:     probe,
		version:   version,
		startTime: startTime,
	}
}

// ServeHTTP reports engine health. Healthy means at least one recognition
// backend can serve jobs; a missing decoder only degrades, since plain WAV
// audio needs none.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Decoder check
	if h.probe != nil {
		if err := h.probe(r.Context()); err != nil {
			checks["decoder"] = "missing"
			status = "degraded"
		} else {
			checks["decoder"] = "ok"
		}
	}

	// Backend checks
	localReady := h.svc.LocalReady()
	if localReady {
		checks["local_model"] = "ok"
	} else {
		checks["local_model"] = "not_loaded"
	}

	remoteConfigured := h.settings.Current().APIURL != ""
	if remoteConfigured {
		checks["remote_api"] = "configured"
	} else {
		checks["remote_api"] = "not_configured"
	}

	if !localReady && !remoteConfigured {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	// Job state
	if h.svc.Busy() {
		checks["job"] = "running"
	} else {
		checks["job"] = "idle"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
