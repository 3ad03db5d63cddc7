package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/snarg/alarm-player/internal/alarmstate"
	"github.com/snarg/alarm-player/internal/broker"
	"github.com/snarg/alarm-player/internal/database"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	db        *database.DB
	broker    *broker.Client
	service   *alarmstate.Service
	startTime time.Time
}

func NewHealthHandler(db *database.DB, mqtt *broker.Client, service *alarmstate.Service, startTime time.Time) *HealthHandler {
	return &HealthHandler{db: db, broker: mqtt, service: service, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.broker.IsConnected() {
		checks["mqtt"] = "ok"
	} else {
		checks["mqtt"] = "disconnected"
		if status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}
