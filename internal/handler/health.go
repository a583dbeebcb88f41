package handler

import (
	"net/http"
	"time"

	"github.com/openclaw/nowplaying-relay-go/internal/sse"
)

type pollerStats interface {
	Active() int
}

type HealthHandler struct {
	broker *sse.Broker
	poller pollerStats
}

func NewHealthHandler(broker *sse.Broker, poller pollerStats) *HealthHandler {
	return &HealthHandler{broker: broker, poller: poller}
}

// GET /health
// Reports liveness and local fan-out counters. It does not check the stores.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	}
	if h.broker != nil {
		body["sseClients"] = h.broker.TotalClients()
	}
	if h.poller != nil {
		body["pollers"] = h.poller.Active()
	}
	writeJSON(w, http.StatusOK, body)
}
