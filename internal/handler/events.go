package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/httputil"
	"github.com/openclaw/nowplaying-relay-go/internal/service"
	"github.com/openclaw/nowplaying-relay-go/internal/sse"
)

type EventsHandler struct {
	broker            *sse.Broker
	playbackService   *service.PlaybackService
	heartbeatInterval time.Duration
}

func NewEventsHandler(broker *sse.Broker, playbackService *service.PlaybackService) *EventsHandler {
	return &EventsHandler{
		broker:            broker,
		playbackService:   playbackService,
		heartbeatInterval: sse.HeartbeatInterval,
	}
}

// GET /events?id=
// Streams a playback event whenever the cached snapshot for id changes.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := httputil.ReadParams(r).ID
	if id == "" {
		writeError(w, apperrors.MissingCorrelationID())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(id)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("id", id).Msg("sse connection established")

	ctx := r.Context()

	if err := h.sendEvent(w, flusher, "connected", map[string]any{"id": id}); err != nil {
		return
	}
	if snapshot := h.playbackService.Peek(ctx, id); snapshot != nil {
		if err := h.sendEvent(w, flusher, sse.EventPlayback, snapshot); err != nil {
			return
		}
	}
	// Subscribers count as readers, so the poller stays alive while
	// someone is listening.
	h.playbackService.Watch(id)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("id", id).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("id", id).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("id", id).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
			h.playbackService.Watch(id)
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
