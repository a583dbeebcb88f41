package handler

import (
	"net/http"

	"github.com/openclaw/nowplaying-relay-go/internal/httputil"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/service"
)

type ControlHandler struct {
	controlService *service.ControlService
}

func NewControlHandler(controlService *service.ControlService) *ControlHandler {
	return &ControlHandler{controlService: controlService}
}

// Action returns a handler for a fixed-action endpoint such as POST /pause.
func (h *ControlHandler) Action(action provider.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := httputil.ReadParams(r)
		h.command(w, r, params.ID, string(action))
	}
}

// POST /playback-control
// Body or query carries id and action.
func (h *ControlHandler) PlaybackControl(w http.ResponseWriter, r *http.Request) {
	params := httputil.ReadParams(r)
	h.command(w, r, params.ID, params.Action)
}

// POST /play-pause
func (h *ControlHandler) PlayPause(w http.ResponseWriter, r *http.Request) {
	params := httputil.ReadParams(r)

	action, err := h.controlService.Toggle(r.Context(), params.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	result := "played"
	if action == provider.ActionPause {
		result = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": result})
}

func (h *ControlHandler) command(w http.ResponseWriter, r *http.Request, id, action string) {
	if err := h.controlService.Command(r.Context(), id, action); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": action})
}
