package handler

import (
	"net/http"

	"github.com/openclaw/nowplaying-relay-go/internal/httputil"
	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/service"
)

type PlaybackHandler struct {
	playbackService *service.PlaybackService
}

func NewPlaybackHandler(playbackService *service.PlaybackService) *PlaybackHandler {
	return &PlaybackHandler{playbackService: playbackService}
}

type currentTrackResponse struct {
	IsPlaying bool                `json:"is_playing"`
	Track     string              `json:"track"`
	Artist    string              `json:"artist"`
	Progress  int                 `json:"progress"`
	Duration  int                 `json:"duration"`
	State     model.PlaybackState `json:"state"`
	ErrorCode string              `json:"error_code,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func newCurrentTrackResponse(s *model.PlaybackSnapshot) currentTrackResponse {
	return currentTrackResponse{
		IsPlaying: s.IsPlaying,
		Track:     s.TrackTitle,
		Artist:    s.Artist(),
		Progress:  s.ProgressMs,
		Duration:  s.DurationMs,
		State:     s.State,
		ErrorCode: s.ErrorCode,
		Error:     s.ErrorMessage,
	}
}

// GET /current-track?id=
// Every tenant state is a 200; failures are reported through error_code.
func (h *PlaybackHandler) CurrentTrack(w http.ResponseWriter, r *http.Request) {
	params := httputil.ReadParams(r)

	snapshot, err := h.playbackService.Read(r.Context(), params.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newCurrentTrackResponse(snapshot))
}
