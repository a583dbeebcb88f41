package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/httputil"
	"github.com/openclaw/nowplaying-relay-go/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// GET /login?id=
// Redirects to the provider consent screen.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	params := httputil.ReadParams(r)

	authURL, err := h.authService.Login(r.Context(), params.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// GET /callback?code=&state=
// Provider redirect target. Renders a page the user can close.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	id, err := h.authService.Callback(r.Context(), service.CallbackParams{
		Code:          query.Get("code"),
		State:         query.Get("state"),
		ProviderError: query.Get("error"),
	})
	if err != nil {
		appErr, ok := apperrors.AsAppError(err)
		if !ok {
			appErr = apperrors.Internal("An unexpected error occurred")
		}
		log.Warn().Str("code", string(appErr.Code)).Msg("authorization callback failed")
		renderPage(w, httputil.StatusFromCode(appErr.Code), pageData{
			Title:   "Authorization failed",
			Message: appErr.Message,
		})
		return
	}

	log.Info().Str("id", id).Msg("authorization completed")
	renderPage(w, http.StatusOK, pageData{
		OK:      true,
		Title:   "Authorization complete",
		Message: "Your Spotify account is connected. You can close this window.",
	})
}

// POST /revoke
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	params := httputil.ReadParams(r)

	if err := h.authService.Revoke(r.Context(), params.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GET /status?id=
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	params := httputil.ReadParams(r)

	result, err := h.authService.Status(r.Context(), params.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
