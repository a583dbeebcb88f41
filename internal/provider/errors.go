package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

// APIError is the provider's regular error object:
// {"error": {"status": 404, "message": "...", "reason": "NO_ACTIVE_DEVICE"}}
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("spotify api: %d %s (%s)", e.Status, e.Message, e.Reason)
	}
	return fmt.Sprintf("spotify api: %d %s", e.Status, e.Message)
}

type apiErrorBody struct {
	Error *APIError `json:"error"`
}

var reasonMessages = map[string]string{
	"NO_ACTIVE_DEVICE":        "No active device found. Start playback on a device first.",
	"PREMIUM_REQUIRED":        "This action requires a Spotify Premium account.",
	"RATE_LIMITED":            "Spotify is rate limiting requests. Try again shortly.",
	"UNKNOWN":                 "Spotify could not complete the request.",
	"DEVICE_NOT_CONTROLLABLE": "The active device cannot be controlled remotely.",
}

// FormatError turns any provider failure into a short message that is safe to
// show to a client. Raw response bodies never pass through.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg, ok := reasonMessages[apiErr.Reason]; ok {
			return msg
		}
		switch apiErr.Status {
		case http.StatusUnauthorized:
			return "Spotify rejected the access token."
		case http.StatusForbidden:
			return "Spotify refused the request."
		case http.StatusNotFound:
			return "No active device found. Start playback on a device first."
		case http.StatusTooManyRequests:
			return "Spotify is rate limiting requests. Try again shortly."
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return http.StatusText(apiErr.Status)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
		return "Spotify token request failed."
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "Spotify did not respond in time."
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "Spotify did not respond in time."
		}
		return "Spotify is unreachable."
	}

	return "Spotify request failed."
}

// IsPermanentAuthError reports whether the token endpoint rejected the grant
// itself, as opposed to a network or server failure that may clear up.
func IsPermanentAuthError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}

	switch retrieveErr.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	}
	if retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		return status == http.StatusBadRequest || status == http.StatusUnauthorized
	}
	return false
}
