package middleware

import (
	"net/http"

	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/httputil"
)

func writeError(w http.ResponseWriter, status int, err *apperrors.AppError) {
	httputil.WriteErrorWithStatus(w, status, err)
}
