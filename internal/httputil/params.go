package httputil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Params are the request values every relay endpoint understands.
type Params struct {
	ID     string
	Action string
}

type bodyParams struct {
	ID     string `json:"id"`
	UUID   string `json:"uuid"`
	Action string `json:"action"`
}

// ReadParams collects id and action from the query string, a form body or a
// JSON body, in that order. In-world scripts send either id or uuid.
// The body is restored afterwards, so middleware and handlers can both call it.
func ReadParams(r *http.Request) Params {
	var body bodyParams
	var form url.Values

	if raw := peekBody(r); len(raw) > 0 {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/json":
			if err := json.Unmarshal(raw, &body); err != nil {
				log.Debug().Err(err).Msg("ignoring malformed json body")
			}
		case "application/x-www-form-urlencoded":
			form, _ = url.ParseQuery(string(raw))
		}
	}

	query := r.URL.Query()
	return Params{
		ID: firstNonEmpty(
			query.Get("id"), query.Get("uuid"),
			form.Get("id"), form.Get("uuid"),
			body.ID, body.UUID,
		),
		Action: firstNonEmpty(query.Get("action"), form.Get("action"), body.Action),
	}
}

// peekBody reads the whole body and puts an identical reader back.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody || r.Method == http.MethodGet {
		return nil
	}

	raw, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		log.Debug().Err(err).Msg("failed to read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
