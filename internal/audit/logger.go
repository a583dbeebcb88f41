package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventLoginStart      EventType = "login_start"
	EventAuthorized      EventType = "authorized"
	EventAuthDenied      EventType = "auth_denied"
	EventInvalidState    EventType = "invalid_state"
	EventExchangeFailure EventType = "exchange_failure"
	EventRefreshFailure  EventType = "refresh_failure"
	EventRevoke          EventType = "revoke"
	EventSessionEvicted  EventType = "session_evicted"
	EventRateLimitExceed EventType = "rate_limit_exceeded"
)

type Event struct {
	Type          EventType
	CorrelationID string
	IP            string
	UserAgent     string
	Details       map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.CorrelationID != "" {
		logger = logger.With().Str("id", event.CorrelationID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case error:
		return e.AnErr(key, v)
	default:
		return e.Interface(key, v)
	}
}

// LogFromRequest fills in the caller's address. chi's RealIP middleware has
// already folded forwarding headers into RemoteAddr.
func LogFromRequest(r *http.Request, event Event) {
	event.IP = r.RemoteAddr
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}
