package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/audit"
	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
)

// TokenRefresher keeps access tokens usable. It refreshes inside the skew
// window before expiry and drops sessions whose refresh fails.
type TokenRefresher struct {
	sessions repository.SessionRepository
	provider provider.Provider
	skew     time.Duration
	now      func() time.Time
}

func NewTokenRefresher(sessions repository.SessionRepository, prov provider.Provider, skew time.Duration) *TokenRefresher {
	return &TokenRefresher{
		sessions: sessions,
		provider: prov,
		skew:     skew,
		now:      time.Now,
	}
}

// ValidSession loads the session for id and makes sure its access token is
// usable. It fails with NOT_LOGGED when there is no session.
func (r *TokenRefresher) ValidSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := r.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Session store unavailable", err)
	}
	if session == nil {
		return nil, apperrors.NotAuthenticated()
	}
	return r.EnsureValid(ctx, session)
}

// EnsureValid returns session unchanged while its token is outside the skew
// window. Otherwise it refreshes, persists and returns the new token set.
// A failed refresh deletes the session and returns REFRESH_ERROR, unless ctx
// was canceled first, which leaves the session untouched.
func (r *TokenRefresher) EnsureValid(ctx context.Context, session *model.Session) (*model.Session, error) {
	now := r.now()
	if !session.NeedsRefresh(now, r.skew) {
		return session, nil
	}

	logger := log.With().Str("id", session.ID).Logger()
	logger.Debug().Time("expiresAt", session.ExpiresAt).Msg("refreshing access token")

	token, err := r.provider.Refresh(ctx, session.RefreshToken)
	if err != nil && ctx.Err() != nil {
		// The caller went away; the grant itself was never rejected.
		logger.Debug().Err(err).Msg("token refresh abandoned")
		return nil, apperrors.ProviderError(provider.FormatError(err), err)
	}
	if err != nil {
		permanent := provider.IsPermanentAuthError(err)
		logger.Warn().Err(err).Bool("permanent", permanent).Msg("token refresh failed, dropping session")
		audit.Log(ctx, audit.Event{
			Type:          audit.EventRefreshFailure,
			CorrelationID: session.ID,
			Details:       map[string]interface{}{"permanent": permanent},
		})
		r.dropGrant(ctx, session)
		return nil, apperrors.RefreshError(err)
	}

	refreshed := *session
	refreshed.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}
	refreshed.ExpiresAt = token.Expiry
	refreshed.UpdatedAt = now

	ok, err := r.sessions.UpdateTokens(ctx, model.UpdateTokensParams{
		ID:           refreshed.ID,
		CreatedAt:    refreshed.CreatedAt,
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    refreshed.ExpiresAt,
		UpdatedAt:    refreshed.UpdatedAt,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Session store unavailable", err)
	}
	if ok {
		return &refreshed, nil
	}

	// The grant was revoked or replaced while the refresh was in flight.
	current, err := r.sessions.Get(ctx, session.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Session store unavailable", err)
	}
	if current == nil {
		logger.Debug().Msg("session revoked during refresh")
		return nil, apperrors.NotAuthenticated()
	}
	logger.Debug().Msg("session replaced during refresh")
	return current, nil
}

// dropGrant deletes the session only if it is still the grant that failed,
// so a concurrent callback's fresh session survives.
func (r *TokenRefresher) dropGrant(ctx context.Context, session *model.Session) {
	current, err := r.sessions.Get(ctx, session.ID)
	if err != nil {
		log.Error().Err(err).Str("id", session.ID).Msg("failed to load session for removal")
		return
	}
	if current == nil || !current.CreatedAt.Equal(session.CreatedAt) {
		return
	}
	if err := r.sessions.Delete(ctx, session.ID); err != nil {
		log.Error().Err(err).Str("id", session.ID).Msg("failed to delete session")
	}
}
