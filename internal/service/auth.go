package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/audit"
	"github.com/openclaw/nowplaying-relay-go/internal/config"
	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/model"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
	"github.com/openclaw/nowplaying-relay-go/internal/repository"
	"github.com/openclaw/nowplaying-relay-go/internal/util"
)

type AuthOptions struct {
	StateMode string
	StateTTL  time.Duration
}

// AuthService runs the authorization code flow and owns the session
// lifecycle outside of token refreshes.
type AuthService struct {
	sessions repository.SessionRepository
	states   repository.OAuthStateRepository
	provider provider.Provider
	playback *PlaybackService
	opts     AuthOptions
	now      func() time.Time
}

func NewAuthService(
	sessions repository.SessionRepository,
	states repository.OAuthStateRepository,
	prov provider.Provider,
	playback *PlaybackService,
	opts AuthOptions,
) *AuthService {
	return &AuthService{
		sessions: sessions,
		states:   states,
		provider: prov,
		playback: playback,
		opts:     opts,
		now:      time.Now,
	}
}

// Login records a pending authorization for id and returns the provider
// consent URL.
func (s *AuthService) Login(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", apperrors.MissingCorrelationID()
	}

	state := id
	if s.opts.StateMode != config.StateModeID {
		nonce, err := util.GenerateToken()
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to start login", err)
		}
		state = nonce
	}

	_, err := s.states.Create(ctx, model.CreateOAuthStateParams{
		State:         state,
		CorrelationID: id,
		ExpiresAt:     s.now().Add(s.opts.StateTTL),
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to start login", err)
	}

	log.Debug().Str("id", id).Str("state", util.MaskToken(state)).Msg("authorization started")
	audit.Log(ctx, audit.Event{Type: audit.EventLoginStart, CorrelationID: id})
	return s.provider.AuthCodeURL(state), nil
}

type CallbackParams struct {
	Code          string
	State         string
	ProviderError string
}

// Callback completes the flow and stores a new session, replacing any prior
// one for the same id. It returns the correlation id.
func (s *AuthService) Callback(ctx context.Context, params CallbackParams) (string, error) {
	if params.ProviderError != "" {
		if params.State != "" {
			if _, err := s.states.Consume(ctx, params.State); err != nil {
				log.Warn().Err(err).Msg("failed to discard oauth state")
			}
		}
		audit.Log(ctx, audit.Event{
			Type:    audit.EventAuthDenied,
			Details: map[string]interface{}{"reason": params.ProviderError},
		})
		return "", apperrors.ProviderDenied(params.ProviderError)
	}
	if params.Code == "" {
		return "", apperrors.MissingData("code")
	}
	if params.State == "" {
		return "", apperrors.MissingData("state")
	}

	id, err := s.resolveState(ctx, params.State)
	if err != nil {
		return "", err
	}

	token, err := s.provider.Exchange(ctx, params.Code)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("authorization code exchange failed")
		audit.Log(ctx, audit.Event{Type: audit.EventExchangeFailure, CorrelationID: id})
		return "", apperrors.ProviderError(provider.FormatError(err), err)
	}

	// Millisecond precision so every store round-trips the value used to
	// guard token updates.
	now := s.now().UTC().Truncate(time.Millisecond)
	session := &model.Session{
		ID:           id,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to store session", err)
	}

	s.playback.Forget(ctx, id)
	s.playback.Watch(id)

	audit.Log(ctx, audit.Event{Type: audit.EventAuthorized, CorrelationID: id})
	return id, nil
}

func (s *AuthService) resolveState(ctx context.Context, state string) (string, error) {
	found, err := s.states.Consume(ctx, state)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to verify state", err)
	}

	if s.opts.StateMode == config.StateModeID {
		return state, nil
	}
	if found == nil {
		log.Warn().Str("state", util.MaskToken(state)).Msg("unknown or expired oauth state")
		audit.Log(ctx, audit.Event{Type: audit.EventInvalidState})
		return "", apperrors.InvalidState()
	}
	return found.CorrelationID, nil
}

// Revoke deletes the session and cached snapshot for id and stops its
// background refresh. Revoking an unknown id succeeds.
func (s *AuthService) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.MissingCorrelationID()
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to delete session", err)
	}
	s.playback.Forget(ctx, id)

	audit.Log(ctx, audit.Event{Type: audit.EventRevoke, CorrelationID: id})
	return nil
}

type StatusResult struct {
	ID        string           `json:"id"`
	Status    model.AuthStatus `json:"status"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// Status reports where id is in the authorization flow.
func (s *AuthService) Status(ctx context.Context, id string) (*StatusResult, error) {
	if id == "" {
		return nil, apperrors.MissingCorrelationID()
	}

	result := &StatusResult{ID: id, Status: model.AuthStatusNoSession}

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Session store unavailable", err)
	}
	if session != nil {
		result.Status = model.AuthStatusAuthorized
		if !s.now().Before(session.ExpiresAt) {
			result.Status = model.AuthStatusExpired
		}
		expiresAt := session.ExpiresAt
		result.ExpiresAt = &expiresAt
		return result, nil
	}

	pending, err := s.states.HasPending(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "State store unavailable", err)
	}
	if pending {
		result.Status = model.AuthStatusPending
		return result, nil
	}

	if last := s.playback.Peek(ctx, id); last != nil && last.ErrorCode == string(apperrors.ErrCodeRefreshError) {
		result.Status = model.AuthStatusExpired
	}
	return result, nil
}
