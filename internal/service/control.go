package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/nowplaying-relay-go/internal/errors"
	"github.com/openclaw/nowplaying-relay-go/internal/provider"
)

// ControlService forwards transport commands. It never touches the playback
// cache; the next refresh picks up the change.
type ControlService struct {
	tokens   *TokenRefresher
	provider provider.Provider
	enabled  bool
}

func NewControlService(tokens *TokenRefresher, prov provider.Provider, enabled bool) *ControlService {
	return &ControlService{
		tokens:   tokens,
		provider: prov,
		enabled:  enabled,
	}
}

// Command sends one of play, pause, next or previous for id.
func (s *ControlService) Command(ctx context.Context, id, action string) error {
	if id == "" {
		return apperrors.MissingCorrelationID()
	}

	parsed, ok := provider.ParseAction(action)
	if !ok {
		return apperrors.InvalidAction(action)
	}
	if !s.enabled {
		return apperrors.ControlFailed("Playback controls are disabled", nil)
	}

	session, err := s.tokens.ValidSession(ctx, id)
	if err != nil {
		return err
	}

	return s.send(ctx, id, session.AccessToken, parsed)
}

// Toggle pauses when the provider reports active playback and plays
// otherwise. It returns the action that was sent.
func (s *ControlService) Toggle(ctx context.Context, id string) (provider.Action, error) {
	if id == "" {
		return "", apperrors.MissingCorrelationID()
	}
	if !s.enabled {
		return "", apperrors.ControlFailed("Playback controls are disabled", nil)
	}

	session, err := s.tokens.ValidSession(ctx, id)
	if err != nil {
		return "", err
	}

	playback, err := s.provider.CurrentPlayback(ctx, session.AccessToken)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("playback lookup for toggle failed")
		return "", apperrors.ControlFailed(provider.FormatError(err), err)
	}

	action := provider.ActionPlay
	if playback != nil && playback.IsPlaying {
		action = provider.ActionPause
	}

	if err := s.send(ctx, id, session.AccessToken, action); err != nil {
		return "", err
	}
	return action, nil
}

func (s *ControlService) send(ctx context.Context, id, accessToken string, action provider.Action) error {
	if err := s.provider.Control(ctx, accessToken, action); err != nil {
		log.Warn().Err(err).Str("id", id).Str("action", string(action)).Msg("playback control failed")
		return apperrors.ControlFailed(provider.FormatError(err), err)
	}

	log.Debug().Str("id", id).Str("action", string(action)).Msg("playback control sent")
	return nil
}
