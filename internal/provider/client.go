package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	ScopeReadPlaybackState    = "user-read-playback-state"
	ScopeReadCurrentlyPlaying = "user-read-currently-playing"
	ScopeModifyPlaybackState  = "user-modify-playback-state"
	defaultTokenLifetime      = time.Hour
	maxResponseBytes          = 1 << 20
)

// Provider is the music service the relay talks to.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	// CurrentPlayback returns (nil, nil) when nothing is playing.
	CurrentPlayback(ctx context.Context, accessToken string) (*Playback, error)
	Control(ctx context.Context, accessToken string, action Action) error
}

type Config struct {
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	AuthURL         string
	TokenURL        string
	APIURL          string
	ControlsEnabled bool
	Timeout         time.Duration
	RatePerSecond   float64
	RateBurst       int
}

// Client talks to the Spotify accounts service and Web API. Every call is
// bounded by the configured timeout and waits on one limiter shared by all
// tenants.
type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	scopes := []string{ScopeReadPlaybackState, ScopeReadCurrentlyPlaying}
	if cfg.ControlsEnabled {
		scopes = append(scopes, ScopeModifyPlaybackState)
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	token, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return c.normalize(token, ""), nil
}

// Refresh mints a new access token. The previous refresh token is kept when
// the provider does not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	source := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return c.normalize(token, refreshToken), nil
}

func (c *Client) CurrentPlayback(ctx context.Context, accessToken string) (*Playback, error) {
	body, err := c.do(ctx, http.MethodGet, "/me/player?additional_types=episode", accessToken)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var playback Playback
	if err := json.Unmarshal(body, &playback); err != nil {
		return nil, fmt.Errorf("decode playback: %w", err)
	}
	return &playback, nil
}

var controlEndpoints = map[Action]struct {
	method string
	path   string
}{
	ActionPlay:     {http.MethodPut, "/me/player/play"},
	ActionPause:    {http.MethodPut, "/me/player/pause"},
	ActionNext:     {http.MethodPost, "/me/player/next"},
	ActionPrevious: {http.MethodPost, "/me/player/previous"},
}

func (c *Client) Control(ctx context.Context, accessToken string, action Action) error {
	endpoint, ok := controlEndpoints[action]
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}
	_, err := c.do(ctx, endpoint.method, endpoint.path, accessToken)
	return err
}

func (c *Client) do(ctx context.Context, method, path, accessToken string) ([]byte, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if method != http.MethodGet {
		req.ContentLength = 0
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, body)
		log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("reason", apiErr.Reason).
			Msg("spotify api error")
		return nil, apiErr
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	return body, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		if parsed.Error.Status == 0 {
			parsed.Error.Status = status
		}
		return parsed.Error
	}
	return &APIError{Status: status, Message: http.StatusText(status)}
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) normalize(token *oauth2.Token, previousRefresh string) *oauth2.Token {
	if token.RefreshToken == "" {
		token.RefreshToken = previousRefresh
	}
	if token.Expiry.IsZero() {
		token.Expiry = c.now().Add(defaultTokenLifetime)
	}
	return token
}
