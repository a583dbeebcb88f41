package model

import "time"

// Session is one tenant's authorization grant, keyed by correlation id.
type Session struct {
	ID           string    `db:"id" json:"id"`
	AccessToken  string    `db:"access_token" json:"-"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// NeedsRefresh reports whether the access token is inside the skew window.
func (s *Session) NeedsRefresh(now time.Time, skew time.Duration) bool {
	return !now.Before(s.ExpiresAt.Add(-skew))
}

// UpdateTokensParams carries a refreshed token set. CreatedAt identifies the
// grant being refreshed; the write is skipped when the stored grant differs.
type UpdateTokensParams struct {
	ID           string
	CreatedAt    time.Time
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// AuthStatus is the position of a correlation id in the authorization flow.
type AuthStatus string

const (
	AuthStatusNoSession  AuthStatus = "no_session"
	AuthStatusPending    AuthStatus = "pending_authorization"
	AuthStatusAuthorized AuthStatus = "authorized"
	AuthStatusExpired    AuthStatus = "expired"
)
