package model

import "time"

// OAuthState binds the state value sent to the provider to the correlation id
// that started the login.
type OAuthState struct {
	State         string    `json:"state"`
	CorrelationID string    `json:"correlationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

type CreateOAuthStateParams struct {
	State         string
	CorrelationID string
	ExpiresAt     time.Time
}
