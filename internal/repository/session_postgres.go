package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
)

type postgresSessionRepo struct {
	db     sqlxDB
	cipher tokenCipher
}

func NewPostgresSessionRepository(db *sqlx.DB, cipher tokenCipher) SessionRepository {
	return &postgresSessionRepo{db: db, cipher: cipherOrPlain(cipher)}
}

func (r *postgresSessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM provider_sessions WHERE id = $1
	`, id)
	found, err := HandleNotFound(&session, err)
	if err != nil || found == nil {
		return nil, err
	}

	if found.AccessToken, err = r.cipher.Decrypt(found.AccessToken); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if found.RefreshToken, err = r.cipher.Decrypt(found.RefreshToken); err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	return found, nil
}

func (r *postgresSessionRepo) Put(ctx context.Context, session *model.Session) error {
	accessToken, refreshToken, err := r.seal(session.AccessToken, session.RefreshToken)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO provider_sessions (id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, session.ID, accessToken, refreshToken, session.ExpiresAt, session.CreatedAt, updatedAtOrNow(session.UpdatedAt))
	return err
}

func (r *postgresSessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM provider_sessions WHERE id = $1`, id)
	return err
}

func (r *postgresSessionRepo) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM provider_sessions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *postgresSessionRepo) UpdateTokens(ctx context.Context, params model.UpdateTokensParams) (bool, error) {
	accessToken, refreshToken, err := r.seal(params.AccessToken, params.RefreshToken)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE provider_sessions SET
			access_token = $3,
			refresh_token = $4,
			expires_at = $5,
			updated_at = $6
		WHERE id = $1 AND created_at = $2
	`, params.ID, params.CreatedAt, accessToken, refreshToken, params.ExpiresAt, updatedAtOrNow(params.UpdatedAt))
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *postgresSessionRepo) seal(accessToken, refreshToken string) (string, string, error) {
	sealedAccess, err := r.cipher.Encrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("encrypt access token: %w", err)
	}
	sealedRefresh, err := r.cipher.Encrypt(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("encrypt refresh token: %w", err)
	}
	return sealedAccess, sealedRefresh, nil
}

func updatedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
