package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
	redisclient "github.com/openclaw/nowplaying-relay-go/internal/redis"
)

const sessionScanCount = 200

// updateTokensScript replaces the session blob only while the stored grant
// still has the expected created_at.
var updateTokensScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
    return 0
end

local rec = cjson.decode(raw)
if rec.created_at ~= tonumber(ARGV[1]) then
    return 0
end

local ttl = tonumber(ARGV[3])
if ttl > 0 then
    redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
    redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
end
return 1
`)

// redisSession is the stored form. Times are unix milliseconds so the
// update script can compare created_at numerically.
type redisSession struct {
	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

type redisSessionRepo struct {
	client *redis.Client
	cipher tokenCipher
	ttl    time.Duration
}

// NewRedisSessionRepository stores sessions under session:{id}. A positive ttl
// is applied on every write so idle sessions expire on their own.
func NewRedisSessionRepository(client *redis.Client, cipher tokenCipher, ttl time.Duration) SessionRepository {
	return &redisSessionRepo{client: client, cipher: cipherOrPlain(cipher), ttl: ttl}
}

func (r *redisSessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.client.Get(ctx, redisclient.SessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var rec redisSession
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	accessToken, err := r.cipher.Decrypt(rec.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refreshToken, err := r.cipher.Decrypt(rec.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	return &model.Session{
		ID:           rec.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    fromMillis(rec.ExpiresAt),
		CreatedAt:    fromMillis(rec.CreatedAt),
		UpdatedAt:    fromMillis(rec.UpdatedAt),
	}, nil
}

func (r *redisSessionRepo) Put(ctx context.Context, session *model.Session) error {
	payload, err := r.encode(session)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, redisclient.SessionKey(session.ID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (r *redisSessionRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisclient.SessionKey(id)).Err()
}

func (r *redisSessionRepo) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := r.client.Scan(ctx, 0, redisclient.SessionKeyPrefix+"*", sessionScanCount).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), redisclient.SessionKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return ids, nil
}

func (r *redisSessionRepo) UpdateTokens(ctx context.Context, params model.UpdateTokensParams) (bool, error) {
	payload, err := r.encode(&model.Session{
		ID:           params.ID,
		AccessToken:  params.AccessToken,
		RefreshToken: params.RefreshToken,
		ExpiresAt:    params.ExpiresAt,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.UpdatedAt,
	})
	if err != nil {
		return false, err
	}

	updated, err := updateTokensScript.Run(ctx, r.client,
		[]string{redisclient.SessionKey(params.ID)},
		toMillis(params.CreatedAt), payload, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("update session tokens: %w", err)
	}
	return updated == 1, nil
}

func (r *redisSessionRepo) encode(session *model.Session) ([]byte, error) {
	accessToken, err := r.cipher.Encrypt(session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refreshToken, err := r.cipher.Encrypt(session.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	return json.Marshal(redisSession{
		ID:           session.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    toMillis(session.ExpiresAt),
		CreatedAt:    toMillis(session.CreatedAt),
		UpdatedAt:    toMillis(session.UpdatedAt),
	})
}
