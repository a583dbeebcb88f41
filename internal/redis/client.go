package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

const SessionKeyPrefix = "session:"

func SessionKey(id string) string {
	return SessionKeyPrefix + id
}

func TrackKey(id string) string {
	return fmt.Sprintf("track:%s", id)
}

func OAuthStateKey(state string) string {
	return fmt.Sprintf("oauth_state:%s", state)
}

func OAuthPendingKey(id string) string {
	return fmt.Sprintf("oauth_pending:%s", id)
}

func PlaybackChannel(id string) string {
	return fmt.Sprintf("playback:%s", id)
}
