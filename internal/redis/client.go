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

// MailboxKey is the per-session, per-recipient signaling queue.
func MailboxKey(sessionID string, recipientID int64) string {
	return fmt.Sprintf("signals:%s:%d", sessionID, recipientID)
}

// JoinedKey is the set of user IDs that have joined a video session.
func JoinedKey(sessionID string) string {
	return fmt.Sprintf("joined:%s", sessionID)
}

// RateLimitKey is the per-user sliding window counter for signal drains.
func RateLimitKey(userID int64) string {
	return fmt.Sprintf("ratelimit:signals:%d", userID)
}
