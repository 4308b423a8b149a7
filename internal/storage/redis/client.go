package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sierrachat/client/internal/model"
)

// Snapshots are a render-before-seed convenience, not authoritative state;
// a short TTL keeps stale conversations from lingering after logout.
const (
	tokenKey    = "sierra:token"
	snapshotTTL = 7 * 24 * time.Hour
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetToken(ctx context.Context, token string) error {
	return c.cli.Set(ctx, tokenKey, token, 0).Err()
}

func (c *Client) GetToken(ctx context.Context) (string, error) {
	val, err := c.cli.Get(ctx, tokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return val, nil
}

func (c *Client) DeleteToken(ctx context.Context) error {
	return c.cli.Del(ctx, tokenKey).Err()
}

func snapshotKey(userID string) string {
	return "sierra:snapshot:" + userID
}

func (c *Client) SaveSnapshot(ctx context.Context, userID string, summaries []model.ConversationSummary) error {
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("redis marshal snapshot: %w", err)
	}
	return c.cli.Set(ctx, snapshotKey(userID), data, snapshotTTL).Err()
}

func (c *Client) LoadSnapshot(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	data, err := c.cli.Get(ctx, snapshotKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	var out []model.ConversationSummary
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("redis unmarshal snapshot: %w", err)
	}
	return out, nil
}
