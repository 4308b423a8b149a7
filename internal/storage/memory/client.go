package memory

import (
	"context"
	"sync"

	"github.com/sierrachat/client/internal/model"
)

// Client keeps token and snapshots in process memory. State does not survive
// a restart; used when no Redis URL and no token path are configured.
type Client struct {
	mu        sync.RWMutex
	token     string
	snapshots map[string][]model.ConversationSummary
}

func New() *Client {
	return &Client{snapshots: make(map[string][]model.ConversationSummary)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetToken(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

func (c *Client) GetToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

func (c *Client) DeleteToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return nil
}

func (c *Client) SaveSnapshot(ctx context.Context, userID string, summaries []model.ConversationSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]model.ConversationSummary, len(summaries))
	copy(cp, summaries)
	c.snapshots[userID] = cp
	return nil
}

func (c *Client) LoadSnapshot(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.snapshots[userID]
	if !ok {
		return nil, nil
	}
	cp := make([]model.ConversationSummary, len(snap))
	copy(cp, snap)
	return cp, nil
}
