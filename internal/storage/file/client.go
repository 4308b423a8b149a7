package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/storage/memory"
)

// Client keeps the bearer token in a plain file (0600) so it survives a
// restart, and snapshots in memory. This is the default on devices without
// Redis; secure-enclave storage stays behind the same Store interface.
type Client struct {
	path string
	mem  *memory.Client
}

func New(path string) *Client {
	return &Client{path: path, mem: memory.New()}
}

func (c *Client) Close() error { return c.mem.Close() }

func (c *Client) SetToken(ctx context.Context, token string) error {
	if err := os.WriteFile(c.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("tokenfile write: %w", err)
	}
	return nil
}

func (c *Client) GetToken(ctx context.Context) (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("tokenfile read: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *Client) DeleteToken(ctx context.Context) error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile remove: %w", err)
	}
	return nil
}

func (c *Client) SaveSnapshot(ctx context.Context, userID string, summaries []model.ConversationSummary) error {
	return c.mem.SaveSnapshot(ctx, userID, summaries)
}

func (c *Client) LoadSnapshot(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	return c.mem.LoadSnapshot(ctx, userID)
}
