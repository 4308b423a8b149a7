package storage

import (
	"context"

	"github.com/sierrachat/client/internal/model"
)

// Store persists the bearer token and, optionally, the last conversation
// snapshot so a restarted daemon can render before the first REST seed.
// Implementations: redis.Client, file.Client, memory.Client.
//
// An empty token from GetToken is the unauthenticated state, not an error.
type Store interface {
	SetToken(ctx context.Context, token string) error
	GetToken(ctx context.Context) (string, error)
	DeleteToken(ctx context.Context) error
	SaveSnapshot(ctx context.Context, userID string, summaries []model.ConversationSummary) error
	LoadSnapshot(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	Close() error
}
