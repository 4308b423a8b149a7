// Package session owns the authenticated identity and bearer token.
// Every other component reads the session; only login/logout write it.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/storage"
)

// Store holds the current session. The zero value is unusable; construct
// with New. Absence of a token is the unauthenticated state, not an error.
type Store struct {
	mu     sync.RWMutex
	user   *model.Identity
	token  string
	tokens storage.Store
}

func New(tokens storage.Store) *Store {
	return &Store{tokens: tokens}
}

// RestoreToken loads the persisted bearer token, if any, into the session.
// Returns the token ("" when unauthenticated).
func (s *Store) RestoreToken(ctx context.Context) (string, error) {
	token, err := s.tokens.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("session.RestoreToken: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return token, nil
}

// Begin stores the authenticated identity and token and persists the token.
func (s *Store) Begin(ctx context.Context, user model.Identity, token string) error {
	if err := s.tokens.SetToken(ctx, token); err != nil {
		return fmt.Errorf("session.Begin: %w", err)
	}
	s.mu.Lock()
	u := user
	s.user = &u
	s.token = token
	s.mu.Unlock()
	return nil
}

// Clear wipes the session on logout. The persisted token is removed first;
// in-memory state is cleared even if that removal fails.
func (s *Store) Clear(ctx context.Context) error {
	err := s.tokens.DeleteToken(ctx)
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("session.Clear: %w", err)
	}
	return nil
}

// User returns a copy of the authenticated identity, if any.
func (s *Store) User() (model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return model.Identity{}, false
	}
	return *s.user, true
}

// UserID returns the authenticated user's id, or "" when unauthenticated.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Authenticated reports whether both identity and token are present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.token != ""
}
