// Package chat holds the client-side conversation state: the conversation
// index (latest message and unread counter per counterpart) and per
// conversation message threads. Both reconcile an initial REST snapshot with
// asynchronously arriving socket events and local user actions; either can
// resolve first and neither order may corrupt state.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/model"
)

// IndexBackend is the slice of the REST client the index needs.
type IndexBackend interface {
	LatestMessages(ctx context.Context) ([]model.ConversationEntry, error)
	DeleteMessages(ctx context.Context, counterpartID string) error
}

// ConversationIndex maintains one summary per counterpart. Streamed events
// update lastMessage last-write-wins by arrival (the per-counterpart channel
// is causally ordered); unread counters are optimistic and corrected by the
// next full seed.
type ConversationIndex struct {
	mu          sync.RWMutex
	localUserID string
	backend     IndexBackend

	// order lists counterpart ids most-recent-first. New counterparts go to
	// the front; updates to existing ones do not resort.
	order  []string
	byID   map[string]*model.ConversationSummary
	seeded bool
	closed bool
}

func NewConversationIndex(localUserID string, backend IndexBackend) *ConversationIndex {
	return &ConversationIndex{
		localUserID: localUserID,
		backend:     backend,
		byID:        make(map[string]*model.ConversationSummary),
	}
}

// Seed replaces the whole index from a REST snapshot. Entry order is kept
// (the backend returns most-recent-first).
func (x *ConversationIndex) Seed(entries []model.ConversationEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.order = x.order[:0]
	x.byID = make(map[string]*model.ConversationSummary, len(entries))
	for _, e := range entries {
		cp := e.Counterpart(x.localUserID)
		if _, ok := x.byID[cp.ID]; ok {
			// Backend snapshots carry one entry per counterpart; keep the
			// first if that ever breaks.
			continue
		}
		x.order = append(x.order, cp.ID)
		x.byID[cp.ID] = &model.ConversationSummary{
			Counterpart: cp,
			LastMessage: e.Message(),
			UnreadCount: e.UnreadCount,
		}
	}
	x.seeded = true
}

// Refresh fetches the snapshot and seeds. Network and auth failures are
// logged, not returned: prior state stays intact (stale but consistent).
func (x *ConversationIndex) Refresh(ctx context.Context) {
	defer logger.DeferLogDuration("index.Refresh", time.Now())()
	entries, err := x.backend.LatestMessages(ctx)
	if err != nil {
		logger.Errorf("index refresh: %v", err)
		return
	}
	x.Seed(entries)
}

// Restore pre-populates the index from a stored snapshot, but only before
// the first seed; authoritative data always wins over the cache.
func (x *ConversationIndex) Restore(summaries []model.ConversationSummary) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed || x.seeded {
		return
	}
	for _, s := range summaries {
		if _, ok := x.byID[s.Counterpart.ID]; ok {
			continue
		}
		s := s
		x.order = append(x.order, s.Counterpart.ID)
		x.byID[s.Counterpart.ID] = &s
	}
}

// ApplyIncoming folds one streamed message event into the index, whether the
// local user is sender or receiver. Returns the counterpart id and whether
// the counterpart's profile is already known (callers may fetch and fill it
// via SetCounterpartProfile when it is not).
func (x *ConversationIndex) ApplyIncoming(msg model.Message) (counterpartID string, profileKnown bool) {
	counterpartID = msg.CounterpartID(x.localUserID)
	inboundUnread := msg.ReceiverID == x.localUserID && !msg.IsRead

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return counterpartID, true
	}

	if s, ok := x.byID[counterpartID]; ok {
		s.LastMessage = msg
		if inboundUnread {
			s.UnreadCount++
		}
		return counterpartID, s.Counterpart.Username != ""
	}

	var unread uint
	if inboundUnread {
		unread = 1
	}
	x.order = append([]string{counterpartID}, x.order...)
	x.byID[counterpartID] = &model.ConversationSummary{
		// Socket payloads carry plain ids; the profile arrives later via
		// SetCounterpartProfile or the next seed.
		Counterpart: model.Identity{ID: counterpartID},
		LastMessage: msg,
		UnreadCount: unread,
	}
	return counterpartID, false
}

// SetCounterpartProfile fills in the identity of a counterpart that was
// first observed through a streamed event.
func (x *ConversationIndex) SetCounterpartProfile(user model.Identity) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	if s, ok := x.byID[user.ID]; ok {
		s.Counterpart = user
	}
}

// MarkConversationRead zeroes the unread counter locally. It does not wait
// for the backend and does not touch per-message IsRead flags held by an
// open thread; those reconcile on the thread's own read pass or next seed.
func (x *ConversationIndex) MarkConversationRead(counterpartID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	if s, ok := x.byID[counterpartID]; ok {
		s.UnreadCount = 0
	}
}

// DeleteConversation asks the backend to erase the conversation and removes
// the local summary only after the backend confirms. A failed delete leaves
// local state untouched.
func (x *ConversationIndex) DeleteConversation(ctx context.Context, counterpartID string) error {
	if err := x.backend.DeleteMessages(ctx, counterpartID); err != nil {
		return fmt.Errorf("index.DeleteConversation: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	if _, ok := x.byID[counterpartID]; !ok {
		return nil
	}
	delete(x.byID, counterpartID)
	for i, id := range x.order {
		if id == counterpartID {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
	return nil
}

// Conversations returns the summaries most-recent-first.
func (x *ConversationIndex) Conversations() []model.ConversationSummary {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]model.ConversationSummary, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, *x.byID[id])
	}
	return out
}

// Summary returns the summary for one counterpart.
func (x *ConversationIndex) Summary(counterpartID string) (model.ConversationSummary, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s, ok := x.byID[counterpartID]
	if !ok {
		return model.ConversationSummary{}, false
	}
	return *s, true
}

// UnreadCount returns the local unread counter for one counterpart.
func (x *ConversationIndex) UnreadCount(counterpartID string) uint {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if s, ok := x.byID[counterpartID]; ok {
		return s.UnreadCount
	}
	return 0
}

// Close detaches the index: anything that resolves afterwards (a suspended
// refresh, a late event) becomes a no-op instead of writing into torn-down
// state.
func (x *ConversationIndex) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
}
