package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/model"
)

// ThreadBackend is the slice of the REST client a thread needs.
type ThreadBackend interface {
	Messages(ctx context.Context, counterpartID string) ([]model.Message, error)
	SendMessage(ctx context.Context, draft model.Draft, clientToken string) (model.Message, error)
	MarkRead(ctx context.Context, counterpartID string) error
}

// MessageThread is the ordered message log for one counterpart pair, unique
// by id, ascending by sentAt with ties broken by id so the order is
// deterministic for equal timestamps. Streamed duplicates are dropped; a
// send in flight is visible immediately through an optimistic entry that the
// authoritative message replaces, matched by correlation token.
type MessageThread struct {
	mu            sync.RWMutex
	localUserID   string
	counterpartID string
	backend       ThreadBackend
	loc           *time.Location

	msgs []model.Message
	ids  map[string]struct{}
	// pending maps correlation token -> temp message id for sends awaiting
	// their acknowledgement.
	pending map[string]string
	closed  bool
}

// NewMessageThread creates an empty thread. loc is the fixed display
// timezone used for day separators; nil means time.Local.
func NewMessageThread(localUserID, counterpartID string, backend ThreadBackend, loc *time.Location) *MessageThread {
	if loc == nil {
		loc = time.Local
	}
	return &MessageThread{
		localUserID:   localUserID,
		counterpartID: counterpartID,
		backend:       backend,
		loc:           loc,
		ids:           make(map[string]struct{}),
		pending:       make(map[string]string),
	}
}

// CounterpartID returns the other party of this thread.
func (t *MessageThread) CounterpartID() string { return t.counterpartID }

// Seed replaces the thread content with REST-fetched history.
func (t *MessageThread) Seed(history []model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.msgs = make([]model.Message, len(history))
	copy(t.msgs, history)
	sort.SliceStable(t.msgs, func(i, j int) bool { return messageLess(t.msgs[i], t.msgs[j]) })
	t.ids = make(map[string]struct{}, len(t.msgs))
	for _, m := range t.msgs {
		t.ids[m.ID] = struct{}{}
	}
	t.pending = make(map[string]string)
}

// Refresh fetches the history and seeds. Failures are logged, not returned;
// prior content stays.
func (t *MessageThread) Refresh(ctx context.Context) {
	defer logger.DeferLogDuration("thread.Refresh", time.Now())()
	history, err := t.backend.Messages(ctx, t.counterpartID)
	if err != nil {
		logger.Errorf("thread refresh %s: %v", t.counterpartID, err)
		return
	}
	t.Seed(history)
}

// ApplyEvent folds one streamed message event into the thread. Events with a
// correlation token resolve the matching optimistic entry; everything else
// appends with dedupe by id. Events for other counterparts are ignored.
func (t *MessageThread) ApplyEvent(msg model.Message, clientToken string) {
	if msg.CounterpartID(t.localUserID) != t.counterpartID {
		return
	}
	if clientToken != "" {
		t.ResolveOptimistic(clientToken, msg)
		return
	}
	t.AppendIncoming(msg)
}

// AppendIncoming appends a streamed message. Idempotent: a duplicate id is
// dropped, not merged.
func (t *MessageThread) AppendIncoming(msg model.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	return t.insert(msg)
}

// insert adds msg preserving order. Caller holds the lock.
func (t *MessageThread) insert(msg model.Message) bool {
	if _, ok := t.ids[msg.ID]; ok {
		return false
	}
	pos := sort.Search(len(t.msgs), func(i int) bool { return messageLess(msg, t.msgs[i]) })
	t.msgs = append(t.msgs, model.Message{})
	copy(t.msgs[pos+1:], t.msgs[pos:])
	t.msgs[pos] = msg
	t.ids[msg.ID] = struct{}{}
	return true
}

// AppendOptimistic inserts a locally synthesized message for a send in
// flight and returns the correlation token that matches the eventual
// acknowledgement.
func (t *MessageThread) AppendOptimistic(draft model.Draft) (clientToken string) {
	clientToken = uuid.New().String()
	temp := model.Message{
		ID:         "local-" + clientToken,
		SenderID:   t.localUserID,
		ReceiverID: t.counterpartID,
		Text:       draft.Text,
		MediaType:  draft.MediaType,
		SentAt:     time.Now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return clientToken
	}
	t.insert(temp)
	t.pending[clientToken] = temp.ID
	return clientToken
}

// ResolveOptimistic replaces the optimistic entry for clientToken with the
// authoritative message. An unknown token (thread reseeded, or the ack
// arrived twice) degrades to a plain dedupe append, so one user action never
// yields two visible entries.
func (t *MessageThread) ResolveOptimistic(clientToken string, authoritative model.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if tempID, ok := t.pending[clientToken]; ok {
		delete(t.pending, clientToken)
		t.remove(tempID)
	}
	t.insert(authoritative)
}

// DiscardOptimistic rolls the optimistic entry back after a failed send, so
// a failure leaves the thread exactly as before the attempt.
func (t *MessageThread) DiscardOptimistic(clientToken string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if tempID, ok := t.pending[clientToken]; ok {
		delete(t.pending, clientToken)
		t.remove(tempID)
	}
}

// remove deletes the message with id, if present. Caller holds the lock.
func (t *MessageThread) remove(id string) {
	if _, ok := t.ids[id]; !ok {
		return
	}
	delete(t.ids, id)
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

// Send submits the draft with an optimistic local entry. On backend failure
// the optimistic entry is rolled back and the error returned. On success the
// authoritative message replaces the optimistic one here; the socket echo of
// the same send resolves to a no-op through the same token and id dedupe.
func (t *MessageThread) Send(ctx context.Context, draft model.Draft) (model.Message, error) {
	clientToken := t.AppendOptimistic(draft)
	msg, err := t.backend.SendMessage(ctx, draft, clientToken)
	if err != nil {
		t.DiscardOptimistic(clientToken)
		return model.Message{}, fmt.Errorf("thread.Send: %w", err)
	}
	t.ResolveOptimistic(clientToken, msg)
	return msg, nil
}

// MarkAllReceivedRead flips IsRead on every message addressed to the local
// user and issues a single mark-read call to the backend. Called when the
// thread loses focus, not per message; a backend failure is logged and the
// local flips stand (the next seed reconciles receipts).
func (t *MessageThread) MarkAllReceivedRead(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	for i := range t.msgs {
		if t.msgs[i].ReceiverID == t.localUserID {
			t.msgs[i].IsRead = true
		}
	}
	t.mu.Unlock()

	if err := t.backend.MarkRead(ctx, t.counterpartID); err != nil {
		logger.Errorf("thread mark read %s: %v", t.counterpartID, err)
	}
}

// Messages returns the ascending ordered view.
func (t *MessageThread) Messages() []model.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages currently in the thread.
func (t *MessageThread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}

// ComputeDaySeparators reports, per message in the ordered view, whether it
// opens a new calendar day relative to the previous message (never relative
// to wall-clock today). Days are evaluated in the thread's display timezone.
func (t *MessageThread) ComputeDaySeparators() []bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]bool, len(t.msgs))
	for i := range t.msgs {
		if i == 0 {
			out[i] = true
			continue
		}
		y1, m1, d1 := t.msgs[i-1].SentAt.In(t.loc).Date()
		y2, m2, d2 := t.msgs[i].SentAt.In(t.loc).Date()
		out[i] = y1 != y2 || m1 != m2 || d1 != d2
	}
	return out
}

// Close detaches the thread; late fetches and events become no-ops.
func (t *MessageThread) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// messageLess orders by sentAt ascending, ties broken by id so equal
// timestamps keep a deterministic order.
func messageLess(a, b model.Message) bool {
	if !a.SentAt.Equal(b.SentAt) {
		return a.SentAt.Before(b.SentAt)
	}
	return a.ID < b.ID
}
