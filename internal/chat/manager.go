package chat

import (
	"context"
	"sync"
	"time"

	"github.com/sierrachat/client/internal/model"
)

// ThreadManager tracks the open threads of one session and routes streamed
// events to whichever thread they belong to. The conversation index always
// sees every event; a thread only sees events for its counterpart.
type ThreadManager struct {
	mu          sync.Mutex
	localUserID string
	backend     ThreadBackend
	loc         *time.Location
	threads     map[string]*MessageThread
	closed      bool
}

func NewThreadManager(localUserID string, backend ThreadBackend, loc *time.Location) *ThreadManager {
	return &ThreadManager{
		localUserID: localUserID,
		backend:     backend,
		loc:         loc,
		threads:     make(map[string]*MessageThread),
	}
}

// Open returns the thread for counterpartID, creating and seeding it over
// REST on first open. The seed failure mode is the usual one: logged, empty
// thread, live events still apply.
func (m *ThreadManager) Open(ctx context.Context, counterpartID string) *MessageThread {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		// A detached manager hands out a detached thread.
		t := NewMessageThread(m.localUserID, counterpartID, m.backend, m.loc)
		t.Close()
		return t
	}
	if t, ok := m.threads[counterpartID]; ok {
		m.mu.Unlock()
		return t
	}
	t := NewMessageThread(m.localUserID, counterpartID, m.backend, m.loc)
	m.threads[counterpartID] = t
	m.mu.Unlock()

	t.Refresh(ctx)
	return t
}

// Get returns the already-open thread for counterpartID, if any.
func (m *ThreadManager) Get(counterpartID string) (*MessageThread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[counterpartID]
	return t, ok
}

// CloseThread marks the thread read (the on-blur pass) and detaches it.
func (m *ThreadManager) CloseThread(ctx context.Context, counterpartID string) {
	m.mu.Lock()
	t, ok := m.threads[counterpartID]
	if ok {
		delete(m.threads, counterpartID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	t.MarkAllReceivedRead(ctx)
	t.Close()
}

// Drop removes the thread without the read pass (used after a conversation
// delete).
func (m *ThreadManager) Drop(counterpartID string) {
	m.mu.Lock()
	t, ok := m.threads[counterpartID]
	if ok {
		delete(m.threads, counterpartID)
	}
	m.mu.Unlock()
	if ok {
		t.Close()
	}
}

// HandleEvent routes one streamed message event to its thread, if open.
func (m *ThreadManager) HandleEvent(msg model.Message, clientToken string) {
	counterpartID := msg.CounterpartID(m.localUserID)
	m.mu.Lock()
	t, ok := m.threads[counterpartID]
	m.mu.Unlock()
	if ok {
		t.ApplyEvent(msg, clientToken)
	}
}

// Close detaches the manager and every open thread.
func (m *ThreadManager) Close() {
	m.mu.Lock()
	m.closed = true
	threads := m.threads
	m.threads = make(map[string]*MessageThread)
	m.mu.Unlock()
	for _, t := range threads {
		t.Close()
	}
}
