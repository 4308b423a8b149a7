package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sierrachat/client/internal/model"
)

type stubThreadBackend struct {
	history    []model.Message
	historyErr error

	sendErr   error
	sendCalls int
	lastToken string

	markReadCalls int
	markReadErr   error
}

func (s *stubThreadBackend) Messages(ctx context.Context, counterpartID string) ([]model.Message, error) {
	return s.history, s.historyErr
}

func (s *stubThreadBackend) SendMessage(ctx context.Context, draft model.Draft, clientToken string) (model.Message, error) {
	s.sendCalls++
	s.lastToken = clientToken
	if s.sendErr != nil {
		return model.Message{}, s.sendErr
	}
	return model.Message{
		ID:         "srv-" + clientToken[:8],
		SenderID:   localUser,
		ReceiverID: draft.ReceiverID,
		Text:       draft.Text,
		MediaType:  draft.MediaType,
		SentAt:     time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubThreadBackend) MarkRead(ctx context.Context, counterpartID string) error {
	s.markReadCalls++
	return s.markReadErr
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMessageThread_SeedSortsAscending(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	th.Seed([]model.Message{
		msg("m3", "alice", localUser, base.Add(2*time.Minute), false),
		msg("m1", localUser, "alice", base, true),
		msg("m2", "alice", localUser, base.Add(time.Minute), false),
	})

	if diff := cmp.Diff([]string{"m1", "m2", "m3"}, ids(th.Messages())); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageThread_OutOfOrderInsert(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	th.Seed([]model.Message{
		msg("m1", "alice", localUser, base, false),
		msg("m3", "alice", localUser, base.Add(5*time.Minute), false),
	})

	// m2 arrives late over the socket but carries an earlier timestamp.
	th.AppendIncoming(msg("m2", "alice", localUser, base.Add(2*time.Minute), false))

	if diff := cmp.Diff([]string{"m1", "m2", "m3"}, ids(th.Messages())); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageThread_AppendIncomingIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)

	m := msg("m1", "alice", localUser, base, false)
	if !th.AppendIncoming(m) {
		t.Fatal("first append rejected")
	}
	if th.AppendIncoming(m) {
		t.Error("duplicate append accepted")
	}
	if th.Len() != 1 {
		t.Errorf("len = %d, want 1", th.Len())
	}
}

func TestMessageThread_EqualTimestampsDeterministic(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	a := msg("a", "alice", localUser, at, false)
	b := msg("b", "alice", localUser, at, false)

	first := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	first.AppendIncoming(a)
	first.AppendIncoming(b)

	second := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	second.AppendIncoming(b)
	second.AppendIncoming(a)

	if diff := cmp.Diff(ids(first.Messages()), ids(second.Messages())); diff != "" {
		t.Errorf("insertion order leaked into view (-first +second):\n%s", diff)
	}
}

func TestMessageThread_ApplyEventIgnoresOtherCounterpart(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	th.ApplyEvent(msg("m1", "bob", localUser, base, false), "")
	if th.Len() != 0 {
		t.Errorf("event for another counterpart was applied: %v", ids(th.Messages()))
	}
}

func TestMessageThread_SendSuccess(t *testing.T) {
	backend := &stubThreadBackend{}
	th := NewMessageThread(localUser, "alice", backend, time.UTC)

	sent, err := th.Send(context.Background(), model.Draft{ReceiverID: "alice", Text: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if th.Len() != 1 {
		t.Fatalf("len = %d, want 1 (optimistic entry not replaced)", th.Len())
	}
	got := th.Messages()[0]
	if got.ID != sent.ID || strings.HasPrefix(got.ID, "local-") {
		t.Errorf("thread holds %q, want authoritative %q", got.ID, sent.ID)
	}

	// The socket echoes the same send with its correlation token; the echo
	// must not create a second entry.
	th.ApplyEvent(sent, backend.lastToken)
	if th.Len() != 1 {
		t.Errorf("echo duplicated the entry: len = %d", th.Len())
	}
}

func TestMessageThread_SendFailureRollsBack(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := &stubThreadBackend{sendErr: errors.New("upload failed")}
	th := NewMessageThread(localUser, "alice", backend, time.UTC)
	th.Seed([]model.Message{msg("m1", "alice", localUser, base, false)})

	if _, err := th.Send(context.Background(), model.Draft{ReceiverID: "alice", Text: "hi"}); err == nil {
		t.Fatal("expected error from failed send")
	}
	if diff := cmp.Diff([]string{"m1"}, ids(th.Messages())); diff != "" {
		t.Errorf("failed send left residue (-want +got):\n%s", diff)
	}
}

func TestMessageThread_EchoBeforeRESTResponse(t *testing.T) {
	// The acknowledgement can arrive over the socket before the REST call
	// returns. Resolving twice with the same token and message must still
	// leave a single entry.
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	token := th.AppendOptimistic(model.Draft{ReceiverID: "alice", Text: "hi"})
	authoritative := msg("srv-1", localUser, "alice", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), false)

	th.ApplyEvent(authoritative, token)
	th.ResolveOptimistic(token, authoritative)

	if diff := cmp.Diff([]string{"srv-1"}, ids(th.Messages())); diff != "" {
		t.Errorf("double resolve corrupted thread (-want +got):\n%s", diff)
	}
}

func TestMessageThread_ResolveUnknownTokenDegradesToAppend(t *testing.T) {
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	authoritative := msg("srv-1", localUser, "alice", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), false)

	th.ResolveOptimistic("not-a-known-token", authoritative)
	th.ResolveOptimistic("not-a-known-token", authoritative)

	if th.Len() != 1 {
		t.Errorf("len = %d, want 1", th.Len())
	}
}

func TestMessageThread_MarkAllReceivedRead(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := &stubThreadBackend{}
	th := NewMessageThread(localUser, "alice", backend, time.UTC)
	th.Seed([]model.Message{
		msg("m1", "alice", localUser, base, false),
		msg("m2", localUser, "alice", base.Add(time.Minute), false),
		msg("m3", "alice", localUser, base.Add(2*time.Minute), false),
	})

	th.MarkAllReceivedRead(context.Background())

	for _, m := range th.Messages() {
		if m.ReceiverID == localUser && !m.IsRead {
			t.Errorf("received message %s still unread", m.ID)
		}
		if m.SenderID == localUser && m.IsRead {
			t.Errorf("own message %s flipped to read", m.ID)
		}
	}
	if backend.markReadCalls != 1 {
		t.Errorf("backend mark-read calls = %d, want 1", backend.markReadCalls)
	}
}

func TestMessageThread_ComputeDaySeparators(t *testing.T) {
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	th.Seed([]model.Message{
		msg("m1", "alice", localUser, time.Date(2025, 3, 9, 23, 50, 0, 0, time.UTC), true),
		msg("m2", "alice", localUser, time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC), true),
		msg("m3", "alice", localUser, time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC), true),
		msg("m4", "alice", localUser, time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), true),
	})

	want := []bool{true, false, true, false}
	if diff := cmp.Diff(want, th.ComputeDaySeparators()); diff != "" {
		t.Errorf("day separators mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageThread_ClosedIsNoOp(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	th := NewMessageThread(localUser, "alice", &stubThreadBackend{}, time.UTC)
	th.AppendIncoming(msg("m1", "alice", localUser, base, false))
	th.Close()

	th.AppendIncoming(msg("m2", "alice", localUser, base.Add(time.Minute), false))
	th.Seed([]model.Message{msg("m9", "alice", localUser, base, false)})
	th.MarkAllReceivedRead(context.Background())

	if diff := cmp.Diff([]string{"m1"}, ids(th.Messages())); diff != "" {
		t.Errorf("closed thread mutated (-want +got):\n%s", diff)
	}
	if th.Messages()[0].IsRead {
		t.Error("closed thread flipped read flags")
	}
}

func TestThreadManager_OpenAndRoute(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := &stubThreadBackend{history: []model.Message{
		msg("m1", "alice", localUser, base, false),
	}}
	mgr := NewThreadManager(localUser, backend, time.UTC)

	th := mgr.Open(context.Background(), "alice")
	if th.Len() != 1 {
		t.Fatalf("open did not seed: len = %d", th.Len())
	}
	if again := mgr.Open(context.Background(), "alice"); again != th {
		t.Error("second open returned a different thread")
	}

	// Events route to the owning thread only.
	mgr.HandleEvent(msg("m2", "alice", localUser, base.Add(time.Minute), false), "")
	mgr.HandleEvent(msg("m3", "bob", localUser, base.Add(2*time.Minute), false), "")
	if diff := cmp.Diff([]string{"m1", "m2"}, ids(th.Messages())); diff != "" {
		t.Errorf("routing mismatch (-want +got):\n%s", diff)
	}
	if _, ok := mgr.Get("bob"); ok {
		t.Error("event for unopened counterpart created a thread")
	}
}

func TestThreadManager_DropDetaches(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	mgr := NewThreadManager(localUser, &stubThreadBackend{}, time.UTC)
	th := mgr.Open(context.Background(), "alice")

	mgr.Drop("alice")
	if _, ok := mgr.Get("alice"); ok {
		t.Fatal("thread still registered after drop")
	}
	// A handle obtained before the drop must be inert.
	th.AppendIncoming(msg("m1", "alice", localUser, base, false))
	if th.Len() != 0 {
		t.Error("dropped thread accepted a message")
	}
}

func TestThreadManager_CloseThreadMarksRead(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	backend := &stubThreadBackend{history: []model.Message{
		msg("m1", "alice", localUser, base, false),
	}}
	mgr := NewThreadManager(localUser, backend, time.UTC)
	mgr.Open(context.Background(), "alice")

	mgr.CloseThread(context.Background(), "alice")
	if backend.markReadCalls != 1 {
		t.Errorf("mark-read calls = %d, want 1", backend.markReadCalls)
	}
	if _, ok := mgr.Get("alice"); ok {
		t.Error("thread still registered after close")
	}
}
