package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/session"
	"github.com/sierrachat/client/internal/storage/memory"
	"github.com/sierrachat/client/internal/validate"
)

func testSession(t *testing.T, user model.Identity, token string) *session.Store {
	t.Helper()
	sess := session.New(memory.New())
	if err := sess.Begin(context.Background(), user, token); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	return sess
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sess := testSession(t, model.Identity{ID: "me", Username: "me_user"}, "tok-1")
	return NewClient(srv.URL, 5*time.Second, sess)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(model.Identity{ID: "me"})
	})

	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("profile: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", gotAuth)
	}
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"Unauthorized", http.StatusUnauthorized, `{}`, ErrUnauthorized},
		{"Forbidden", http.StatusForbidden, `{}`, ErrUnauthorized},
		{"NotFound", http.StatusNotFound, `{}`, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Profile(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("ServerError", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "database down"})
		})
		_, err := c.Profile(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want *APIError", err)
		}
		if apiErr.Status != http.StatusInternalServerError || apiErr.Message != "database down" {
			t.Errorf("got %+v", apiErr)
		}
	})
}

func TestClient_LatestMessages(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := []model.ConversationEntry{{
		ID:          "m1",
		Sender:      model.Identity{ID: "alice", Username: "alice_a"},
		Receiver:    model.Identity{ID: "me", Username: "me_user"},
		Text:        "hello",
		SentAt:      at,
		UnreadCount: 2,
	}}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest-messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(entries)
	})

	got, err := c.LatestMessages(context.Background())
	if err != nil {
		t.Fatalf("latest messages: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_SendMessage(t *testing.T) {
	reply := model.Message{ID: "srv-1", SenderID: "me", ReceiverID: "alice", Text: "hi"}
	var form map[string]string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		form = map[string]string{}
		for k, vs := range r.MultipartForm.Value {
			form[k] = vs[0]
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(reply)
	})

	got, err := c.SendMessage(context.Background(), model.Draft{ReceiverID: "alice", Text: " hi "}, "token-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.ID != reply.ID {
		t.Errorf("id = %s, want %s", got.ID, reply.ID)
	}

	want := map[string]string{
		"senderId":    "me",
		"receiverId":  "alice",
		"message":     "hi",
		"clientToken": "token-1",
	}
	if diff := cmp.Diff(want, form); diff != "" {
		t.Errorf("form mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_SendMessageWithMedia(t *testing.T) {
	mediaPath := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(mediaPath, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("mediaType"); got != "image" {
			t.Errorf("mediaType = %q, want image", got)
		}
		f, header, err := r.FormFile("mediaURL")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		if header.Filename != "photo.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(model.Message{ID: "srv-2"})
	})

	_, err := c.SendMessage(context.Background(), model.Draft{
		ReceiverID: "alice",
		MediaPath:  mediaPath,
		MediaType:  model.MediaTypeImage,
	}, "token-2")
	if err != nil {
		t.Fatalf("send with media: %v", err)
	}
}

func TestClient_SendMessageValidatesDraft(t *testing.T) {
	called := false
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	// Neither text nor media: must fail locally without touching the wire.
	_, err := c.SendMessage(context.Background(), model.Draft{ReceiverID: "alice"}, "token-3")
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *validate.Error", err)
	}
	if called {
		t.Error("invalid draft reached the backend")
	}
}

func TestClient_MarkReadAndDelete(t *testing.T) {
	type call struct{ Method, Path string }
	var calls []call
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusOK)
	})

	if err := c.MarkRead(context.Background(), "alice"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := c.DeleteMessages(context.Background(), "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []call{
		{http.MethodPut, "/messages/mark-read/alice"},
		{http.MethodDelete, "/messages/alice"},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_MatchPhone(t *testing.T) {
	var gotBody struct {
		PhoneNumbers []string `json:"phoneNumbers"`
	}
	matched := []model.Identity{{ID: "u1", Username: "alice_a", Phone: "+14155550100"}}
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/match-phone" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(matched)
	})

	got, err := c.MatchPhone(context.Background(), []string{"+14155550100", "+442071838750"})
	if err != nil {
		t.Fatalf("match phone: %v", err)
	}
	if diff := cmp.Diff([]string{"+14155550100", "+442071838750"}, gotBody.PhoneNumbers); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(matched, got); diff != "" {
		t.Errorf("matched mismatch (-want +got):\n%s", diff)
	}
}
