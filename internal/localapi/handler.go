// Package localapi exposes the synced conversation state over a small HTTP
// surface on localhost, so shells, scripts and desktop widgets can read and
// drive the daemon without speaking the backend protocol themselves.
package localapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sierrachat/client/internal/chat"
	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/session"
)

type Handler struct {
	index   *chat.ConversationIndex
	threads *chat.ThreadManager
	session *session.Store
	origins string
}

func New(index *chat.ConversationIndex, threads *chat.ThreadManager, sess *session.Store, allowedOrigins string) *Handler {
	return &Handler{
		index:   index,
		threads: threads,
		session: sess,
		origins: strings.TrimSpace(allowedOrigins),
	}
}

// Router builds the local API routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLog)
	r.Use(recoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(h.origins, ","),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", h.health)
	r.Get("/conversations", h.listConversations)
	r.Route("/conversations/{counterpartID}", func(r chi.Router) {
		r.Get("/", h.getConversation)
		r.Delete("/", h.deleteConversation)
		r.Put("/read", h.markRead)
		r.Get("/messages", h.listMessages)
		r.Post("/messages", h.sendMessage)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	user, ok := h.session.User()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"authenticated": ok,
		"user_id":       user.ID,
	})
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Conversations []model.ConversationSummary `json:"conversations"`
	}
	writeJSON(w, http.StatusOK, response{Conversations: h.index.Conversations()})
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request) {
	counterpartID := chi.URLParam(r, "counterpartID")
	summary, ok := h.index.Summary(counterpartID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown conversation")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	counterpartID := chi.URLParam(r, "counterpartID")
	if err := h.index.DeleteConversation(r.Context(), counterpartID); err != nil {
		// The backend is the authority: a failed delete leaves the local
		// summary in place and the caller sees the failure.
		writeBackendError(w, err)
		return
	}
	h.threads.Drop(counterpartID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	counterpartID := chi.URLParam(r, "counterpartID")
	h.index.MarkConversationRead(counterpartID)
	if t, ok := h.threads.Get(counterpartID); ok {
		t.MarkAllReceivedRead(r.Context())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Messages  []model.Message `json:"messages"`
		DayStarts []bool          `json:"day_starts"`
	}
	counterpartID := chi.URLParam(r, "counterpartID")

	// Opening a conversation zeroes its unread badge, like tapping a chat
	// in the list.
	t := h.threads.Open(r.Context(), counterpartID)
	h.index.MarkConversationRead(counterpartID)

	writeJSON(w, http.StatusOK, response{
		Messages:  t.Messages(),
		DayStarts: t.ComputeDaySeparators(),
	})
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Text      string `json:"text"`
		MediaPath string `json:"media_path"`
		MediaType string `json:"media_type"`
	}
	counterpartID := chi.URLParam(r, "counterpartID")

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "could not decode request body")
		return
	}

	t := h.threads.Open(r.Context(), counterpartID)
	msg, err := t.Send(r.Context(), model.Draft{
		ReceiverID: counterpartID,
		Text:       body.Text,
		MediaPath:  body.MediaPath,
		MediaType:  model.MediaType(body.MediaType),
	})
	if err != nil {
		writeBackendError(w, err)
		return
	}
	// The socket echo also lands here eventually; folding the REST response
	// in now keeps the list fresh even when the socket is down.
	h.index.ApplyIncoming(msg)
	writeJSON(w, http.StatusCreated, msg)
}
