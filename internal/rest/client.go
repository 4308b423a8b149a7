// Package rest is the HTTP client for the Sierra backend. All calls attach
// the session bearer token and honor the caller's context.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/session"
	"github.com/sierrachat/client/internal/validate"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Store
	val        *validate.Validator
}

func NewClient(baseURL string, timeout time.Duration, sess *session.Store) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		session: sess,
		val:     validate.New(),
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes the request and decodes a JSON response into out (if non-nil).
// Non-2xx statuses are mapped to the error taxonomy.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) mapError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// Profile fetches the identity behind the current bearer token.
func (c *Client) Profile(ctx context.Context) (model.Identity, error) {
	defer logger.DeferLogDuration("rest.Profile", time.Now())()
	req, err := c.newRequest(ctx, http.MethodGet, "/profile", nil)
	if err != nil {
		return model.Identity{}, err
	}
	var user model.Identity
	if err := c.do(req, &user); err != nil {
		return model.Identity{}, err
	}
	return user, nil
}

// UserByID fetches a counterpart's identity snapshot.
func (c *Client) UserByID(ctx context.Context, id string) (model.Identity, error) {
	defer logger.DeferLogDuration("rest.UserByID", time.Now())()
	req, err := c.newRequest(ctx, http.MethodGet, "/users/"+id, nil)
	if err != nil {
		return model.Identity{}, err
	}
	var user model.Identity
	if err := c.do(req, &user); err != nil {
		return model.Identity{}, err
	}
	return user, nil
}

// LatestMessages fetches the conversation list snapshot: one entry per
// counterpart with the latest message and the backend's unread counter.
func (c *Client) LatestMessages(ctx context.Context) ([]model.ConversationEntry, error) {
	defer logger.DeferLogDuration("rest.LatestMessages", time.Now())()
	req, err := c.newRequest(ctx, http.MethodGet, "/latest-messages", nil)
	if err != nil {
		return nil, err
	}
	var entries []model.ConversationEntry
	if err := c.do(req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Messages fetches the full history with one counterpart.
func (c *Client) Messages(ctx context.Context, counterpartID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("rest.Messages", time.Now())()
	req, err := c.newRequest(ctx, http.MethodGet, "/messages/"+counterpartID, nil)
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := c.do(req, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage submits a draft as multipart form data (the backend accepts an
// optional media attachment alongside the text). clientToken is the
// correlation token echoed back in the message-sent socket event.
func (c *Client) SendMessage(ctx context.Context, draft model.Draft, clientToken string) (model.Message, error) {
	defer logger.DeferLogDuration("rest.SendMessage", time.Now())()
	if err := c.val.Struct(draft); err != nil {
		return model.Message{}, err
	}

	userID := c.session.UserID()
	if userID == "" {
		return model.Message{}, ErrUnauthorized
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeDraft(mw, userID, draft, clientToken)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/messages", pr)
	if err != nil {
		return model.Message{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg model.Message
	if err := c.do(req, &msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func writeDraft(mw *multipart.Writer, senderID string, draft model.Draft, clientToken string) error {
	fields := map[string]string{
		"senderId":   senderID,
		"receiverId": draft.ReceiverID,
		"message":    strings.TrimSpace(draft.Text),
	}
	if clientToken != "" {
		fields["clientToken"] = clientToken
	}
	if draft.MediaType != "" {
		fields["mediaType"] = string(draft.MediaType)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if draft.MediaPath == "" {
		return nil
	}
	f, err := os.Open(draft.MediaPath)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()
	part, err := mw.CreateFormFile("mediaURL", filepath.Base(draft.MediaPath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy media: %w", err)
	}
	return nil
}

// MarkRead tells the backend the local user has read everything from the
// counterpart up to now.
func (c *Client) MarkRead(ctx context.Context, counterpartID string) error {
	defer logger.DeferLogDuration("rest.MarkRead", time.Now())()
	req, err := c.newRequest(ctx, http.MethodPut, "/messages/mark-read/"+counterpartID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// DeleteMessages erases the whole conversation with the counterpart.
func (c *Client) DeleteMessages(ctx context.Context, counterpartID string) error {
	defer logger.DeferLogDuration("rest.DeleteMessages", time.Now())()
	req, err := c.newRequest(ctx, http.MethodDelete, "/messages/"+counterpartID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// MatchPhone submits normalized numbers and returns the registered users
// among them.
func (c *Client) MatchPhone(ctx context.Context, numbers []string) ([]model.Identity, error) {
	defer logger.DeferLogDuration("rest.MatchPhone", time.Now())()
	payload, err := json.Marshal(struct {
		PhoneNumbers []string `json:"phoneNumbers"`
	}{PhoneNumbers: numbers})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/match-phone", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var matched []model.Identity
	if err := c.do(req, &matched); err != nil {
		return nil, err
	}
	return matched, nil
}
