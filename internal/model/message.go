package model

import "time"

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// Message is a single direct message. IDs are assigned by the backend; the
// only field that changes after creation is IsRead, which moves false->true
// and never reverts. A message carries text, media, or both.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"message,omitempty"`
	MediaURL   string    `json:"mediaURL,omitempty"`
	MediaType  MediaType `json:"mediaType,omitempty"`
	SentAt     time.Time `json:"sentAt"`
	IsRead     bool      `json:"isRead"`
}

// CounterpartID returns the other party of the message relative to localID,
// whether the local user sent or received it.
func (m Message) CounterpartID(localID string) string {
	if m.SenderID == localID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Draft is a message before the backend has accepted it. Validated before
// submission: at least one of Text or MediaPath must be set.
type Draft struct {
	ReceiverID string    `validate:"required"`
	Text       string    `validate:"required_without=MediaPath"`
	MediaPath  string    `validate:"required_without=Text"`
	MediaType  MediaType `validate:"omitempty,oneof=image video audio"`
}
