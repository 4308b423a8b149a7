package model

import "time"

// ConversationEntry is one element of the GET /latest-messages response:
// the most recent message of a conversation with the two identities embedded
// and the backend's unread counter for the local user.
type ConversationEntry struct {
	ID          string    `json:"_id"`
	Sender      Identity  `json:"senderId"`
	Receiver    Identity  `json:"receiverId"`
	Text        string    `json:"message,omitempty"`
	MediaURL    string    `json:"mediaURL,omitempty"`
	MediaType   MediaType `json:"mediaType,omitempty"`
	SentAt      time.Time `json:"sentAt"`
	IsRead      bool      `json:"isRead"`
	UnreadCount uint      `json:"unreadCount"`
}

// Counterpart returns the embedded identity of the other party.
func (e ConversationEntry) Counterpart(localID string) Identity {
	if e.Sender.ID == localID {
		return e.Receiver
	}
	return e.Sender
}

// Message flattens the entry into a plain Message.
func (e ConversationEntry) Message() Message {
	return Message{
		ID:         e.ID,
		SenderID:   e.Sender.ID,
		ReceiverID: e.Receiver.ID,
		Text:       e.Text,
		MediaURL:   e.MediaURL,
		MediaType:  e.MediaType,
		SentAt:     e.SentAt,
		IsRead:     e.IsRead,
	}
}

// ConversationSummary is the client's derived view of one conversation:
// the message with the latest sentAt known locally and the count of unread
// messages addressed to the local user. It may lag the backend's counter
// until the next full seed.
type ConversationSummary struct {
	Counterpart Identity `json:"counterpart"`
	LastMessage Message  `json:"last_message"`
	UnreadCount uint     `json:"unread_count"`
}
