package model

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
	MessageTypeImage  MessageType = "image"
)

// Message is immutable once created; there is no edit or delete operation.
// Seq is strictly increasing within a conversation and establishes order.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Seq            int64       `json:"seq"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type"`
	IsImportant    bool        `json:"is_important"`
	CreatedAt      time.Time   `json:"created_at"`
	Sender         *User       `json:"sender,omitempty"`
}
