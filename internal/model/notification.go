package model

import "time"

type NotificationKind string

const (
	NotificationMessage       NotificationKind = "message"
	NotificationMemberAdded   NotificationKind = "member_added"
	NotificationGroupRenamed  NotificationKind = "group_renamed"
	NotificationAvatarChanged NotificationKind = "avatar_changed"
)

// NotificationEvent is a derived record, idempotent per
// (recipient_id, message_id); re-emitting the same pair is a no-op.
type NotificationEvent struct {
	RecipientID    string           `json:"recipient_id"`
	ConversationID string           `json:"conversation_id"`
	MessageID      string           `json:"message_id"`
	Kind           NotificationKind `json:"kind"`
	CreatedAt      time.Time        `json:"created_at"`
}
