package model

import (
	"sort"
	"time"
)

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleMember ParticipantRole = "member"
)

type Conversation struct {
	ID        string           `json:"id"`
	Kind      ConversationKind `json:"kind"`
	Name      string           `json:"name,omitempty"`
	AvatarURL string           `json:"avatar_url,omitempty"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
}

// Participant links a user to a conversation and carries their read pointer.
// LastReadSeq never regresses and never exceeds the conversation's counter.
type Participant struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joined_at"`
	LastReadSeq    int64           `json:"last_read_seq"`
	HiddenAt       *time.Time      `json:"-"`
}

// ConversationSummary is one row of the conversation list: the conversation,
// its members, the latest message and the caller's unread count.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	Participants []User       `json:"participants"`
	LastMessage  *Message     `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
}

// DirectKey is the canonical unordered-pair identity of a direct
// conversation: the two user ids sorted and joined. Both members compute the
// same key, so the unique index on it collapses concurrent creation.
func DirectKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}
