// Package service holds the conversation orchestration layer: validation,
// authorization and the wiring between conversations, membership, the
// message log, read state and notification fan-out.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/campuslink/internal/apperr"
	"github.com/campuslink/internal/directory"
	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/model"
	"github.com/campuslink/internal/notify"
	"github.com/campuslink/internal/repository"
)

const (
	maxGroupNameLen   = 120
	maxContentLen     = 8000
	defaultPageLimit  = 50
	maxPageLimit      = 100
	searchResultLimit = 20
)

type Conversations struct {
	dir        directory.Directory
	convRepo   *repository.ConversationRepository
	partRepo   *repository.ParticipantRepository
	msgRepo    *repository.MessageRepository
	readRepo   *repository.ReadStateRepository
	dispatcher *notify.Dispatcher
}

func NewConversations(
	dir directory.Directory,
	convRepo *repository.ConversationRepository,
	partRepo *repository.ParticipantRepository,
	msgRepo *repository.MessageRepository,
	readRepo *repository.ReadStateRepository,
	dispatcher *notify.Dispatcher,
) *Conversations {
	return &Conversations{
		dir:        dir,
		convRepo:   convRepo,
		partRepo:   partRepo,
		msgRepo:    msgRepo,
		readRepo:   readRepo,
		dispatcher: dispatcher,
	}
}

// SearchUsers queries the directory, excluding the requester from results.
func (s *Conversations) SearchUsers(ctx context.Context, requesterID, term string) ([]model.User, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []model.User{}, nil
	}
	users, err := s.dir.Search(ctx, term, searchResultLimit)
	if err != nil {
		return nil, apperr.Storage("search users", err)
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		if u.ID != requesterID {
			out = append(out, u)
		}
	}
	return out, nil
}

// FindOrCreateDirect resolves the direct conversation between the requester
// and otherID, creating it if needed. Idempotent: both members calling it,
// even concurrently, end on the same conversation.
func (s *Conversations) FindOrCreateDirect(ctx context.Context, requesterID, otherID string) (*model.Conversation, bool, error) {
	if otherID == "" {
		return nil, false, apperr.Validation("participantId is required")
	}
	if otherID == requesterID {
		return nil, false, apperr.Validation("cannot start a conversation with yourself")
	}
	for _, uid := range []string{requesterID, otherID} {
		if _, err := s.dir.GetByID(ctx, uid); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return nil, false, apperr.NotFound("user " + uid + " not found")
			}
			return nil, false, apperr.Storage("lookup user", err)
		}
	}

	conv, created, err := s.convRepo.FindOrCreateDirect(ctx, requesterID, otherID)
	if err != nil {
		return nil, false, apperr.Storage("find or create direct conversation", err)
	}
	if !created {
		// Re-running find-or-create is how a user reopens a hidden direct.
		if err := s.convRepo.Unhide(ctx, conv.ID, requesterID); err != nil {
			logger.Errorf("unhide conversation %s for %s: %v", conv.ID, requesterID, err)
		}
	}
	return conv, created, nil
}

// CreateGroup creates a group conversation with the creator as owner and
// memberIDs as members, atomically.
func (s *Conversations) CreateGroup(ctx context.Context, creatorID, name, avatarURL string, memberIDs []string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}
	if len(name) > maxGroupNameLen {
		return nil, apperr.Validation("group name is too long")
	}
	if len(memberIDs) < 1 {
		return nil, apperr.Validation("a group needs at least one member besides the creator")
	}
	seen := make(map[string]bool, len(memberIDs))
	for _, uid := range memberIDs {
		if uid == creatorID {
			return nil, apperr.Validation("participantIds must not include the creator")
		}
		if seen[uid] {
			return nil, apperr.Validation("participantIds contains duplicates")
		}
		seen[uid] = true
		if _, err := s.dir.GetByID(ctx, uid); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return nil, apperr.NotFound("user " + uid + " not found")
			}
			return nil, apperr.Storage("lookup user", err)
		}
	}

	conv, err := s.convRepo.CreateGroup(ctx, creatorID, name, avatarURL, memberIDs)
	if err != nil {
		return nil, apperr.Storage("create group", err)
	}
	return conv, nil
}

// RenameGroup changes a group's name. Direct conversations have no mutable
// metadata. Any current participant may rename.
func (s *Conversations) RenameGroup(ctx context.Context, conversationID, actorID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return apperr.Validation("name is required")
	}
	if len(newName) > maxGroupNameLen {
		return apperr.Validation("name is too long")
	}
	conv, err := s.requireGroupParticipant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if err := s.convRepo.UpdateName(ctx, conversationID, newName); err != nil {
		return apperr.Storage("rename group", err)
	}
	s.emitSystem(ctx, conv, actorID, model.NotificationGroupRenamed, newName,
		func(actor string) string { return actor + " renamed the group to \"" + newName + "\"" })
	return nil
}

// SetGroupAvatar changes a group's avatar URL.
func (s *Conversations) SetGroupAvatar(ctx context.Context, conversationID, actorID, avatarURL string) error {
	if strings.TrimSpace(avatarURL) == "" {
		return apperr.Validation("avatarUrl is required")
	}
	conv, err := s.requireGroupParticipant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if err := s.convRepo.UpdateAvatar(ctx, conversationID, avatarURL); err != nil {
		return apperr.Storage("set group avatar", err)
	}
	s.emitSystem(ctx, conv, actorID, model.NotificationAvatarChanged, conv.Name,
		func(actor string) string { return actor + " changed the group photo" })
	return nil
}

// AddMember adds a user to a group. Adding an existing participant is a
// no-op success.
func (s *Conversations) AddMember(ctx context.Context, conversationID, actorID, newUserID string) error {
	if newUserID == "" {
		return apperr.Validation("memberId is required")
	}
	conv, err := s.requireGroupParticipant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	added, err := s.dir.GetByID(ctx, newUserID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return apperr.NotFound("user " + newUserID + " not found")
		}
		return apperr.Storage("lookup user", err)
	}

	inserted, err := s.partRepo.Add(ctx, conversationID, newUserID, model.RoleMember)
	if err != nil {
		return apperr.Storage("add member", err)
	}
	if !inserted {
		return nil
	}
	s.emitSystem(ctx, conv, actorID, model.NotificationMemberAdded, conv.Name,
		func(actor string) string { return actor + " added " + added.FullName + " to the group" })
	return nil
}

// HideForParticipant soft-removes the conversation from the caller's list.
// Messages and other participants are unaffected. Idempotent.
func (s *Conversations) HideForParticipant(ctx context.Context, conversationID, userID string) error {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.convRepo.Hide(ctx, conversationID, userID); err != nil {
		return apperr.Storage("hide conversation", err)
	}
	return nil
}

// SendMessage appends a message and fans notification events out to the
// other participants. The fan-out is enqueued only after the append commits
// and can never fail the send.
func (s *Conversations) SendMessage(ctx context.Context, conversationID, senderID, content string, msgType model.MessageType, isImportant bool) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if len(content) > maxContentLen {
		return nil, apperr.Validation("content is too long")
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if msgType != model.MessageTypeText && msgType != model.MessageTypeImage {
		return nil, apperr.Validation("messageType must be text or image")
	}
	if err := s.requireParticipant(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.msgRepo.Append(ctx, conversationID, senderID, content, msgType, isImportant)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.Storage("send message", err)
	}
	// Sending into a conversation the sender had hidden brings it back.
	if err := s.convRepo.Unhide(ctx, conversationID, senderID); err != nil {
		logger.Errorf("unhide conversation %s for %s: %v", conversationID, senderID, err)
	}

	s.fanOut(ctx, conversationID, senderID, msg, model.NotificationMessage)
	return msg, nil
}

// Messages returns a page of the conversation's history, newest first.
func (s *Conversations) Messages(ctx context.Context, conversationID, requesterID, cursorStr string, limit int) ([]model.Message, string, error) {
	if err := s.requireParticipant(ctx, conversationID, requesterID); err != nil {
		return nil, "", err
	}
	cursor, err := repository.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", apperr.Validation("invalid cursor")
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	messages, next, err := s.msgRepo.Page(ctx, conversationID, cursor, limit)
	if err != nil {
		return nil, "", apperr.Storage("load messages", err)
	}
	return messages, next.Encode(), nil
}

// MarkRead advances the caller's read pointer. uptoSeq <= 0 means "up to the
// latest message". The pointer never regresses.
func (s *Conversations) MarkRead(ctx context.Context, conversationID, userID string, uptoSeq int64) error {
	if err := s.requireParticipant(ctx, conversationID, userID); err != nil {
		return err
	}
	if uptoSeq <= 0 {
		uptoSeq = math.MaxInt64 // clamped to the conversation counter in storage
	}
	if err := s.readRepo.MarkRead(ctx, conversationID, userID, uptoSeq); err != nil {
		return apperr.Storage("mark read", err)
	}
	return nil
}

// UnreadSummary returns unread counts per conversation for dashboard badges.
func (s *Conversations) UnreadSummary(ctx context.Context, userID string) (map[string]int, error) {
	summary, err := s.readRepo.UnreadSummary(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("unread summary", err)
	}
	return summary, nil
}

// List returns the caller's visible conversations with members, latest
// message and unread count, ordered by most recent activity.
func (s *Conversations) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	defer logger.DeferLogDuration("service.List", time.Now())()
	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("list conversations", err)
	}
	unread, err := s.readRepo.UnreadSummary(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("unread summary", err)
	}

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for i := range convs {
		sum, err := s.summarize(ctx, &convs[i], unread[convs[i].ID])
		if err != nil {
			logger.Errorf("summarize conversation %s: %v", convs[i].ID, err)
			continue
		}
		summaries = append(summaries, *sum)
	}
	return summaries, nil
}

func (s *Conversations) summarize(ctx context.Context, conv *model.Conversation, unread int) (*model.ConversationSummary, error) {
	ids, err := s.partRepo.UserIDs(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	users, err := s.dir.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	last, err := s.msgRepo.Last(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &model.ConversationSummary{
		Conversation: *conv,
		Participants: users,
		LastMessage:  last,
		UnreadCount:  unread,
	}, nil
}

// requireParticipant is the authorization boundary: every read or write on a
// conversation goes through it.
func (s *Conversations) requireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := s.partRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return apperr.Storage("check membership", err)
	}
	if !ok {
		return apperr.Authorization("not a participant of this conversation")
	}
	return nil
}

// requireGroupParticipant guards the group-admin operations: the
// conversation must exist, be a group, and the actor must be a participant.
func (s *Conversations) requireGroupParticipant(ctx context.Context, conversationID, actorID string) (*model.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, apperr.Storage("load conversation", err)
	}
	if conv.Kind != model.KindGroup {
		return nil, apperr.Validation("direct conversations have no mutable metadata")
	}
	if err := s.requireParticipant(ctx, conversationID, actorID); err != nil {
		return nil, err
	}
	return conv, nil
}

// emitSystem appends a system message describing a group change and fans the
// matching notification events out. Failures here never fail the change that
// already committed.
func (s *Conversations) emitSystem(ctx context.Context, conv *model.Conversation, actorID string, kind model.NotificationKind, title string, text func(actorName string) string) {
	actorName := actorID
	if actor, err := s.dir.GetByID(ctx, actorID); err == nil {
		actorName = actor.FullName
	}
	msg, err := s.msgRepo.Append(ctx, conv.ID, actorID, text(actorName), model.MessageTypeSystem, false)
	if err != nil {
		logger.Errorf("system message for conversation %s: %v", conv.ID, err)
		return
	}
	if title == "" {
		title = actorName
	}
	s.fanOutMsg(ctx, conv.ID, msg, kind, title)
}

func (s *Conversations) fanOut(ctx context.Context, conversationID, senderID string, msg *model.Message, kind model.NotificationKind) {
	title := senderID
	if sender, err := s.dir.GetByID(ctx, senderID); err == nil {
		title = sender.FullName
	}
	if conv, err := s.convRepo.GetByID(ctx, conversationID); err == nil && conv.Kind == model.KindGroup && conv.Name != "" {
		title = fmt.Sprintf("%s: %s", conv.Name, title)
	}
	s.fanOutMsg(ctx, conversationID, msg, kind, title)
}

func (s *Conversations) fanOutMsg(ctx context.Context, conversationID string, msg *model.Message, kind model.NotificationKind, title string) {
	if s.dispatcher == nil {
		return
	}
	recipients, err := s.partRepo.UserIDs(ctx, conversationID)
	if err != nil {
		logger.Errorf("fan-out recipients for conversation %s: %v", conversationID, err)
		return
	}
	s.dispatcher.Enqueue(notify.Event{
		Kind:       kind,
		Message:    msg,
		Title:      title,
		Recipients: recipients,
	})
}
