package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/apperr"
	"github.com/campuslink/internal/directory"
	"github.com/campuslink/internal/model"
	"github.com/campuslink/internal/repository"
	"github.com/campuslink/internal/testdb"
)

func newService(pool *pgxpool.Pool) *Conversations {
	return NewConversations(
		directory.NewPgDirectory(pool),
		repository.NewConversationRepository(pool),
		repository.NewParticipantRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewReadStateRepository(pool),
		nil, // no dispatcher: fan-out is covered by the notify package tests
	)
}

func TestConversationsService(t *testing.T) {
	pool := testdb.Start(t, 5462)

	t.Run("DirectValidation", func(t *testing.T) { testDirectValidation(t, pool) })
	t.Run("DirectIdempotent", func(t *testing.T) { testDirectIdempotent(t, pool) })
	t.Run("DirectReopensHidden", func(t *testing.T) { testDirectReopensHidden(t, pool) })
	t.Run("GroupValidation", func(t *testing.T) { testGroupValidation(t, pool) })
	t.Run("GroupAdminGuards", func(t *testing.T) { testGroupAdminGuards(t, pool) })
	t.Run("RenameEmitsSystemMessage", func(t *testing.T) { testRenameEmitsSystemMessage(t, pool) })
	t.Run("AddMemberIdempotent", func(t *testing.T) { testAddMemberIdempotent(t, pool) })
	t.Run("SendMessage", func(t *testing.T) { testSendMessage(t, pool) })
	t.Run("SendUnhides", func(t *testing.T) { testSendUnhides(t, pool) })
	t.Run("MessagesAccessAndCursor", func(t *testing.T) { testMessagesAccessAndCursor(t, pool) })
	t.Run("MarkReadDefault", func(t *testing.T) { testMarkReadDefault(t, pool) })
	t.Run("ListSummaries", func(t *testing.T) { testListSummaries(t, pool) })
	t.Run("SearchExcludesRequester", func(t *testing.T) { testSearchExcludesRequester(t, pool) })
}

func seedUsers(t *testing.T, pool *pgxpool.Pool, n int) []string {
	t.Helper()
	names := []string{"Alice Adams", "Bob Brown", "Cara Cole", "Dan Drew"}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := testdb.SeedUser(t, pool, uuid.New().String(), names[i%len(names)]+" "+uuid.New().String()[:8], "student")
		ids = append(ids, id)
	}
	return ids
}

func testDirectValidation(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 1)

	_, _, err := svc.FindOrCreateDirect(ctx, users[0], "")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty participant: %v, want validation error", err)
	}
	_, _, err = svc.FindOrCreateDirect(ctx, users[0], users[0])
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("self conversation: %v, want validation error", err)
	}
	_, _, err = svc.FindOrCreateDirect(ctx, users[0], uuid.New().String())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown user: %v, want not found", err)
	}
}

func testDirectIdempotent(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 2)

	conv, created, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil || !created {
		t.Fatalf("create: %v, created=%v", err, created)
	}
	again, created, err := svc.FindOrCreateDirect(ctx, users[1], users[0])
	if err != nil || created {
		t.Fatalf("reuse: %v, created=%v", err, created)
	}
	if again.ID != conv.ID {
		t.Fatalf("got %s, want %s", again.ID, conv.ID)
	}
}

func testDirectReopensHidden(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 2)

	conv, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.HideForParticipant(ctx, conv.ID, users[0]); err != nil {
		t.Fatalf("hide: %v", err)
	}
	list, err := svc.List(ctx, users[0])
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("hidden conversation still listed")
	}

	if _, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1]); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	list, err = svc.List(ctx, users[0])
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("reopened conversation not listed")
	}
}

func testGroupValidation(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 3)

	cases := []struct {
		name    string
		group   string
		members []string
		want    error
	}{
		{"empty name", "", []string{users[1]}, apperr.ErrValidation},
		{"long name", strings.Repeat("x", 121), []string{users[1]}, apperr.ErrValidation},
		{"no members", "team", nil, apperr.ErrValidation},
		{"creator included", "team", []string{users[0], users[1]}, apperr.ErrValidation},
		{"duplicates", "team", []string{users[1], users[1]}, apperr.ErrValidation},
		{"unknown member", "team", []string{uuid.New().String()}, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		_, err := svc.CreateGroup(ctx, users[0], tc.group, "", tc.members)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: %v, want %v", tc.name, err, tc.want)
		}
	}

	conv, err := svc.CreateGroup(ctx, users[0], "  team  ", "", []string{users[1], users[2]})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.Name != "team" {
		t.Fatalf("name = %q, want trimmed", conv.Name)
	}
}

func testGroupAdminGuards(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 3)

	direct, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	group, err := svc.CreateGroup(ctx, users[0], "team", "", []string{users[1]})
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	if err := svc.RenameGroup(ctx, direct.ID, users[0], "new"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("rename direct: %v, want validation error", err)
	}
	if err := svc.RenameGroup(ctx, uuid.New().String(), users[0], "new"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("rename missing: %v, want not found", err)
	}
	if err := svc.RenameGroup(ctx, group.ID, users[2], "new"); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("rename by outsider: %v, want authorization error", err)
	}
	if err := svc.SetGroupAvatar(ctx, group.ID, users[2], "https://cdn/x.png"); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("avatar by outsider: %v, want authorization error", err)
	}
	if err := svc.AddMember(ctx, direct.ID, users[0], users[2]); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("add member to direct: %v, want validation error", err)
	}
}

func testRenameEmitsSystemMessage(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 2)
	group, err := svc.CreateGroup(ctx, users[0], "team", "", []string{users[1]})
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	// Any participant may rename, not only the owner.
	if err := svc.RenameGroup(ctx, group.ID, users[1], "renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, err := svc.convRepo.GetByID(ctx, group.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Name != "renamed" {
		t.Fatalf("name = %q, want renamed", got.Name)
	}

	last, err := svc.msgRepo.Last(ctx, group.ID)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last == nil || last.MessageType != model.MessageTypeSystem {
		t.Fatalf("last message = %+v, want a system message", last)
	}
	if !strings.Contains(last.Content, "renamed the group") {
		t.Fatalf("system text = %q", last.Content)
	}
}

func testAddMemberIdempotent(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 3)
	group, err := svc.CreateGroup(ctx, users[0], "team", "", []string{users[1]})
	if err != nil {
		t.Fatalf("group: %v", err)
	}

	if err := svc.AddMember(ctx, group.ID, users[0], users[2]); err != nil {
		t.Fatalf("add: %v", err)
	}
	first, err := svc.msgRepo.Last(ctx, group.ID)
	if err != nil {
		t.Fatalf("last: %v", err)
	}

	// Re-adding is a no-op success and appends no second system message.
	if err := svc.AddMember(ctx, group.ID, users[1], users[2]); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	second, err := svc.msgRepo.Last(ctx, group.ID)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("re-add appended a message")
	}
}

func testSendMessage(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 3)
	conv, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("direct: %v", err)
	}

	if _, err := svc.SendMessage(ctx, conv.ID, users[0], "   ", model.MessageTypeText, false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank content: %v, want validation error", err)
	}
	if _, err := svc.SendMessage(ctx, conv.ID, users[0], strings.Repeat("x", 8001), model.MessageTypeText, false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("oversized content: %v, want validation error", err)
	}
	if _, err := svc.SendMessage(ctx, conv.ID, users[0], "hi", model.MessageTypeSystem, false); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("system type from client: %v, want validation error", err)
	}
	if _, err := svc.SendMessage(ctx, conv.ID, users[2], "hi", model.MessageTypeText, false); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("outsider send: %v, want authorization error", err)
	}

	msg, err := svc.SendMessage(ctx, conv.ID, users[0], "  hello  ", "", true)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("content = %q, want trimmed", msg.Content)
	}
	if msg.MessageType != model.MessageTypeText {
		t.Fatalf("type = %q, want default text", msg.MessageType)
	}
	if msg.Seq != 1 || !msg.IsImportant {
		t.Fatalf("seq=%d important=%v", msg.Seq, msg.IsImportant)
	}
}

func testSendUnhides(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 2)
	conv, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if err := svc.HideForParticipant(ctx, conv.ID, users[0]); err != nil {
		t.Fatalf("hide: %v", err)
	}

	if _, err := svc.SendMessage(ctx, conv.ID, users[0], "back", model.MessageTypeText, false); err != nil {
		t.Fatalf("send: %v", err)
	}
	list, err := svc.List(ctx, users[0])
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("sending did not restore the hidden conversation")
	}
}

func testMessagesAccessAndCursor(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 3)
	conv, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.SendMessage(ctx, conv.ID, users[0], "m", model.MessageTypeText, false); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if _, _, err := svc.Messages(ctx, conv.ID, users[2], "", 10); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("outsider read: %v, want authorization error", err)
	}
	if _, _, err := svc.Messages(ctx, conv.ID, users[0], "not-a-cursor!", 10); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("bad cursor: %v, want validation error", err)
	}

	msgs, next, err := svc.Messages(ctx, conv.ID, users[0], "", 10)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Seq != 3 {
		t.Fatalf("got %d messages, head seq %d", len(msgs), msgs[0].Seq)
	}
	if next != "" {
		t.Fatalf("nextCursor = %q on final page, want empty", next)
	}
}

func testMarkReadDefault(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 2)
	conv, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := svc.SendMessage(ctx, conv.ID, users[0], "m", model.MessageTypeText, false); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	// uptoSeq 0 means "everything".
	if err := svc.MarkRead(ctx, conv.ID, users[1], 0); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	sum, err := svc.UnreadSummary(ctx, users[1])
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(sum) != 0 {
		t.Fatalf("unread after full ack = %v", sum)
	}
}

func testListSummaries(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	users := seedUsers(t, pool, 3)

	direct, _, err := svc.FindOrCreateDirect(ctx, users[0], users[1])
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	group, err := svc.CreateGroup(ctx, users[0], "team", "", []string{users[1], users[2]})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if _, err := svc.SendMessage(ctx, direct.ID, users[1], "direct msg", model.MessageTypeText, false); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.SendMessage(ctx, group.ID, users[2], "group msg", model.MessageTypeText, false); err != nil {
		t.Fatalf("send: %v", err)
	}

	list, err := svc.List(ctx, users[0])
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("conversations = %d, want 2", len(list))
	}
	// Most recent activity first: the group message was sent last.
	if list[0].Conversation.ID != group.ID {
		t.Fatalf("order: head %s, want group %s", list[0].Conversation.ID, group.ID)
	}
	if len(list[0].Participants) != 3 {
		t.Fatalf("group participants = %d, want 3", len(list[0].Participants))
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Content != "group msg" {
		t.Fatalf("group last message = %+v", list[0].LastMessage)
	}
	if list[0].UnreadCount != 1 || list[1].UnreadCount != 1 {
		t.Fatalf("unread counts = %d, %d, want 1, 1", list[0].UnreadCount, list[1].UnreadCount)
	}
}

func testSearchExcludesRequester(t *testing.T, pool *pgxpool.Pool) {
	testdb.Reset(t, pool)
	ctx := context.Background()
	svc := newService(pool)
	me := testdb.SeedUser(t, pool, uuid.New().String(), "Eve Ellis Matcher", "coordinator")
	other := testdb.SeedUser(t, pool, uuid.New().String(), "Evan Ellis Matcher", "student")

	users, err := svc.SearchUsers(ctx, me, "Ellis Matcher")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(users) != 1 || users[0].ID != other {
		t.Fatalf("results = %+v, want only the other user", users)
	}

	users, err = svc.SearchUsers(ctx, me, "   ")
	if err != nil {
		t.Fatalf("blank search: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("blank term returned %d users", len(users))
	}
}
