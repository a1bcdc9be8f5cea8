package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campuslink/internal/model"
)

// fakeRecorder records events in memory with the same idempotency contract
// as the storage-backed implementation.
type fakeRecorder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{seen: make(map[string]bool)}
}

func (f *fakeRecorder) Record(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recorded []model.NotificationEvent
	for _, ev := range events {
		key := ev.RecipientID + "/" + ev.MessageID
		if f.seen[key] {
			continue
		}
		f.seen[key] = true
		recorded = append(recorded, ev)
	}
	return recorded, nil
}

type pushCall struct {
	userID, title, body string
}

type fakePusher struct {
	mu    sync.Mutex
	calls []pushCall
}

func (f *fakePusher) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{userID: userID, title: title, body: body})
}

func (f *fakePusher) snapshot() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.calls...)
}

func testMessage(id, sender string) *model.Message {
	return &model.Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderID:       sender,
		Seq:            1,
		Content:        "hello there",
		MessageType:    model.MessageTypeText,
		CreatedAt:      time.Now().UTC(),
	}
}

// runAndDrain enqueues, then lets Run drain the queue via cancellation.
func runAndDrain(d *Dispatcher, events ...Event) {
	for _, ev := range events {
		d.Enqueue(ev)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)
}

func TestDispatchSkipsSender(t *testing.T) {
	rec := newFakeRecorder()
	push := &fakePusher{}
	d := NewDispatcher(rec, push)

	runAndDrain(d, Event{
		Kind:       model.NotificationMessage,
		Message:    testMessage("m1", "alice"),
		Title:      "Alice",
		Recipients: []string{"alice", "bob", "cara"},
	})

	calls := push.snapshot()
	if len(calls) != 2 {
		t.Fatalf("pushes = %d, want 2", len(calls))
	}
	for _, c := range calls {
		if c.userID == "alice" {
			t.Fatalf("sender was notified")
		}
		if c.title != "Alice" || c.body != "hello there" {
			t.Fatalf("call = %+v", c)
		}
	}
}

func TestDispatchIdempotent(t *testing.T) {
	rec := newFakeRecorder()
	push := &fakePusher{}
	d := NewDispatcher(rec, push)

	ev := Event{
		Kind:       model.NotificationMessage,
		Message:    testMessage("m1", "alice"),
		Title:      "Alice",
		Recipients: []string{"alice", "bob"},
	}
	// The same event delivered twice pushes only once.
	runAndDrain(d, ev, ev)

	if n := len(push.snapshot()); n != 1 {
		t.Fatalf("pushes = %d, want 1", n)
	}
}

func TestDispatchSenderOnlyConversation(t *testing.T) {
	rec := newFakeRecorder()
	push := &fakePusher{}
	d := NewDispatcher(rec, push)

	runAndDrain(d, Event{
		Kind:       model.NotificationMessage,
		Message:    testMessage("m1", "alice"),
		Recipients: []string{"alice"},
	})

	if n := len(push.snapshot()); n != 0 {
		t.Fatalf("pushes = %d, want 0", n)
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("э", 500)
	got := preview(long)
	runes := []rune(got)
	if len(runes) != previewLimit+1 {
		t.Fatalf("preview length = %d runes, want %d", len(runes), previewLimit+1)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("preview does not mark truncation: %q", got[len(got)-8:])
	}
	if preview("short") != "short" {
		t.Fatalf("short content altered")
	}
}
