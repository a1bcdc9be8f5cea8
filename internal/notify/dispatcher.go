// Package notify fans activity out to notification records and the push
// collaborator. Dispatch is decoupled from the triggering write: events are
// enqueued only after the write commits, and a failed dispatch is logged,
// never surfaced to the API caller.
package notify

import (
	"context"
	"time"

	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/model"
)

const (
	queueSize       = 1024
	dispatchTimeout = 10 * time.Second
	previewLimit    = 120
)

// Event is one committed piece of activity to fan out. Recipients lists the
// conversation's participants at the time of the write; the sender is
// filtered out here.
type Event struct {
	Kind       model.NotificationKind
	Message    *model.Message
	Title      string
	Recipients []string
}

// Recorder persists notification events idempotently and reports which ones
// were newly recorded. Implemented by repository.NotificationRepository.
type Recorder interface {
	Record(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error)
}

// Pusher delivers a notification to a user's devices. Implemented by
// push.Client; delivery failures are its own problem.
type Pusher interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type Dispatcher struct {
	recorder Recorder
	pusher   Pusher
	queue    chan Event
}

func NewDispatcher(recorder Recorder, pusher Pusher) *Dispatcher {
	return &Dispatcher{
		recorder: recorder,
		pusher:   pusher,
		queue:    make(chan Event, queueSize),
	}
}

// Enqueue hands an event to the dispatch worker without blocking. If the
// queue is full the event is dropped and logged; notification records are
// derived state and the next write will regenerate interest.
func (d *Dispatcher) Enqueue(ev Event) {
	select {
	case d.queue <- ev:
	default:
		logger.Errorf("notify: queue full, dropping %s event for message %s", ev.Kind, messageID(ev))
	}
}

// Run consumes the queue until ctx is cancelled, then drains what is already
// enqueued before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.queue:
					d.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(ev Event) {
	if ev.Message == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	events := make([]model.NotificationEvent, 0, len(ev.Recipients))
	for _, uid := range ev.Recipients {
		if uid == ev.Message.SenderID {
			continue
		}
		events = append(events, model.NotificationEvent{
			RecipientID:    uid,
			ConversationID: ev.Message.ConversationID,
			MessageID:      ev.Message.ID,
			Kind:           ev.Kind,
			CreatedAt:      ev.Message.CreatedAt,
		})
	}
	if len(events) == 0 {
		return
	}

	recorded, err := d.recorder.Record(ctx, events)
	if err != nil {
		logger.Errorf("notify: record events for message %s: %v", ev.Message.ID, err)
	}
	if d.pusher == nil {
		return
	}
	body := preview(ev.Message.Content)
	data := map[string]string{
		"conversation_id": ev.Message.ConversationID,
		"message_id":      ev.Message.ID,
		"kind":            string(ev.Kind),
	}
	// Push only for events recorded this round: a redelivered event already
	// notified its recipient once.
	for _, rec := range recorded {
		d.pusher.Notify(ctx, rec.RecipientID, ev.Title, body, data)
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "…"
}

func messageID(ev Event) string {
	if ev.Message == nil {
		return "<nil>"
	}
	return ev.Message.ID
}
