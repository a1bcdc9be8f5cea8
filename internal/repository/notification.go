package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/model"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Record inserts the events, skipping any (recipient_id, message_id) pair
// that already exists, and returns only the newly recorded ones. At-least-
// once redelivery from upstream therefore never notifies twice.
func (r *NotificationRepository) Record(ctx context.Context, events []model.NotificationEvent) ([]model.NotificationEvent, error) {
	defer logger.DeferLogDuration("notif.Record", time.Now())()
	recorded := make([]model.NotificationEvent, 0, len(events))
	for _, ev := range events {
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now().UTC()
		}
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO notification_events (recipient_id, conversation_id, message_id, kind, created_at)
			 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
			ev.RecipientID, ev.ConversationID, ev.MessageID, ev.Kind, ev.CreatedAt,
		)
		if err != nil {
			return recorded, fmt.Errorf("notifRepo.Record: %w", err)
		}
		if tag.RowsAffected() > 0 {
			recorded = append(recorded, ev)
		}
	}
	return recorded, nil
}

// ListForRecipient returns a recipient's newest events, for inspection and
// badge reconciliation.
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]model.NotificationEvent, error) {
	defer logger.DeferLogDuration("notif.ListForRecipient", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT recipient_id, conversation_id, message_id, kind, created_at
		 FROM notification_events
		 WHERE recipient_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, recipientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("notifRepo.ListForRecipient query: %w", err)
	}
	defer rows.Close()

	events := make([]model.NotificationEvent, 0, limit)
	for rows.Next() {
		var ev model.NotificationEvent
		if err := rows.Scan(&ev.RecipientID, &ev.ConversationID, &ev.MessageID, &ev.Kind, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("notifRepo.ListForRecipient scan: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notifRepo.ListForRecipient rows: %w", err)
	}
	return events, nil
}
