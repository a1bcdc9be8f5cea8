package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/model"
)

type ParticipantRepository struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// Add inserts a membership row. Adding an existing participant is a no-op;
// added reports whether a new row was created.
func (r *ParticipantRepository) Add(ctx context.Context, conversationID, userID string, role model.ParticipantRole) (added bool, err error) {
	defer logger.DeferLogDuration("part.Add", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		conversationID, userID, role, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("partRepo.Add: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsParticipant is the membership predicate every authorization check uses.
// Hidden participants are still participants.
func (r *ParticipantRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	defer logger.DeferLogDuration("part.IsParticipant", time.Now())()
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)`,
		conversationID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("partRepo.IsParticipant: %w", err)
	}
	return exists, nil
}

func (r *ParticipantRepository) Get(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	defer logger.DeferLogDuration("part.Get", time.Now())()
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT conversation_id, user_id, role, joined_at, last_read_seq, hidden_at
		 FROM participants WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastReadSeq, &p.HiddenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("partRepo.Get: %w", err)
	}
	return p, nil
}

// List returns the participants of a conversation in join order.
func (r *ParticipantRepository) List(ctx context.Context, conversationID string) ([]model.Participant, error) {
	defer logger.DeferLogDuration("part.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT conversation_id, user_id, role, joined_at, last_read_seq, hidden_at
		 FROM participants WHERE conversation_id = $1
		 ORDER BY joined_at, user_id`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("partRepo.List query: %w", err)
	}
	defer rows.Close()

	parts := make([]model.Participant, 0, 8)
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.Role, &p.JoinedAt, &p.LastReadSeq, &p.HiddenAt); err != nil {
			return nil, fmt.Errorf("partRepo.List scan: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("partRepo.List rows: %w", err)
	}
	return parts, nil
}

// UserIDs returns the participant user ids of a conversation.
func (r *ParticipantRepository) UserIDs(ctx context.Context, conversationID string) ([]string, error) {
	defer logger.DeferLogDuration("part.UserIDs", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM participants WHERE conversation_id = $1 ORDER BY joined_at, user_id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("partRepo.UserIDs query: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 8)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("partRepo.UserIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("partRepo.UserIDs rows: %w", err)
	}
	return ids, nil
}
