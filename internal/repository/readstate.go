package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/logger"
)

type ReadStateRepository struct {
	pool *pgxpool.Pool
}

func NewReadStateRepository(pool *pgxpool.Pool) *ReadStateRepository {
	return &ReadStateRepository{pool: pool}
}

// MarkRead advances the participant's read pointer to uptoSeq. GREATEST
// makes the update monotonic and commutative, so concurrent calls from
// several devices of the same user converge; LEAST clamps the pointer to the
// conversation's highest assigned sequence.
func (r *ReadStateRepository) MarkRead(ctx context.Context, conversationID, userID string, uptoSeq int64) error {
	defer logger.DeferLogDuration("read.MarkRead", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE participants p
		 SET last_read_seq = GREATEST(p.last_read_seq, LEAST($3, c.last_message_seq))
		 FROM conversations c
		 WHERE c.id = p.conversation_id AND p.conversation_id = $1 AND p.user_id = $2`,
		conversationID, userID, uptoSeq,
	)
	if err != nil {
		return fmt.Errorf("readRepo.MarkRead: %w", err)
	}
	return nil
}

// UnreadCount counts messages newer than the participant's read pointer,
// excluding their own.
func (r *ReadStateRepository) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	defer logger.DeferLogDuration("read.UnreadCount", time.Now())()
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN participants p ON p.conversation_id = m.conversation_id AND p.user_id = $2
		 WHERE m.conversation_id = $1 AND m.seq > p.last_read_seq AND m.sender_id != $2`,
		conversationID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("readRepo.UnreadCount: %w", err)
	}
	return count, nil
}

// UnreadSummary returns unread counts per conversation for every
// conversation the user participates in and has not hidden. Conversations
// with nothing unread are omitted.
func (r *ReadStateRepository) UnreadSummary(ctx context.Context, userID string) (map[string]int, error) {
	defer logger.DeferLogDuration("read.UnreadSummary", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT m.conversation_id, COUNT(*)
		 FROM messages m
		 JOIN participants p ON p.conversation_id = m.conversation_id AND p.user_id = $1
		 WHERE p.hidden_at IS NULL AND m.seq > p.last_read_seq AND m.sender_id != $1
		 GROUP BY m.conversation_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("readRepo.UnreadSummary query: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("readRepo.UnreadSummary scan: %w", err)
		}
		summary[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readRepo.UnreadSummary rows: %w", err)
	}
	return summary, nil
}
