package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/model"
)

var ErrNotFound = errors.New("not found")

// findOrCreateAttempts bounds the conflict-then-reread loop in
// FindOrCreateDirect. More than a couple of rounds means the storage
// collaborator is misbehaving, not racing.
const findOrCreateAttempts = 3

const conversationCols = `id, kind, name, avatar_url, created_by, created_at`

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

func scanConversation(s interface{ Scan(dest ...any) error }, c *model.Conversation) error {
	return s.Scan(&c.ID, &c.Kind, &c.Name, &c.AvatarURL, &c.CreatedBy, &c.CreatedAt)
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.GetByID", time.Now())()
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx, `SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.GetByID: %w", err)
	}
	return c, nil
}

// FindOrCreateDirect returns the direct conversation for the unordered pair
// (userA, userB), creating it atomically if it does not exist. The unique
// index on direct_key arbitrates concurrent creation: the losing insert hits
// the conflict and re-reads the winner's row.
func (r *ConversationRepository) FindOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, bool, error) {
	defer logger.DeferLogDuration("conv.FindOrCreateDirect", time.Now())()
	key := model.DirectKey(userA, userB)

	var lastErr error
	for attempt := 0; attempt < findOrCreateAttempts; attempt++ {
		c, err := r.findDirectByKey(ctx, key)
		if err == nil {
			return c, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}

		c, err = r.insertDirect(ctx, key, userA, userB)
		if err == nil {
			return c, true, nil
		}
		// Unique violation: the other member won the race. Loop and re-read.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			lastErr = err
			continue
		}
		return nil, false, err
	}
	return nil, false, fmt.Errorf("convRepo.FindOrCreateDirect: retries exhausted: %w", lastErr)
}

func (r *ConversationRepository) findDirectByKey(ctx context.Context, key string) (*model.Conversation, error) {
	c := &model.Conversation{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE kind = 'direct' AND direct_key = $1`, key)
	if err := scanConversation(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("convRepo.findDirectByKey: %w", err)
	}
	return c, nil
}

// insertDirect creates the conversation row and both participant rows in one
// transaction, so a request that dies mid-way leaves no partial state.
func (r *ConversationRepository) insertDirect(ctx context.Context, key, userA, userB string) (*model.Conversation, error) {
	now := time.Now().UTC()
	c := &model.Conversation{
		ID:        uuid.New().String(),
		Kind:      model.KindDirect,
		CreatedBy: userA,
		CreatedAt: now,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("convRepo.insertDirect begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, kind, direct_key, created_by, created_at)
		 VALUES ($1, 'direct', $2, $3, $4)`,
		c.ID, key, userA, now,
	); err != nil {
		return nil, err
	}
	for _, uid := range []string{userA, userB} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (conversation_id, user_id, role, joined_at)
			 VALUES ($1, $2, 'member', $3)`,
			c.ID, uid, now,
		); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("convRepo.insertDirect commit: %w", err)
	}
	return c, nil
}

// CreateGroup inserts the group conversation, its owner row and all member
// rows in one atomic unit.
func (r *ConversationRepository) CreateGroup(ctx context.Context, creatorID, name, avatarURL string, memberIDs []string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conv.CreateGroup", time.Now())()
	now := time.Now().UTC()
	c := &model.Conversation{
		ID:        uuid.New().String(),
		Kind:      model.KindGroup,
		Name:      name,
		AvatarURL: avatarURL,
		CreatedBy: creatorID,
		CreatedAt: now,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, kind, name, avatar_url, created_by, created_at)
		 VALUES ($1, 'group', $2, $3, $4, $5)`,
		c.ID, name, avatarURL, creatorID, now,
	); err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup insert: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO participants (conversation_id, user_id, role, joined_at)
		 VALUES ($1, $2, 'owner', $3)`,
		c.ID, creatorID, now,
	); err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup owner: %w", err)
	}
	for _, uid := range memberIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (conversation_id, user_id, role, joined_at)
			 VALUES ($1, $2, 'member', $3)`,
			c.ID, uid, now,
		); err != nil {
			return nil, fmt.Errorf("convRepo.CreateGroup member: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("convRepo.CreateGroup commit: %w", err)
	}
	return c, nil
}

func (r *ConversationRepository) UpdateName(ctx context.Context, id, name string) error {
	defer logger.DeferLogDuration("conv.UpdateName", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("convRepo.UpdateName: %w", err)
	}
	return nil
}

func (r *ConversationRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	defer logger.DeferLogDuration("conv.UpdateAvatar", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE conversations SET avatar_url = $1 WHERE id = $2`, avatarURL, id)
	if err != nil {
		return fmt.Errorf("convRepo.UpdateAvatar: %w", err)
	}
	return nil
}

// ListForUser returns the conversations the user participates in and has not
// hidden, ordered by latest activity (newest message, else creation time).
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conv.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.kind, c.name, c.avatar_url, c.created_by, c.created_at
		 FROM conversations c
		 JOIN participants p ON p.conversation_id = c.id
		 LEFT JOIN messages m ON m.conversation_id = c.id AND m.seq = c.last_message_seq
		 WHERE p.user_id = $1 AND p.hidden_at IS NULL
		 ORDER BY COALESCE(m.created_at, c.created_at) DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0, 16)
	for rows.Next() {
		var c model.Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, fmt.Errorf("convRepo.ListForUser scan: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("convRepo.ListForUser rows: %w", err)
	}
	return convs, nil
}

// Hide soft-removes the conversation from one participant's view. Other
// participants and the message log are untouched. Idempotent.
func (r *ConversationRepository) Hide(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conv.Hide", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET hidden_at = COALESCE(hidden_at, NOW())
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Hide: %w", err)
	}
	return nil
}

// Unhide restores the participant's view, e.g. when they send into a
// conversation they had hidden. Idempotent.
func (r *ConversationRepository) Unhide(ctx context.Context, conversationID, userID string) error {
	defer logger.DeferLogDuration("conv.Unhide", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE participants SET hidden_at = NULL
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("convRepo.Unhide: %w", err)
	}
	return nil
}
