package repository

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuslink/internal/logger"
	"github.com/campuslink/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

const messageCols = `m.id, m.conversation_id, m.sender_id, m.seq, m.content, m.message_type, m.is_important, m.created_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Seq, &m.Content, &m.MessageType, &m.IsImportant, &m.CreatedAt)
}

// Append inserts a message with the next sequence number for the
// conversation. The counter bump and the insert share one transaction, so
// two concurrent appends can never collide on a sequence and a sequence is
// only consumed if its message commits.
func (r *MessageRepository) Append(ctx context.Context, conversationID, senderID, content string, msgType model.MessageType, isImportant bool) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Append", time.Now())()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	err = tx.QueryRow(ctx,
		`UPDATE conversations SET last_message_seq = last_message_seq + 1
		 WHERE id = $1 RETURNING last_message_seq`, conversationID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Append seq: %w", err)
	}

	m := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Seq:            seq,
		Content:        content,
		MessageType:    msgType,
		IsImportant:    isImportant,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, seq, content, message_type, is_important, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, m.Seq, m.Content, m.MessageType, m.IsImportant, m.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("msgRepo.Append insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("msgRepo.Append commit: %w", err)
	}
	return m, nil
}

// Page returns messages newest-first, keyset-paginated on (seq, id) so the
// page boundary stays stable while new messages keep arriving. An empty
// cursor starts from the newest message.
func (r *MessageRepository) Page(ctx context.Context, conversationID string, cursor Cursor, limit int) ([]model.Message, Cursor, error) {
	defer logger.DeferLogDuration("msg.Page", time.Now())()

	var (
		rows pgx.Rows
		err  error
	)
	if cursor.IsZero() {
		rows, err = r.pool.Query(ctx,
			`SELECT `+messageCols+` FROM messages m
			 WHERE m.conversation_id = $1
			 ORDER BY m.seq DESC, m.id DESC
			 LIMIT $2`, conversationID, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+messageCols+` FROM messages m
			 WHERE m.conversation_id = $1 AND (m.seq, m.id) < ($2, $3::uuid)
			 ORDER BY m.seq DESC, m.id DESC
			 LIMIT $4`, conversationID, cursor.Seq, cursor.ID, limit,
		)
	}
	if err != nil {
		return nil, Cursor{}, fmt.Errorf("msgRepo.Page query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, Cursor{}, fmt.Errorf("msgRepo.Page scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, Cursor{}, fmt.Errorf("msgRepo.Page rows: %w", err)
	}

	var next Cursor
	if len(messages) == limit {
		last := messages[len(messages)-1]
		next = Cursor{Seq: last.Seq, ID: last.ID}
	}
	return messages, next, nil
}

// Last returns the newest message of a conversation, or nil if empty.
func (r *MessageRepository) Last(ctx context.Context, conversationID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Last", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages m
		 WHERE m.conversation_id = $1
		 ORDER BY m.seq DESC, m.id DESC
		 LIMIT 1`, conversationID,
	)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgRepo.Last: %w", err)
	}
	return m, nil
}

// Cursor is the opaque pagination position: the (seq, id) of the last
// message on the previous page.
type Cursor struct {
	Seq int64
	ID  string
}

func (c Cursor) IsZero() bool { return c.Seq == 0 && c.ID == "" }

// Encode renders the cursor in its opaque wire form. Zero encodes to "".
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(c.Seq, 10) + ":" + c.ID))
}

// DecodeCursor parses a wire cursor. "" means start from the newest message.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	seqStr, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, errors.New("decode cursor: malformed")
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil || seq <= 0 || id == "" {
		return Cursor{}, errors.New("decode cursor: malformed")
	}
	return Cursor{Seq: seq, ID: id}, nil
}
