// Package directory reads the platform's user directory. The directory is an
// external collaborator: this package looks up and searches users but never
// writes them.
package directory

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

var ErrNotFound = errors.New("user not found")

// Directory is the lookup surface the messaging service needs from the
// platform's user store.
type Directory interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.User, error)
	Search(ctx context.Context, term string, limit int) ([]model.User, error)
}

const userCols = `id, full_name, email, avatar_url, user_type, created_at`

// PgDirectory reads the users table the platform maintains in the shared
// Postgres.
type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.FullName, &u.Email, &u.AvatarURL, &u.UserType, &u.CreatedAt)
}

func (d *PgDirectory) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("dir.GetByID", time.Now())()
	u := &model.User{}
	row := d.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("directory.GetByID: %w", err)
	}
	return u, nil
}

func (d *PgDirectory) GetByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	defer logger.DeferLogDuration("dir.GetByIDs", time.Now())()
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT `+userCols+` FROM users WHERE id = ANY($1) ORDER BY full_name`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("directory.GetByIDs query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, len(ids))
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("directory.GetByIDs scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory.GetByIDs rows: %w", err)
	}
	return users, nil
}

func (d *PgDirectory) Search(ctx context.Context, term string, limit int) ([]model.User, error) {
	defer logger.DeferLogDuration("dir.Search", time.Now())()
	rows, err := d.pool.Query(ctx,
		`SELECT `+userCols+` FROM users
		 WHERE full_name ILIKE $1 OR email ILIKE $1
		 ORDER BY full_name LIMIT $2`,
		"%"+term+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("directory.Search query: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("directory.Search scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory.Search rows: %w", err)
	}
	return users, nil
}
