package notices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the storage needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgStorage is the Postgres-backed Storage.
type PgStorage struct {
	db DB
}

// NewPgStorage creates a storage on the given connection pool.
func NewPgStorage(db DB) (*PgStorage, error) {
	if db == nil {
		return nil, ErrStorageNil
	}
	return &PgStorage{db: db}, nil
}

// Create implements Storage.
func (s *PgStorage) Create(ctx context.Context, notice *Notice) error {
	if notice.ID == uuid.Nil {
		notice.ID = uuid.New()
	}
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO notices (id, user_id, category, actor_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		notice.ID, notice.UserID, string(notice.Category), notice.ActorID, notice.Read, notice.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("notices: insert notice: %w", err)
	}
	return nil
}

// UnreadByUser implements Storage.
func (s *PgStorage) UnreadByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]*Notice, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, category, actor_id, read, created_at
		FROM notices
		WHERE user_id = $1 AND read = false AND created_at >= $2
		ORDER BY created_at`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("notices: query unread: %w", err)
	}
	defer rows.Close()

	var out []*Notice
	for rows.Next() {
		var (
			n        Notice
			category string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &category, &n.ActorID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notices: scan notice: %w", err)
		}
		n.Category = Category(category)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notices: iterate unread: %w", err)
	}
	return out, nil
}
