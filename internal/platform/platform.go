// Package platform holds the Postgres gateways the background jobs read
// and write platform state through: drafts, users, assets and punish
// records.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDBNil is returned when a constructor receives a nil database.
	ErrDBNil = errors.New("platform: db cannot be nil")

	// ErrNotFound is returned when a targeted row does not exist.
	ErrNotFound = errors.New("platform: record not found")
)

// User lifecycle states.
const (
	UserStateOnboarding = "onboarding"
	UserStateActive     = "active"
	UserStateBanned     = "banned"
	UserStateArchived   = "archived"
)

// Draft publish states.
const (
	PublishStateUnpublished = "unpublished"
	PublishStatePending     = "pending"
	PublishStatePublished   = "published"
	PublishStateError       = "error"
)

// Asset types owned directly by a user profile.
const (
	AssetTypeAvatar            = "avatar"
	AssetTypeProfileCover      = "profile_cover"
	AssetTypeOAuthClientAvatar = "oauth_client_avatar"
	AssetTypeEmbed             = "embed"
)

// Draft is an article draft row.
type Draft struct {
	ID           uuid.UUID
	AuthorID     uuid.UUID
	Title        string
	PublishState string
	ArticleID    *uuid.UUID
	ScheduledAt  *time.Time
	CreatedAt    time.Time
}

// Asset is an uploaded file row; Path locates the file in the object
// store.
type Asset struct {
	ID       uuid.UUID
	AuthorID uuid.UUID
	Type     string
	Path     string
	DraftID  *uuid.UUID
}

// PunishRecord tracks a moderation action against a user.
type PunishRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	State     string
	ExpiredAt time.Time
	Archived  bool
}

// DigestRecipient is a user eligible for the daily summary email.
type DigestRecipient struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed gateway.
type Store struct {
	db DB
}

// NewStore creates a store on the given connection pool.
func NewStore(db DB) (*Store, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	return &Store{db: db}, nil
}
