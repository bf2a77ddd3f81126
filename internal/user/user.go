// Package user runs the "user" queue: account archival and the
// recurring lifecycle sweeps (onboarding activation, ban expiry).
package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/internal/notices"
	"github.com/inkpress/stagehand/internal/platform"
	"github.com/inkpress/stagehand/pkg/queue"
)

// QueueName is the broker queue this package serves.
const QueueName = "user"

// Job types of the user queue.
const (
	JobArchiveUser             = "archive_user"
	JobActivateOnboardingUsers = "activate_onboarding_users"
	JobUnbanUsers              = "unban_users"
)

var (
	// ErrDependencyNil is returned when a constructor receives a nil
	// collaborator.
	ErrDependencyNil = errors.New("user: dependency cannot be nil")

	// ErrQueueNil is returned when registering on a nil queue.
	ErrQueueNil = errors.New("user: queue cannot be nil")

	// ErrUserIDEmpty is returned when an archive job has no user id.
	ErrUserIDEmpty = errors.New("user: user id cannot be empty")
)

// Drafts reads and removes a user's draft rows.
type Drafts interface {
	UnlinkedDraftsByAuthor(ctx context.Context, authorID uuid.UUID) ([]platform.Draft, error)
	DeleteDrafts(ctx context.Context, ids []uuid.UUID) error
}

// Assets reads and removes asset rows.
type Assets interface {
	AssetsByAuthorAndTypes(ctx context.Context, authorID uuid.UUID, types []string) ([]platform.Asset, error)
	AssetsByDrafts(ctx context.Context, draftIDs []uuid.UUID) ([]platform.Asset, error)
	DeleteAssets(ctx context.Context, ids []uuid.UUID) error
}

// Files removes asset files from the object store.
type Files interface {
	DeletePaths(ctx context.Context, paths []string) error
}

// Users mutates user lifecycle state.
type Users interface {
	ActivatableUsers(ctx context.Context) ([]uuid.UUID, error)
	ActivateUser(ctx context.Context, userID uuid.UUID) error
	SetUserState(ctx context.Context, userID uuid.UUID, state string) error
}

// Bans reads and archives punish records.
type Bans interface {
	ExpiredBans(ctx context.Context, now time.Time) ([]platform.PunishRecord, error)
	ArchivePunishRecord(ctx context.Context, id uuid.UUID) error
}

// Notifier records lifecycle notices.
type Notifier interface {
	Trigger(ctx context.Context, category notices.Category, recipientID uuid.UUID, actorID *uuid.UUID) error
}

// Service owns the user queue's handlers and recurring table.
type Service struct {
	drafts   Drafts
	assets   Assets
	files    Files
	users    Users
	bans     Bans
	notifier Notifier

	loc *time.Location
	log *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLocation pins the daily unban sweep to a timezone.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the user service.
func NewService(drafts Drafts, assets Assets, files Files, users Users, bans Bans, notifier Notifier, opts ...ServiceOption) (*Service, error) {
	if drafts == nil || assets == nil || files == nil || users == nil || bans == nil || notifier == nil {
		return nil, ErrDependencyNil
	}
	s := &Service{
		drafts:   drafts,
		assets:   assets,
		files:    files,
		users:    users,
		bans:     bans,
		notifier: notifier,
		loc:      time.UTC,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register binds the handlers and declares the recurring table on the
// queue.
func (s *Service) Register(q *queue.Queue) error {
	if q == nil {
		return ErrQueueNil
	}

	if err := q.Register(queue.NewHandler(JobArchiveUser, s.archiveUser)); err != nil {
		return err
	}
	if err := q.Register(queue.NewHandler(JobActivateOnboardingUsers, s.activateOnboardingUsers)); err != nil {
		return err
	}
	if err := q.Register(queue.NewHandler(JobUnbanUsers, s.unbanUsers)); err != nil {
		return err
	}

	defs := []queue.RepeatDefinition{
		{
			Type:     JobActivateOnboardingUsers,
			Schedule: queue.EveryMinutes(2),
			Priority: queue.PriorityMedium,
		},
		{
			Type:     JobUnbanUsers,
			Schedule: queue.DailyAt(0, 0, s.loc),
			Priority: queue.PriorityMedium,
		},
	}
	for _, def := range defs {
		if err := q.Repeat(def); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveUserPayload is the payload of an archive_user job.
type ArchiveUserPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// Producer enqueues one-off user jobs.
type Producer struct {
	q *queue.Queue
}

// NewProducer creates a producer on the user queue.
func NewProducer(q *queue.Queue) (*Producer, error) {
	if q == nil {
		return nil, ErrQueueNil
	}
	return &Producer{q: q}, nil
}

// ArchiveUser enqueues an archive job for the user. The job runs at
// most once: a partially applied deletion is not blindly re-playable.
func (p *Producer) ArchiveUser(ctx context.Context, userID uuid.UUID) (*queue.Job, error) {
	if userID == uuid.Nil {
		return nil, ErrUserIDEmpty
	}
	return p.q.Enqueue(ctx, JobArchiveUser, ArchiveUserPayload{UserID: userID}, queue.WithMaxAttempts(1))
}
