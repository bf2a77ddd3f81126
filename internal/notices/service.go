package notices

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service is the write-side entry point for notices.
type Service struct {
	storage Storage
	log     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a notice service on the given storage.
func NewService(storage Storage, opts ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	s := &Service{storage: storage, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Trigger records a notice of the given category for the recipient.
// actorID may be nil for system-originated notices.
func (s *Service) Trigger(ctx context.Context, category Category, recipientID uuid.UUID, actorID *uuid.UUID) error {
	if !category.Valid() {
		return ErrInvalidCategory
	}
	if recipientID == uuid.Nil {
		return ErrInvalidRecipient
	}

	notice := &Notice{
		UserID:   recipientID,
		Category: category,
		ActorID:  actorID,
	}
	if err := s.storage.Create(ctx, notice); err != nil {
		return err
	}

	s.log.DebugContext(ctx, "notice created",
		slog.String("category", string(category)),
		slog.String("user_id", recipientID.String()),
	)
	return nil
}

// UnreadByUser returns the recipient's unread notices since the given
// moment, for digest rendering.
func (s *Service) UnreadByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]*Notice, error) {
	return s.storage.UnreadByUser(ctx, userID, since)
}
