// Package schedule runs the "schedule" queue: the recurring maintenance
// jobs of the platform. It scans pending drafts for publication,
// refreshes materialized views and sends the daily summary email.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/internal/notices"
	"github.com/inkpress/stagehand/internal/platform"
	"github.com/inkpress/stagehand/internal/views"
	"github.com/inkpress/stagehand/pkg/email"
	"github.com/inkpress/stagehand/pkg/queue"
)

// QueueName is the broker queue this package serves.
const QueueName = "schedule"

// Job types of the schedule queue.
const (
	JobPublishPendingDrafts  = "publish_pending_drafts"
	JobRefreshView           = "refresh_view"
	JobSendDailySummaryEmail = "send_daily_summary_email"
)

var (
	// ErrDependencyNil is returned when a constructor receives a nil
	// collaborator.
	ErrDependencyNil = errors.New("schedule: dependency cannot be nil")

	// ErrQueueNil is returned when registering on a nil queue.
	ErrQueueNil = errors.New("schedule: queue cannot be nil")
)

// DraftSource lists drafts queued for publication.
type DraftSource interface {
	PendingDrafts(ctx context.Context) ([]platform.Draft, error)
}

// Publisher dispatches publication jobs for individual drafts.
type Publisher interface {
	PublishArticle(ctx context.Context, draftID uuid.UUID, delay time.Duration) (*queue.Job, error)
}

// ViewRefresher refreshes a single materialized view.
type ViewRefresher interface {
	Refresh(ctx context.Context, view views.View) error
}

// RecipientSource lists users eligible for the daily summary email.
type RecipientSource interface {
	DigestRecipients(ctx context.Context, since time.Time) ([]platform.DigestRecipient, error)
}

// NoticeSource reads a user's unread notices.
type NoticeSource interface {
	UnreadByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]*notices.Notice, error)
}

// Service owns the schedule queue's handlers and recurring table.
type Service struct {
	drafts     DraftSource
	publisher  Publisher
	refresher  ViewRefresher
	recipients RecipientSource
	notices    NoticeSource
	mailer     email.EmailSender

	loc          *time.Location
	digestWindow time.Duration
	fanoutLimit  int
	log          *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLocation pins the daily schedules to a timezone.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDigestWindow sets how far back the digest looks for unread
// notices.
func WithDigestWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.digestWindow = d
		}
	}
}

// WithFanoutLimit caps concurrent digest deliveries.
func WithFanoutLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.fanoutLimit = n
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

// NewService creates the schedule service.
func NewService(
	drafts DraftSource,
	publisher Publisher,
	refresher ViewRefresher,
	recipients RecipientSource,
	noticeSource NoticeSource,
	mailer email.EmailSender,
	opts ...ServiceOption,
) (*Service, error) {
	if drafts == nil || publisher == nil || refresher == nil || recipients == nil || noticeSource == nil || mailer == nil {
		return nil, ErrDependencyNil
	}
	s := &Service{
		drafts:       drafts,
		publisher:    publisher,
		refresher:    refresher,
		recipients:   recipients,
		notices:      noticeSource,
		mailer:       mailer,
		loc:          time.UTC,
		digestWindow: 24 * time.Hour,
		fanoutLimit:  10,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register binds the handlers and declares the recurring table on the
// queue. The definitions go live when the queue starts.
func (s *Service) Register(q *queue.Queue) error {
	if q == nil {
		return ErrQueueNil
	}

	if err := q.Register(queue.NewHandler(JobPublishPendingDrafts, s.publishPendingDrafts)); err != nil {
		return err
	}
	if err := q.Register(queue.NewHandler(JobRefreshView, s.refreshView)); err != nil {
		return err
	}
	if err := q.Register(queue.NewHandler(JobSendDailySummaryEmail, s.sendDailySummaryEmail)); err != nil {
		return err
	}

	defs := []queue.RepeatDefinition{
		{
			Type:     JobPublishPendingDrafts,
			Schedule: queue.EveryMinutes(20),
			Priority: queue.PriorityHigh,
		},
		{
			Type:     JobRefreshView,
			Payload:  RefreshViewPayload{View: string(views.ViewArticleActivity)},
			Schedule: queue.EveryMinutes(2),
			Priority: queue.PriorityMedium,
		},
		{
			Type:     JobRefreshView,
			Payload:  RefreshViewPayload{View: string(views.ViewArticleCount)},
			Schedule: queue.EveryMinutes(66),
			Priority: queue.PriorityMedium,
		},
		{
			Type:     JobRefreshView,
			Payload:  RefreshViewPayload{View: string(views.ViewTagCount)},
			Schedule: queue.EveryMinutes(186),
			Priority: queue.PriorityMedium,
		},
		{
			Type:     JobRefreshView,
			Payload:  RefreshViewPayload{View: string(views.ViewUserReader)},
			Schedule: queue.DailyAt(3, 0, s.loc),
			Priority: queue.PriorityMedium,
		},
		{
			Type:     JobSendDailySummaryEmail,
			Schedule: queue.DailyAt(9, 0, s.loc),
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
