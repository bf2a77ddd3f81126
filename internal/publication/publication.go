// Package publication runs the "publication" queue: it turns pending
// drafts into published articles. Jobs are dispatched by the schedule
// queue's pending-draft scan and by API mutations outside this repo.
package publication

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/pkg/queue"
)

// QueueName is the broker queue this package serves.
const QueueName = "publication"

// JobPublishArticle publishes a single pending draft.
const JobPublishArticle = "publish_article"

var (
	// ErrGatewayNil is returned when a constructor receives a nil gateway.
	ErrGatewayNil = errors.New("publication: draft gateway cannot be nil")

	// ErrQueueNil is returned when a constructor receives a nil queue.
	ErrQueueNil = errors.New("publication: queue cannot be nil")

	// ErrDraftIDEmpty is returned when a publish job has no draft id.
	ErrDraftIDEmpty = errors.New("publication: draft id cannot be empty")
)

// PublishPayload is the payload of a publish_article job.
type PublishPayload struct {
	DraftID uuid.UUID `json:"draft_id"`
}

// PublishResult is the job result.
type PublishResult struct {
	DraftID   uuid.UUID `json:"draft_id"`
	Published bool      `json:"published"`
}

// DraftGateway flips drafts to published. MarkDraftPublished reports
// false when the draft is missing or no longer pending.
type DraftGateway interface {
	MarkDraftPublished(ctx context.Context, draftID uuid.UUID) (bool, error)
}

// Producer enqueues publication jobs.
type Producer struct {
	q *queue.Queue
}

// NewProducer creates a producer on the publication queue.
func NewProducer(q *queue.Queue) (*Producer, error) {
	if q == nil {
		return nil, ErrQueueNil
	}
	return &Producer{q: q}, nil
}

// PublishArticle enqueues a high-priority publish job for the draft,
// optionally held back by delay.
func (p *Producer) PublishArticle(ctx context.Context, draftID uuid.UUID, delay time.Duration) (*queue.Job, error) {
	if draftID == uuid.Nil {
		return nil, ErrDraftIDEmpty
	}

	opts := []queue.EnqueueOption{queue.WithPriority(queue.PriorityHigh)}
	if delay > 0 {
		opts = append(opts, queue.WithDelay(delay))
	}
	return p.q.Enqueue(ctx, JobPublishArticle, PublishPayload{DraftID: draftID}, opts...)
}

// Service owns the publication handlers.
type Service struct {
	drafts DraftGateway
	log    *slog.Logger
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

// NewService creates the publication service.
func NewService(drafts DraftGateway, opts ...ServiceOption) (*Service, error) {
	if drafts == nil {
		return nil, ErrGatewayNil
	}
	s := &Service{drafts: drafts, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register binds the publication handlers to the queue.
func (s *Service) Register(q *queue.Queue) error {
	if q == nil {
		return ErrQueueNil
	}
	return q.Register(queue.NewHandler(JobPublishArticle, s.publishArticle))
}

// publishArticle re-checks that the draft is still pending before
// flipping it, so a re-executed job after a worker crash cannot publish
// twice.
func (s *Service) publishArticle(ctx context.Context, job *queue.JobContext, payload PublishPayload) (any, error) {
	if payload.DraftID == uuid.Nil {
		return nil, ErrDraftIDEmpty
	}

	published, err := s.drafts.MarkDraftPublished(ctx, payload.DraftID)
	if err != nil {
		return nil, err
	}
	if !published {
		s.log.InfoContext(ctx, "draft no longer pending, skipping",
			slog.String("draft_id", payload.DraftID.String()),
			slog.String("job_id", job.ID().String()),
		)
	}
	return PublishResult{DraftID: payload.DraftID, Published: published}, nil
}
