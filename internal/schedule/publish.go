package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/pkg/queue"
)

// PublishScanResult summarizes one pending-draft scan.
type PublishScanResult struct {
	Published []uuid.UUID `json:"published"`
	Skipped   []uuid.UUID `json:"skipped"`
	Failed    int         `json:"failed"`
}

// publishPendingDrafts dispatches a publication job for every pending
// draft whose scheduled time has arrived. Drafts scheduled for the
// future are left for a later scan. A dispatch failure for one draft
// never blocks the others.
func (s *Service) publishPendingDrafts(ctx context.Context, job *queue.JobContext, _ struct{}) (any, error) {
	drafts, err := s.drafts.PendingDrafts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := PublishScanResult{
		Published: []uuid.UUID{},
		Skipped:   []uuid.UUID{},
	}
	for i, draft := range drafts {
		_ = job.Progress(ctx, i*100/len(drafts))

		if draft.ScheduledAt != nil && draft.ScheduledAt.After(now) {
			result.Skipped = append(result.Skipped, draft.ID)
			continue
		}

		if _, err := s.publisher.PublishArticle(ctx, draft.ID, 0); err != nil {
			result.Failed++
			s.log.ErrorContext(ctx, "failed to dispatch publication job",
				slog.String("draft_id", draft.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Published = append(result.Published, draft.ID)
	}
	_ = job.Progress(ctx, 100)

	s.log.InfoContext(ctx, "pending draft scan finished",
		slog.Int("published", len(result.Published)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}
