package user

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/internal/notices"
	"github.com/inkpress/stagehand/pkg/queue"
)

// ActivateResult is the job result.
type ActivateResult struct {
	Activated []uuid.UUID `json:"activated"`
	Failed    int         `json:"failed"`
}

// activateOnboardingUsers moves every activatable onboarding user to
// active and records a lifecycle notice. Failures for one user never
// block the others.
func (s *Service) activateOnboardingUsers(ctx context.Context, _ *queue.JobContext, _ struct{}) (any, error) {
	ids, err := s.users.ActivatableUsers(ctx)
	if err != nil {
		return nil, err
	}

	result := ActivateResult{Activated: []uuid.UUID{}}
	for _, id := range ids {
		if err := s.users.ActivateUser(ctx, id); err != nil {
			result.Failed++
			s.log.ErrorContext(ctx, "failed to activate user",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := s.notifier.Trigger(ctx, notices.CategoryUserActivated, id, nil); err != nil {
			// The activation itself stuck; losing the notice is logged,
			// not fatal.
			s.log.ErrorContext(ctx, "failed to record activation notice",
				slog.String("user_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
		result.Activated = append(result.Activated, id)
	}

	if len(ids) > 0 {
		s.log.InfoContext(ctx, "onboarding activation sweep finished",
			slog.Int("activated", len(result.Activated)),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}
