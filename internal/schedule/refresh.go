package schedule

import (
	"context"
	"fmt"

	"github.com/inkpress/stagehand/internal/views"
	"github.com/inkpress/stagehand/pkg/queue"
)

// RefreshViewPayload names the materialized view a refresh_view job
// targets.
type RefreshViewPayload struct {
	View string `json:"view"`
}

// RefreshViewResult is the job result.
type RefreshViewResult struct {
	View string `json:"view"`
}

func (s *Service) refreshView(ctx context.Context, _ *queue.JobContext, payload RefreshViewPayload) (any, error) {
	view := views.View(payload.View)
	if !view.Valid() {
		return nil, fmt.Errorf("%w: %q", views.ErrUnknownView, payload.View)
	}
	if err := s.refresher.Refresh(ctx, view); err != nil {
		return nil, err
	}
	return RefreshViewResult{View: payload.View}, nil
}
