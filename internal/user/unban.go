package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/internal/notices"
	"github.com/inkpress/stagehand/internal/platform"
	"github.com/inkpress/stagehand/pkg/queue"
)

// UnbanResult is the job result.
type UnbanResult struct {
	Unbanned []uuid.UUID `json:"unbanned"`
	Failed   int         `json:"failed"`
}

// unbanUsers lifts every ban whose term has passed: the user goes back
// to active, the punish record is archived so the next sweep skips it,
// and the user gets an unban notice. Per-record failures are isolated.
func (s *Service) unbanUsers(ctx context.Context, _ *queue.JobContext, _ struct{}) (any, error) {
	records, err := s.bans.ExpiredBans(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	result := UnbanResult{Unbanned: []uuid.UUID{}}
	for _, record := range records {
		if err := s.unbanOne(ctx, record); err != nil {
			result.Failed++
			s.log.ErrorContext(ctx, "failed to lift expired ban",
				slog.String("punish_record_id", record.ID.String()),
				slog.String("user_id", record.UserID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Unbanned = append(result.Unbanned, record.UserID)
	}

	if len(records) > 0 {
		s.log.InfoContext(ctx, "unban sweep finished",
			slog.Int("unbanned", len(result.Unbanned)),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *Service) unbanOne(ctx context.Context, record platform.PunishRecord) error {
	if err := s.users.SetUserState(ctx, record.UserID, platform.UserStateActive); err != nil {
		return err
	}
	if err := s.bans.ArchivePunishRecord(ctx, record.ID); err != nil {
		return err
	}
	if err := s.notifier.Trigger(ctx, notices.CategoryUserUnbanned, record.UserID, nil); err != nil {
		s.log.ErrorContext(ctx, "failed to record unban notice",
			slog.String("user_id", record.UserID.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
