package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExpiredBans returns live ban records whose term has passed.
func (s *Store) ExpiredBans(ctx context.Context, now time.Time) ([]PunishRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, state, expired_at, archived
		FROM punish_records
		WHERE state = $1 AND archived = false AND expired_at <= $2
		ORDER BY expired_at`,
		UserStateBanned, now,
	)
	if err != nil {
		return nil, fmt.Errorf("platform: query expired bans: %w", err)
	}
	defer rows.Close()

	var out []PunishRecord
	for rows.Next() {
		var r PunishRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.State, &r.ExpiredAt, &r.Archived); err != nil {
			return nil, fmt.Errorf("platform: scan punish record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("platform: iterate punish records: %w", err)
	}
	return out, nil
}

// ArchivePunishRecord marks a punish record as handled so the next
// unban sweep skips it.
func (s *Store) ArchivePunishRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE punish_records
		SET archived = true
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("platform: archive punish record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: punish record %s", ErrNotFound, id)
	}
	return nil
}
