package platform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ActivatableUsers returns ids of onboarding users ready to be
// activated.
func (s *Store) ActivatableUsers(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM users
		WHERE state = $1
		ORDER BY created_at`,
		UserStateOnboarding,
	)
	if err != nil {
		return nil, fmt.Errorf("platform: query activatable users: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("platform: scan user id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("platform: iterate users: %w", err)
	}
	return out, nil
}

// ActivateUser moves an onboarding user to active.
func (s *Store) ActivateUser(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET state = $1, updated_at = now()
		WHERE id = $2 AND state = $3`,
		UserStateActive, userID, UserStateOnboarding,
	)
	if err != nil {
		return fmt.Errorf("platform: activate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s is not onboarding", ErrNotFound, userID)
	}
	return nil
}

// SetUserState forces a user into the given lifecycle state.
func (s *Store) SetUserState(ctx context.Context, userID uuid.UUID, state string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET state = $1, updated_at = now()
		WHERE id = $2`,
		state, userID,
	)
	if err != nil {
		return fmt.Errorf("platform: set user state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}
