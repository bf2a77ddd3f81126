package platform

import (
	"context"
	"fmt"
	"time"
)

// DigestRecipients returns active users holding unread notices created
// since the given moment, each at most once.
func (s *Store) DigestRecipients(ctx context.Context, since time.Time) ([]DigestRecipient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT u.id, u.email, u.display_name
		FROM users u
		JOIN notices n ON n.user_id = u.id
		WHERE u.state = $1
		  AND u.email <> ''
		  AND n.read = false
		  AND n.created_at >= $2`,
		UserStateActive, since,
	)
	if err != nil {
		return nil, fmt.Errorf("platform: query digest recipients: %w", err)
	}
	defer rows.Close()

	var out []DigestRecipient
	for rows.Next() {
		var r DigestRecipient
		if err := rows.Scan(&r.UserID, &r.Email, &r.DisplayName); err != nil {
			return nil, fmt.Errorf("platform: scan digest recipient: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("platform: iterate digest recipients: %w", err)
	}
	return out, nil
}
