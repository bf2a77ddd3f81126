package platform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const draftColumns = "id, author_id, title, publish_state, article_id, scheduled_at, created_at"

func (s *Store) scanDrafts(ctx context.Context, sql string, args ...any) ([]Draft, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("platform: query drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.AuthorID, &d.Title, &d.PublishState, &d.ArticleID, &d.ScheduledAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("platform: scan draft: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("platform: iterate drafts: %w", err)
	}
	return out, nil
}

// PendingDrafts returns drafts queued for publication, oldest first.
func (s *Store) PendingDrafts(ctx context.Context) ([]Draft, error) {
	return s.scanDrafts(ctx, `
		SELECT `+draftColumns+`
		FROM drafts
		WHERE publish_state = $1
		ORDER BY created_at`,
		PublishStatePending,
	)
}

// MarkDraftPublished flips a pending draft to published. It reports
// false when the draft is missing or no longer pending, which makes
// re-executions of the publish job harmless.
func (s *Store) MarkDraftPublished(ctx context.Context, draftID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drafts
		SET publish_state = $1, updated_at = now()
		WHERE id = $2 AND publish_state = $3`,
		PublishStatePublished, draftID, PublishStatePending,
	)
	if err != nil {
		return false, fmt.Errorf("platform: mark draft published: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UnlinkedDraftsByAuthor returns the author's drafts that never became
// an article.
func (s *Store) UnlinkedDraftsByAuthor(ctx context.Context, authorID uuid.UUID) ([]Draft, error) {
	return s.scanDrafts(ctx, `
		SELECT `+draftColumns+`
		FROM drafts
		WHERE author_id = $1 AND article_id IS NULL`,
		authorID,
	)
}

// DeleteDrafts removes the given draft rows.
func (s *Store) DeleteDrafts(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM drafts WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("platform: delete drafts: %w", err)
	}
	return nil
}
