package platform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const assetColumns = "id, author_id, type, path, draft_id"

func (s *Store) scanAssets(ctx context.Context, sql string, args ...any) ([]Asset, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("platform: query assets: %w", err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.Type, &a.Path, &a.DraftID); err != nil {
			return nil, fmt.Errorf("platform: scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("platform: iterate assets: %w", err)
	}
	return out, nil
}

// AssetsByAuthorAndTypes returns the author's assets of the given types.
func (s *Store) AssetsByAuthorAndTypes(ctx context.Context, authorID uuid.UUID, types []string) ([]Asset, error) {
	if len(types) == 0 {
		return nil, nil
	}
	return s.scanAssets(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE author_id = $1 AND type = ANY($2)`,
		authorID, types,
	)
}

// AssetsByDrafts returns the assets embedded in the given drafts.
func (s *Store) AssetsByDrafts(ctx context.Context, draftIDs []uuid.UUID) ([]Asset, error) {
	if len(draftIDs) == 0 {
		return nil, nil
	}
	return s.scanAssets(ctx, `
		SELECT `+assetColumns+`
		FROM assets
		WHERE draft_id = ANY($1)`,
		draftIDs,
	)
}

// DeleteAssets removes the given asset rows. File removal from the
// object store is the caller's responsibility.
func (s *Store) DeleteAssets(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM assets WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("platform: delete assets: %w", err)
	}
	return nil
}
