package user

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkpress/stagehand/internal/platform"
	"github.com/inkpress/stagehand/pkg/async"
	"github.com/inkpress/stagehand/pkg/queue"
)

// ArchiveUserResult is the job result.
type ArchiveUserResult struct {
	UserID        uuid.UUID `json:"user_id"`
	DraftsDeleted int       `json:"drafts_deleted"`
	AssetsDeleted int       `json:"assets_deleted"`
}

var profileAssetTypes = []string{
	platform.AssetTypeAvatar,
	platform.AssetTypeProfileCover,
	platform.AssetTypeOAuthClientAvatar,
}

// archiveUser removes the archived user's leftover content: unlinked
// drafts with their embedded asset files first, profile assets second.
// Any error fails the job; with a single attempt there is no retry, so
// a partial deletion surfaces for manual follow-up instead of being
// re-played.
func (s *Service) archiveUser(ctx context.Context, job *queue.JobContext, payload ArchiveUserPayload) (any, error) {
	if payload.UserID == uuid.Nil {
		return nil, ErrUserIDEmpty
	}

	// The profile-asset lookup is independent of the draft cleanup, so
	// it runs while the drafts are processed.
	profileFut := async.Go(ctx, func(ctx context.Context) ([]platform.Asset, error) {
		return s.assets.AssetsByAuthorAndTypes(ctx, payload.UserID, profileAssetTypes)
	})

	drafts, err := s.drafts.UnlinkedDraftsByAuthor(ctx, payload.UserID)
	if err != nil {
		return nil, err
	}
	draftIDs := make([]uuid.UUID, 0, len(drafts))
	for _, d := range drafts {
		draftIDs = append(draftIDs, d.ID)
	}

	draftAssets, err := s.assets.AssetsByDrafts(ctx, draftIDs)
	if err != nil {
		return nil, err
	}
	if err := s.deleteAssets(ctx, draftAssets); err != nil {
		return nil, err
	}
	if err := s.drafts.DeleteDrafts(ctx, draftIDs); err != nil {
		return nil, err
	}
	_ = job.Progress(ctx, 50)

	profileAssets, err := profileFut.Await()
	if err != nil {
		return nil, err
	}
	if err := s.deleteAssets(ctx, profileAssets); err != nil {
		return nil, err
	}
	_ = job.Progress(ctx, 100)

	return ArchiveUserResult{
		UserID:        payload.UserID,
		DraftsDeleted: len(draftIDs),
		AssetsDeleted: len(draftAssets) + len(profileAssets),
	}, nil
}

// deleteAssets removes the files first so a failure leaves the rows in
// place as a pointer to what still needs cleaning up.
func (s *Service) deleteAssets(ctx context.Context, list []platform.Asset) error {
	if len(list) == 0 {
		return nil
	}

	paths := make([]string, 0, len(list))
	ids := make([]uuid.UUID, 0, len(list))
	for _, a := range list {
		paths = append(paths, a.Path)
		ids = append(ids, a.ID)
	}

	if err := s.files.DeletePaths(ctx, paths); err != nil {
		return err
	}
	return s.assets.DeleteAssets(ctx, ids)
}
