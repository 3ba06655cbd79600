package database

import (
	"context"

	"github.com/google/uuid"
)

func (r *Repository) CreateShare(ctx context.Context, s *FileSharing) error {
	return translateError(r.conn(ctx).Omit("File", "Folder", "SharedBy", "SharedTo").Create(s).Error)
}

// ListSharesTo returns the grants received by user, most recent first.
func (r *Repository) ListSharesTo(ctx context.Context, user uuid.UUID) ([]*FileSharing, error) {
	var res []*FileSharing
	return res, r.conn(ctx).
		Preload("File").
		Preload("File.Owner").
		Preload("File.Category").
		Preload("File.Tags").
		Preload("Folder").
		Preload("Folder.Owner").
		Preload("SharedBy").
		Where("shared_to_id = ?", user).
		Order("shared_at DESC").
		Find(&res).Error
}

func (r *Repository) CountUnseen(ctx context.Context, user uuid.UUID) (int64, error) {
	var n int64
	return n, r.conn(ctx).Model(&FileSharing{}).
		Where("shared_to_id = ? AND is_seen = ?", user, false).
		Count(&n).Error
}

func (r *Repository) MarkAllSeen(ctx context.Context, user uuid.UUID) (int64, error) {
	res := r.conn(ctx).Model(&FileSharing{}).
		Where("shared_to_id = ? AND is_seen = ?", user, false).
		UpdateColumn("is_seen", true)
	return res.RowsAffected, res.Error
}

// HasFileGrant reports whether user received a grant on the file.
func (r *Repository) HasFileGrant(ctx context.Context, file, user uuid.UUID) (bool, error) {
	return r.hasGrant(ctx, "file_id", file, user)
}

// HasFolderGrant reports whether user received a grant on the folder.
func (r *Repository) HasFolderGrant(ctx context.Context, folder, user uuid.UUID) (bool, error) {
	return r.hasGrant(ctx, "folder_id", folder, user)
}

func (r *Repository) hasGrant(ctx context.Context, column string, item, user uuid.UUID) (bool, error) {
	var n int64
	err := r.conn(ctx).Model(&FileSharing{}).
		Where(column+" = ? AND shared_to_id = ?", item, user).
		Count(&n).Error
	return n > 0, err
}

// Grants is the set of items shared with one user.
type Grants struct {
	Files   map[uuid.UUID]struct{}
	Folders map[uuid.UUID]struct{}
}

func (r *Repository) GrantsTo(ctx context.Context, user uuid.UUID) (*Grants, error) {
	var rows []*FileSharing
	err := r.conn(ctx).Model(&FileSharing{}).
		Select("file_id", "folder_id").
		Where("shared_to_id = ?", user).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	g := &Grants{Files: map[uuid.UUID]struct{}{}, Folders: map[uuid.UUID]struct{}{}}
	for _, s := range rows {
		if s.FileID != nil {
			g.Files[*s.FileID] = struct{}{}
		}
		if s.FolderID != nil {
			g.Folders[*s.FolderID] = struct{}{}
		}
	}
	return g, nil
}
