package database

import (
	"context"

	"github.com/google/uuid"
)

func (r *Repository) CreateFolder(ctx context.Context, f *Folder) error {
	return translateError(r.conn(ctx).Create(f).Error)
}

func (r *Repository) GetFolder(ctx context.Context, id uuid.UUID) (*Folder, error) {
	f := &Folder{}
	return f, r.conn(ctx).Preload("Owner").First(f, "id = ?", id).Error
}

func (r *Repository) FolderNameTaken(ctx context.Context, name string, parent *uuid.UUID) (bool, error) {
	var n int64
	err := r.conn(ctx).Model(&Folder{}).
		Where("name = ? AND parent_key = ?", name, ScopeKey(parent)).
		Count(&n).Error
	return n > 0, err
}

// ListFolders returns the direct children of parent (nil = root), newest first.
func (r *Repository) ListFolders(ctx context.Context, parent *uuid.UUID, starredOnly bool) ([]*Folder, error) {
	q := r.conn(ctx).Preload("Owner").Where("parent_key = ?", ScopeKey(parent))
	if starredOnly {
		q = q.Where("is_starred = ?", true)
	}
	var res []*Folder
	return res, q.Order("created_at DESC").Find(&res).Error
}

func (r *Repository) ChildFolderIDs(ctx context.Context, parent uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	return ids, r.conn(ctx).Model(&Folder{}).Where("parent_id = ?", parent).Pluck("id", &ids).Error
}

// UpdateFolder persists name and visibility of f.
func (r *Repository) UpdateFolder(ctx context.Context, f *Folder) error {
	return translateError(r.conn(ctx).Model(f).Select("name", "is_public").Updates(f).Error)
}

func (r *Repository) ToggleFolderStar(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.toggle(ctx, &Folder{}, id, "is_starred")
}

// DeleteFolders removes folder rows and the grants on them. Files inside
// must be removed with DeleteFiles first.
func (r *Repository) DeleteFolders(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.conn(ctx).Where("folder_id IN ?", ids).Delete(&FileSharing{}).Error; err != nil {
		return err
	}
	return r.conn(ctx).Where("id IN ?", ids).Delete(&Folder{}).Error
}
