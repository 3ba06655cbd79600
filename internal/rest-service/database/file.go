package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileFilter struct {
	StarredOnly bool
	Archived    *bool
}

// CreateFiles inserts files in one transaction. Files without a category get
// the default one.
func (r *Repository) CreateFiles(ctx context.Context, files []*File) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		var def *Category
		for _, f := range files {
			if f.CategoryID != uuid.Nil {
				continue
			}
			if def == nil {
				var err error
				if def, err = tx.DefaultCategory(ctx); err != nil {
					return err
				}
			}
			f.CategoryID = def.ID
		}
		return translateError(tx.conn(ctx).Omit("Tags.*").Create(files).Error)
	})
}

func (r *Repository) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	f := &File{}
	return f, r.conn(ctx).
		Preload("Owner").
		Preload("Category").
		Preload("Tags").
		First(f, "id = ?", id).Error
}

// lockFile reads the file row, locking it for the rest of the transaction
// where the dialect allows it.
func (r *Repository) lockFile(ctx context.Context, id uuid.UUID) (*File, error) {
	f := &File{}
	return f, r.forUpdate(ctx).First(f, "id = ?", id).Error
}

func (r *Repository) FileNameTaken(ctx context.Context, name string, folder *uuid.UUID) (bool, error) {
	var n int64
	err := r.conn(ctx).Model(&File{}).
		Where("name = ? AND folder_key = ?", name, ScopeKey(folder)).
		Count(&n).Error
	return n > 0, err
}

// ListFiles returns the files directly inside folder (nil = root), newest first.
func (r *Repository) ListFiles(ctx context.Context, folder *uuid.UUID, filter FileFilter) ([]*File, error) {
	q := r.conn(ctx).
		Preload("Owner").
		Preload("Category").
		Preload("Tags").
		Where("folder_key = ?", ScopeKey(folder))
	if filter.StarredOnly {
		q = q.Where("is_starred = ?", true)
	}
	if filter.Archived != nil {
		q = q.Where("is_archived = ?", *filter.Archived)
	}
	var res []*File
	return res, q.Order("uploaded_at DESC").Find(&res).Error
}

func (r *Repository) FileIDsInFolders(ctx context.Context, folders []uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(folders) == 0 {
		return ids, nil
	}
	return ids, r.conn(ctx).Model(&File{}).Where("folder_id IN ?", folders).Pluck("id", &ids).Error
}

// FileUpdate lists the metadata changes to apply; nil fields stay untouched.
type FileUpdate struct {
	Name       *string
	IsPublic   *bool
	CategoryID *uuid.UUID
	TagNames   []string
	SetTags    bool
}

func (r *Repository) UpdateFile(ctx context.Context, id uuid.UUID, u FileUpdate) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		f, err := tx.lockFile(ctx, id)
		if err != nil {
			return err
		}
		changes := map[string]interface{}{}
		if u.Name != nil {
			changes["name"] = *u.Name
			changes["type"] = TypeOf(*u.Name)
		}
		if u.IsPublic != nil {
			changes["is_public"] = *u.IsPublic
		}
		if u.CategoryID != nil {
			changes["category_id"] = *u.CategoryID
		}
		if len(changes) > 0 {
			if err = translateError(tx.conn(ctx).Model(f).Updates(changes).Error); err != nil {
				return err
			}
		}
		if !u.SetTags {
			return nil
		}
		tags, err := tx.tagsByName(ctx, u.TagNames)
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			return tx.conn(ctx).Model(f).Association("Tags").Clear()
		}
		return tx.conn(ctx).Model(f).Association("Tags").Replace(tags)
	})
}

func (r *Repository) ToggleFileStar(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.toggle(ctx, &File{}, id, "is_starred")
}

func (r *Repository) ToggleFileArchive(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.toggle(ctx, &File{}, id, "is_archived")
}

// toggle flips a boolean column in place and returns the new value.
func (r *Repository) toggle(ctx context.Context, model interface{}, id uuid.UUID, column string) (bool, error) {
	var values []bool
	err := r.Transaction(ctx, func(tx *Repository) error {
		res := tx.conn(ctx).Model(model).Where("id = ?", id).
			UpdateColumn(column, gorm.Expr(fmt.Sprintf("NOT %s", column)))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return tx.conn(ctx).Model(model).Where("id = ?", id).Pluck(column, &values).Error
	})
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, ErrRecordNotFound
	}
	return values[0], nil
}

// DeleteFiles removes files with their versions, tags, grants and reminders
// and returns every blob handle they referenced.
func (r *Repository) DeleteFiles(ctx context.Context, ids []uuid.UUID) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var handles, versionHandles []string
	db := r.conn(ctx)
	if err := db.Model(&File{}).Where("id IN ?", ids).Pluck("blob_handle", &handles).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&FileVersion{}).Where("file_id IN ?", ids).Pluck("blob_handle", &versionHandles).Error; err != nil {
		return nil, err
	}
	if err := db.Exec("DELETE FROM file_tags WHERE file_id IN ?", ids).Error; err != nil {
		return nil, err
	}
	for _, m := range []interface{}{&FileVersion{}, &FileSharing{}, &Reminder{}} {
		if err := db.Where("file_id IN ?", ids).Delete(m).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Where("id IN ?", ids).Delete(&File{}).Error; err != nil {
		return nil, err
	}
	return unique(append(handles, versionHandles...)), nil
}

func unique(handles []string) []string {
	seen := make(map[string]struct{}, len(handles))
	res := make([]string, 0, len(handles))
	for _, h := range handles {
		if _, ok := seen[h]; ok || h == "" {
			continue
		}
		seen[h] = struct{}{}
		res = append(res, h)
	}
	return res
}
