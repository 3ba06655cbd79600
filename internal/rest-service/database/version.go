package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LockFile reads a file inside a transaction, taking a row lock where the
// dialect has them.
func (r *Repository) LockFile(ctx context.Context, id uuid.UUID) (*File, error) {
	return r.lockFile(ctx, id)
}

// GetBaseVersion returns version 0 of the file.
func (r *Repository) GetBaseVersion(ctx context.Context, fileID uuid.UUID) (*FileVersion, error) {
	v := &FileVersion{}
	return v, r.conn(ctx).Where("file_id = ? AND version_number = ?", fileID, 0).First(v).Error
}

func (r *Repository) HasBaseVersion(ctx context.Context, fileID uuid.UUID) (bool, error) {
	_, err := r.GetBaseVersion(ctx, fileID)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Repository) MaxVersionNumber(ctx context.Context, fileID uuid.UUID) (uint, error) {
	var max sql.NullInt64
	err := r.conn(ctx).Model(&FileVersion{}).
		Where("file_id = ?", fileID).
		Select("MAX(version_number)").
		Row().
		Scan(&max)
	if err != nil || !max.Valid {
		return 0, err
	}
	return uint(max.Int64), nil
}

func (r *Repository) CreateVersion(ctx context.Context, v *FileVersion) error {
	return translateError(r.conn(ctx).Create(v).Error)
}

// ClearCurrent unsets is_current on every version of the file except keep.
func (r *Repository) ClearCurrent(ctx context.Context, fileID uuid.UUID, keep uuid.UUID) error {
	return r.conn(ctx).Model(&FileVersion{}).
		Where("file_id = ? AND id <> ? AND is_current = ?", fileID, keep, true).
		UpdateColumn("is_current", false).Error
}

// MakeCurrent flags v as the current version and stamps it with at.
func (r *Repository) MakeCurrent(ctx context.Context, v *FileVersion, at time.Time) error {
	err := r.conn(ctx).Model(v).UpdateColumns(map[string]interface{}{
		"is_current":  true,
		"uploaded_at": at,
	}).Error
	if err != nil {
		return translateError(err)
	}
	v.IsCurrent = true
	v.UploadedAt = at
	return nil
}

// MirrorVersion copies the version's blob and metadata onto the file row.
func (r *Repository) MirrorVersion(ctx context.Context, f *File, v *FileVersion) error {
	err := r.conn(ctx).Model(f).UpdateColumns(map[string]interface{}{
		"name":        v.FileName,
		"blob_handle": v.BlobHandle,
		"size":        v.FileSize,
		"type":        v.FileType,
	}).Error
	if err != nil {
		return translateError(err)
	}
	f.Name, f.BlobHandle, f.Size, f.Type = v.FileName, v.BlobHandle, v.FileSize, v.FileType
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, id uuid.UUID) (*FileVersion, error) {
	v := &FileVersion{}
	return v, r.conn(ctx).Preload("UploadedBy").First(v, "id = ?", id).Error
}

// ListVersions returns the file history, most recently active first.
func (r *Repository) ListVersions(ctx context.Context, fileID uuid.UUID) ([]*FileVersion, error) {
	var res []*FileVersion
	return res, r.conn(ctx).
		Preload("UploadedBy").
		Where("file_id = ?", fileID).
		Order("uploaded_at DESC").
		Order("version_number DESC").
		Find(&res).Error
}
