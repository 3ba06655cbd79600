// Package ledger keeps the version history of files.
//
// Every file has an ordered list of versions. Version 0 is the base snapshot,
// materialized lazily from the file's own fields the first time history is
// needed. Exactly one version is current and the file row mirrors it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/acl"
	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/events"
)

const baseVersionNote = "Initial version"

var (
	ErrCantReadHistory  = errors.New("can't read version history")
	ErrCantWriteVersion = errors.New("can't write file version")
)

type Blobs interface {
	Put(ctx context.Context, r io.Reader, name string) (string, int64, error)
	Delete(ctx context.Context, handle string) error
}

type Access interface {
	RequireReadFile(ctx context.Context, principal uuid.UUID, f *database.File) error
}

type Ledger struct {
	repo   *database.Repository
	blobs  Blobs
	access Access
	pub    events.Publisher
	locks  *keyedMutex
	l      *log.Entry
}

func NewLedger(repo *database.Repository, blobs Blobs, access Access, pub events.Publisher, l *log.Entry) *Ledger {
	return &Ledger{
		repo:   repo,
		blobs:  blobs,
		access: access,
		pub:    pub,
		locks:  newKeyedMutex(),
		l:      l,
	}
}

// Upload is the content of a new version.
type Upload struct {
	Name       string
	Content    io.Reader
	ChangeNote string
}

type History struct {
	File     *database.File
	Versions []*database.FileVersion
	IsOwner  bool
}

// RecordBaseVersionIfAbsent creates version 0 from the file's current state
// unless it already exists.
func (lg *Ledger) RecordBaseVersionIfAbsent(ctx context.Context, fileID uuid.UUID) error {
	l := lg.l.WithField("file_id", fileID)
	unlock := lg.locks.Lock(fileID)
	defer unlock()

	err := lg.repo.Transaction(ctx, func(tx *database.Repository) error {
		f, err := tx.LockFile(ctx, fileID)
		if err != nil {
			return err
		}
		_, err = ensureBase(ctx, tx, f)
		return err
	})
	return lg.fail(l, err, ErrCantWriteVersion)
}

// ensureBase must run inside a transaction holding the file lock.
func ensureBase(ctx context.Context, tx *database.Repository, f *database.File) (bool, error) {
	ok, err := tx.HasBaseVersion(ctx, f.ID)
	if err != nil || ok {
		return false, err
	}
	owner := f.OwnerID
	return true, tx.CreateVersion(ctx, &database.FileVersion{
		FileID:        f.ID,
		VersionNumber: 0,
		BlobHandle:    f.BlobHandle,
		FileName:      f.Name,
		FileSize:      f.Size,
		FileType:      f.Type,
		UploadedByID:  &owner,
		ChangeNote:    baseVersionNote,
		UploadedAt:    f.UploadedAt,
		IsCurrent:     true,
	})
}

// UploadNewVersion stores the content as the next version and makes it
// current. Only the owner may do it.
func (lg *Ledger) UploadNewVersion(ctx context.Context, fileID, uploader uuid.UUID, up Upload) (*database.FileVersion, error) {
	l := lg.l.WithField("file_id", fileID).WithField("user_id", uploader)
	if up.Content == nil {
		return nil, fmt.Errorf("no file uploaded: %w", apperr.ErrInvalidInput)
	}

	f, err := lg.repo.GetFile(ctx, fileID)
	if err != nil {
		return nil, lg.fail(l, err, ErrCantWriteVersion)
	}
	if err = acl.RequireOwner(uploader, f.OwnerID); err != nil {
		return nil, err
	}
	if up.Name == "" {
		up.Name = f.Name
	}

	handle, size, err := lg.blobs.Put(ctx, up.Content, up.Name)
	if err != nil {
		return nil, ErrCantWriteVersion
	}

	unlock := lg.locks.Lock(fileID)
	defer unlock()

	v := &database.FileVersion{
		FileID:       fileID,
		BlobHandle:   handle,
		FileName:     up.Name,
		FileSize:     size,
		FileType:     database.TypeOf(up.Name),
		UploadedByID: &uploader,
		ChangeNote:   up.ChangeNote,
		IsCurrent:    true,
	}
	err = lg.repo.Transaction(ctx, func(tx *database.Repository) error {
		f, err := tx.LockFile(ctx, fileID)
		if err != nil {
			return err
		}
		if _, err = ensureBase(ctx, tx, f); err != nil {
			return err
		}
		last, err := tx.MaxVersionNumber(ctx, fileID)
		if err != nil {
			return err
		}
		v.VersionNumber = last + 1
		v.UploadedAt = tx.Now()
		if err = tx.ClearCurrent(ctx, fileID, uuid.Nil); err != nil {
			return err
		}
		if err = tx.CreateVersion(ctx, v); err != nil {
			return err
		}
		return mirror(ctx, tx, f, v)
	})
	if err != nil {
		// nothing references the new blob
		if dErr := lg.blobs.Delete(context.WithoutCancel(ctx), handle); dErr != nil {
			l.WithError(dErr).WithField("blob", handle).Warn("orphan blob left behind")
		}
		return nil, lg.fail(l, err, ErrCantWriteVersion)
	}

	l.WithField("version", v.VersionNumber).Info("new version uploaded")
	number := v.VersionNumber
	events.Notify(ctx, lg.pub, l, &events.Event{
		Type:      events.TypeVersionUploaded,
		ItemID:    fileID.String(),
		ItemType:  database.ShareTypeFile,
		ItemName:  v.FileName,
		Actor:     uploader.String(),
		Message:   v.ChangeNote,
		VersionID: v.ID.String(),
		Version:   &number,
	})
	return v, nil
}

// Revert makes an older version current again and refreshes its timestamp so
// it tops the history.
func (lg *Ledger) Revert(ctx context.Context, fileID, versionID, principal uuid.UUID) (*database.FileVersion, error) {
	l := lg.l.WithField("file_id", fileID).WithField("version_id", versionID)

	f, err := lg.repo.GetFile(ctx, fileID)
	if err != nil {
		return nil, lg.fail(l, err, ErrCantWriteVersion)
	}
	if err = acl.RequireOwner(principal, f.OwnerID); err != nil {
		return nil, err
	}

	unlock := lg.locks.Lock(fileID)
	defer unlock()

	var v *database.FileVersion
	err = lg.repo.Transaction(ctx, func(tx *database.Repository) error {
		f, err := tx.LockFile(ctx, fileID)
		if err != nil {
			return err
		}
		if v, err = tx.GetVersion(ctx, versionID); err != nil {
			return err
		}
		if v.FileID != f.ID {
			return fmt.Errorf("version %s of another file: %w", versionID, apperr.ErrNotFound)
		}
		if err = tx.ClearCurrent(ctx, fileID, v.ID); err != nil {
			return err
		}
		if err = tx.MakeCurrent(ctx, v, tx.Now()); err != nil {
			return err
		}
		return mirror(ctx, tx, f, v)
	})
	if err != nil {
		return nil, lg.fail(l, err, ErrCantWriteVersion)
	}

	l.WithField("version", v.VersionNumber).Info("file reverted")
	number := v.VersionNumber
	events.Notify(ctx, lg.pub, l, &events.Event{
		Type:      events.TypeVersionReverted,
		ItemID:    fileID.String(),
		ItemType:  database.ShareTypeFile,
		ItemName:  v.FileName,
		Actor:     principal.String(),
		VersionID: v.ID.String(),
		Version:   &number,
	})
	return v, nil
}

// mirror copies v onto the file row. A name taken by a sibling is refused
// before the unique index sees it.
func mirror(ctx context.Context, tx *database.Repository, f *database.File, v *database.FileVersion) error {
	if v.FileName != f.Name {
		taken, err := tx.FileNameTaken(ctx, v.FileName, f.FolderID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("file %q already exists in this folder: %w", v.FileName, apperr.ErrDuplicateName)
		}
	}
	return tx.MirrorVersion(ctx, f, v)
}

// ListHistory returns the versions of a readable file, most recently active
// first.
func (lg *Ledger) ListHistory(ctx context.Context, fileID, principal uuid.UUID) (*History, error) {
	l := lg.l.WithField("file_id", fileID)

	f, err := lg.repo.GetFile(ctx, fileID)
	if err != nil {
		return nil, lg.fail(l, err, ErrCantReadHistory)
	}
	if err = lg.access.RequireReadFile(ctx, principal, f); err != nil {
		return nil, err
	}
	if err = lg.RecordBaseVersionIfAbsent(ctx, fileID); err != nil {
		return nil, err
	}
	versions, err := lg.repo.ListVersions(ctx, fileID)
	if err != nil {
		return nil, lg.fail(l, err, ErrCantReadHistory)
	}
	return &History{File: f, Versions: versions, IsOwner: f.OwnerID == principal}, nil
}

// fail maps repository errors to the apperr kinds, logging the unexpected ones.
func (lg *Ledger) fail(l *log.Entry, err error, unexpected error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	case errors.Is(err, database.ErrDuplicate):
		l.WithError(err).Warn("concurrent version write")
		return fmt.Errorf("%w: the file changed concurrently, try again", apperr.ErrConflict)
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrForbidden),
		errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrConflict):
		return err
	}
	l.WithError(err).Error(unexpected)
	return unexpected
}
