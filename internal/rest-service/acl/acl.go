// Package acl decides who may see and who may change files and folders.
//
// Read access is granted to the owner, to anyone when the item is public, and
// to recipients of a share grant on that exact item. Visibility is checked per
// item and never inherited from the enclosing folder. Writes need ownership.
package acl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

var ErrCantCheckAccess = errors.New("can't check access")

type GrantStorage interface {
	HasFileGrant(ctx context.Context, file, user uuid.UUID) (bool, error)
	HasFolderGrant(ctx context.Context, folder, user uuid.UUID) (bool, error)
	GrantsTo(ctx context.Context, user uuid.UUID) (*database.Grants, error)
}

type Evaluator struct {
	gs GrantStorage
	l  *log.Entry
}

func NewEvaluator(gs GrantStorage, l *log.Entry) *Evaluator {
	return &Evaluator{gs: gs, l: l}
}

func (e *Evaluator) CanReadFile(ctx context.Context, principal uuid.UUID, f *database.File) (bool, error) {
	if f.OwnerID == principal || f.IsPublic {
		return true, nil
	}
	ok, err := e.gs.HasFileGrant(ctx, f.ID, principal)
	if err != nil {
		e.l.WithError(err).WithField("file_id", f.ID).Error(ErrCantCheckAccess)
		return false, ErrCantCheckAccess
	}
	return ok, nil
}

func (e *Evaluator) CanReadFolder(ctx context.Context, principal uuid.UUID, f *database.Folder) (bool, error) {
	if f.OwnerID == principal || f.IsPublic {
		return true, nil
	}
	ok, err := e.gs.HasFolderGrant(ctx, f.ID, principal)
	if err != nil {
		e.l.WithError(err).WithField("folder_id", f.ID).Error(ErrCantCheckAccess)
		return false, ErrCantCheckAccess
	}
	return ok, nil
}

// RequireReadFile returns apperr.ErrNotFound when the principal can't see the
// file, so hidden files are indistinguishable from missing ones.
func (e *Evaluator) RequireReadFile(ctx context.Context, principal uuid.UUID, f *database.File) error {
	ok, err := e.CanReadFile(ctx, principal, f)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("file %s: %w", f.ID, apperr.ErrNotFound)
	}
	return nil
}

// RequireOwner is the check every mutation goes through.
func RequireOwner(principal, owner uuid.UUID) error {
	if principal != owner {
		return fmt.Errorf("only the owner can do that: %w", apperr.ErrForbidden)
	}
	return nil
}

// Visible is a snapshot of the principal's grants used to filter listings
// without a query per item.
type Visible struct {
	principal uuid.UUID
	grants    *database.Grants
}

func (e *Evaluator) Visible(ctx context.Context, principal uuid.UUID) (*Visible, error) {
	g, err := e.gs.GrantsTo(ctx, principal)
	if err != nil {
		e.l.WithError(err).WithField("user_id", principal).Error(ErrCantCheckAccess)
		return nil, ErrCantCheckAccess
	}
	return &Visible{principal: principal, grants: g}, nil
}

func (v *Visible) File(f *database.File) bool {
	if f.OwnerID == v.principal || f.IsPublic {
		return true
	}
	_, ok := v.grants.Files[f.ID]
	return ok
}

func (v *Visible) Folder(f *database.Folder) bool {
	if f.OwnerID == v.principal || f.IsPublic {
		return true
	}
	_, ok := v.grants.Folders[f.ID]
	return ok
}

func (v *Visible) Files(files []*database.File) []*database.File {
	res := make([]*database.File, 0, len(files))
	for _, f := range files {
		if v.File(f) {
			res = append(res, f)
		}
	}
	return res
}

func (v *Visible) Folders(folders []*database.Folder) []*database.Folder {
	res := make([]*database.Folder, 0, len(folders))
	for _, f := range folders {
		if v.Folder(f) {
			res = append(res, f)
		}
	}
	return res
}
