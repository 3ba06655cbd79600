// Package hierarchy manages the folder tree and the files in it.
package hierarchy

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
)

var (
	ErrCantReadTree   = errors.New("can't read folder tree")
	ErrCantChangeTree = errors.New("can't change folder tree")
	ErrCantSaveFiles  = errors.New("can't save uploaded files")
)

type Blobs interface {
	Put(ctx context.Context, r io.Reader, name string) (string, int64, error)
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	DeleteAll(ctx context.Context, handles []string) error
}

type Access interface {
	RequireReadFile(ctx context.Context, principal uuid.UUID, f *database.File) error
	Visible(ctx context.Context, principal uuid.UUID) (*acl.Visible, error)
}

type Manager struct {
	repo   *database.Repository
	blobs  Blobs
	access Access
	l      *log.Entry
}

func NewManager(repo *database.Repository, blobs Blobs, access Access, l *log.Entry) *Manager {
	return &Manager{repo: repo, blobs: blobs, access: access, l: l}
}

// fail maps repository errors to apperr kinds. duplicate describes the
// conflict for the caller.
func (m *Manager) fail(l *log.Entry, err error, unexpected error, duplicate string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%s: %w", duplicate, apperr.ErrDuplicateName)
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrForbidden),
		errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrConflict):
		return err
	}
	l.WithError(err).Error(unexpected)
	return unexpected
}

// ownFolder loads a folder the principal is about to change.
func (m *Manager) ownFolder(ctx context.Context, principal, id uuid.UUID) (*database.Folder, error) {
	f, err := m.repo.GetFolder(ctx, id)
	if err != nil {
		return nil, m.fail(m.l.WithField("folder_id", id), err, ErrCantReadTree, "")
	}
	return f, acl.RequireOwner(principal, f.OwnerID)
}

// ownFile loads a file the principal is about to change.
func (m *Manager) ownFile(ctx context.Context, principal, id uuid.UUID) (*database.File, error) {
	f, err := m.repo.GetFile(ctx, id)
	if err != nil {
		return nil, m.fail(m.l.WithField("file_id", id), err, ErrCantReadTree, "")
	}
	return f, acl.RequireOwner(principal, f.OwnerID)
}
