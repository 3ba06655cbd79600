package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

func duplicateFile(name string) string {
	return fmt.Sprintf("file %q already exists in this folder", name)
}

// GetFile returns a file the principal can read.
func (m *Manager) GetFile(ctx context.Context, principal, id uuid.UUID) (*database.File, error) {
	f, err := m.repo.GetFile(ctx, id)
	if err != nil {
		return nil, m.fail(m.l.WithField("file_id", id), err, ErrCantReadTree, "")
	}
	if err = m.access.RequireReadFile(ctx, principal, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Download opens the current content of a readable file.
func (m *Manager) Download(ctx context.Context, principal, id uuid.UUID) (*database.File, io.ReadCloser, error) {
	f, err := m.GetFile(ctx, principal, id)
	if err != nil {
		return nil, nil, err
	}
	r, err := m.blobs.Open(ctx, f.BlobHandle)
	if err != nil {
		return nil, nil, err
	}
	return f, r, nil
}

type FileUpdate struct {
	Name       *string
	IsPublic   *bool
	CategoryID *uuid.UUID
	// Tags replaces the tag set when SetTags is true.
	Tags    []string
	SetTags bool
}

func (m *Manager) UpdateFile(ctx context.Context, principal, id uuid.UUID, u FileUpdate) (*database.File, error) {
	l := m.l.WithField("file_id", id)
	f, err := m.ownFile(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	upd := database.FileUpdate{IsPublic: u.IsPublic, TagNames: u.Tags, SetTags: u.SetTags}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("file name is required: %w", apperr.ErrInvalidInput)
		}
		if name != f.Name {
			taken, err := m.repo.FileNameTaken(ctx, name, f.FolderID)
			if err != nil {
				return nil, m.fail(l, err, ErrCantChangeTree, "")
			}
			if taken {
				return nil, fmt.Errorf("%s: %w", duplicateFile(name), apperr.ErrDuplicateName)
			}
			upd.Name = &name
		}
	}
	if u.CategoryID != nil {
		if err = m.requireCategory(ctx, *u.CategoryID); err != nil {
			return nil, err
		}
		upd.CategoryID = u.CategoryID
	}

	if err = m.repo.UpdateFile(ctx, id, upd); err != nil {
		name := f.Name
		if upd.Name != nil {
			name = *upd.Name
		}
		return nil, m.fail(l, err, ErrCantChangeTree, duplicateFile(name))
	}
	l.Info("file updated")
	f, err = m.repo.GetFile(ctx, id)
	return f, m.fail(l, err, ErrCantReadTree, "")
}

func (m *Manager) requireCategory(ctx context.Context, id uuid.UUID) error {
	_, err := m.repo.GetCategory(ctx, id)
	if errors.Is(err, database.ErrRecordNotFound) {
		return fmt.Errorf("unknown category %s: %w", id, apperr.ErrInvalidInput)
	}
	return m.fail(m.l, err, ErrCantReadTree, "")
}

func (m *Manager) ToggleFileStar(ctx context.Context, principal, id uuid.UUID) (bool, error) {
	if _, err := m.ownFile(ctx, principal, id); err != nil {
		return false, err
	}
	v, err := m.repo.ToggleFileStar(ctx, id)
	return v, m.fail(m.l.WithField("file_id", id), err, ErrCantChangeTree, "")
}

func (m *Manager) ToggleFileArchive(ctx context.Context, principal, id uuid.UUID) (bool, error) {
	if _, err := m.ownFile(ctx, principal, id); err != nil {
		return false, err
	}
	v, err := m.repo.ToggleFileArchive(ctx, id)
	return v, m.fail(m.l.WithField("file_id", id), err, ErrCantChangeTree, "")
}
