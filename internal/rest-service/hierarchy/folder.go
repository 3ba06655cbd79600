package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

func duplicateFolder(name string) string {
	return fmt.Sprintf("folder %q already exists here", name)
}

// CreateFolder adds a folder under parent (nil = root). The parent must
// belong to owner.
func (m *Manager) CreateFolder(ctx context.Context, owner uuid.UUID, name string, parent *uuid.UUID) (*database.Folder, error) {
	l := m.l.WithField("user_id", owner).WithField("folder_name", name)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name is required: %w", apperr.ErrInvalidInput)
	}
	if parent != nil {
		if _, err := m.ownFolder(ctx, owner, *parent); err != nil {
			return nil, err
		}
	}

	taken, err := m.repo.FolderNameTaken(ctx, name, parent)
	if err != nil {
		return nil, m.fail(l, err, ErrCantChangeTree, "")
	}
	if taken {
		return nil, fmt.Errorf("%s: %w", duplicateFolder(name), apperr.ErrDuplicateName)
	}

	f := &database.Folder{Name: name, ParentID: parent, OwnerID: owner}
	if err = m.repo.CreateFolder(ctx, f); err != nil {
		return nil, m.fail(l, err, ErrCantChangeTree, duplicateFolder(name))
	}
	l.WithField("folder_id", f.ID).Info("folder created")
	return m.repo.GetFolder(ctx, f.ID)
}

type FolderUpdate struct {
	Name     *string
	IsPublic *bool
}

func (m *Manager) UpdateFolder(ctx context.Context, principal, id uuid.UUID, u FolderUpdate) (*database.Folder, error) {
	l := m.l.WithField("folder_id", id)
	f, err := m.ownFolder(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, fmt.Errorf("folder name is required: %w", apperr.ErrInvalidInput)
		}
		if name != f.Name {
			taken, err := m.repo.FolderNameTaken(ctx, name, f.ParentID)
			if err != nil {
				return nil, m.fail(l, err, ErrCantChangeTree, "")
			}
			if taken {
				return nil, fmt.Errorf("%s: %w", duplicateFolder(name), apperr.ErrDuplicateName)
			}
		}
		f.Name = name
	}
	if u.IsPublic != nil {
		f.IsPublic = *u.IsPublic
	}
	if err = m.repo.UpdateFolder(ctx, f); err != nil {
		return nil, m.fail(l, err, ErrCantChangeTree, duplicateFolder(f.Name))
	}
	return f, nil
}

// GetFolder returns a folder the principal can see.
func (m *Manager) GetFolder(ctx context.Context, principal, id uuid.UUID) (*database.Folder, error) {
	f, err := m.repo.GetFolder(ctx, id)
	if err != nil {
		return nil, m.fail(m.l.WithField("folder_id", id), err, ErrCantReadTree, "")
	}
	v, err := m.access.Visible(ctx, principal)
	if err != nil {
		return nil, err
	}
	if !v.Folder(f) {
		return nil, fmt.Errorf("folder %s: %w", id, apperr.ErrNotFound)
	}
	return f, nil
}

func (m *Manager) ToggleFolderStar(ctx context.Context, principal, id uuid.UUID) (bool, error) {
	if _, err := m.ownFolder(ctx, principal, id); err != nil {
		return false, err
	}
	v, err := m.repo.ToggleFolderStar(ctx, id)
	return v, m.fail(m.l.WithField("folder_id", id), err, ErrCantChangeTree, "")
}
