package hierarchy

import (
	"context"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

// Filter narrows a listing. Archived is an exact match when set and applies
// to files only.
type Filter struct {
	StarredOnly bool
	Archived    *bool
}

type Contents struct {
	// Folder is nil for the root.
	Folder  *database.Folder
	Folders []*database.Folder
	Files   []*database.File
}

// ListContents returns the children of folder (nil = root) the principal can
// see, newest first. Each child is checked on its own: a visible folder
// doesn't make its children visible and a hidden one doesn't hide them.
func (m *Manager) ListContents(ctx context.Context, principal uuid.UUID, folder *uuid.UUID, filter Filter) (*Contents, error) {
	l := m.l.WithField("user_id", principal)
	res := &Contents{}
	if folder != nil {
		l = l.WithField("folder_id", *folder)
		f, err := m.repo.GetFolder(ctx, *folder)
		if err != nil {
			return nil, m.fail(l, err, ErrCantReadTree, "")
		}
		res.Folder = f
	}

	visible, err := m.access.Visible(ctx, principal)
	if err != nil {
		return nil, err
	}
	folders, err := m.repo.ListFolders(ctx, folder, filter.StarredOnly)
	if err != nil {
		return nil, m.fail(l, err, ErrCantReadTree, "")
	}
	files, err := m.repo.ListFiles(ctx, folder, database.FileFilter{
		StarredOnly: filter.StarredOnly,
		Archived:    filter.Archived,
	})
	if err != nil {
		return nil, m.fail(l, err, ErrCantReadTree, "")
	}
	res.Folders = visible.Folders(folders)
	res.Files = visible.Files(files)
	return res, nil
}

func (m *Manager) ListCategories(ctx context.Context) ([]*database.Category, error) {
	if _, err := m.repo.DefaultCategory(ctx); err != nil {
		return nil, m.fail(m.l, err, ErrCantReadTree, "")
	}
	res, err := m.repo.ListCategories(ctx)
	return res, m.fail(m.l, err, ErrCantReadTree, "")
}
