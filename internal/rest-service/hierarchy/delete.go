package hierarchy

import (
	"context"

	"github.com/google/uuid"

	"github.com/konorlevich/resource_center/internal/rest-service/acl"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

// DeleteFile removes a file with its whole history and releases its blobs.
func (m *Manager) DeleteFile(ctx context.Context, principal, id uuid.UUID) error {
	l := m.l.WithField("file_id", id)
	if _, err := m.ownFile(ctx, principal, id); err != nil {
		return err
	}
	var handles []string
	err := m.repo.Transaction(ctx, func(tx *database.Repository) (err error) {
		handles, err = tx.DeleteFiles(ctx, []uuid.UUID{id})
		return err
	})
	if err != nil {
		return m.fail(l, err, ErrCantChangeTree, "")
	}
	m.release(ctx, handles)
	l.WithField("blobs", len(handles)).Info("file deleted")
	return nil
}

// treeNode is one folder of the subtree being deleted.
type treeNode struct {
	folder   *database.Folder
	files    []uuid.UUID
	children []uuid.UUID
}

// tree is a subtree keyed by folder id, with folders in breadth-first order.
type tree struct {
	nodes map[uuid.UUID]*treeNode
	order []uuid.UUID
}

// collectTree walks the subtree under root breadth first. Every folder and
// file in it must belong to principal.
func collectTree(ctx context.Context, tx *database.Repository, principal uuid.UUID, root *database.Folder) (*tree, error) {
	t := &tree{nodes: map[uuid.UUID]*treeNode{}}
	queue := []*database.Folder{root}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if _, ok := t.nodes[f.ID]; ok {
			continue
		}
		if err := acl.RequireOwner(principal, f.OwnerID); err != nil {
			return nil, err
		}
		n := &treeNode{folder: f}
		t.nodes[f.ID] = n
		t.order = append(t.order, f.ID)

		files, err := tx.ListFiles(ctx, &f.ID, database.FileFilter{})
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err = acl.RequireOwner(principal, file.OwnerID); err != nil {
				return nil, err
			}
			n.files = append(n.files, file.ID)
		}
		children, err := tx.ListFolders(ctx, &f.ID, false)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			n.children = append(n.children, c.ID)
			queue = append(queue, c)
		}
	}
	return t, nil
}

func (t *tree) fileIDs() []uuid.UUID {
	var res []uuid.UUID
	for _, id := range t.order {
		res = append(res, t.nodes[id].files...)
	}
	return res
}

// foldersBottomUp lists the folders deepest first.
func (t *tree) foldersBottomUp() []uuid.UUID {
	res := make([]uuid.UUID, len(t.order))
	for i, id := range t.order {
		res[len(t.order)-1-i] = id
	}
	return res
}

// DeleteFolder removes a folder with all descendant folders and files, their
// history and their blobs.
func (m *Manager) DeleteFolder(ctx context.Context, principal, id uuid.UUID) error {
	l := m.l.WithField("folder_id", id)
	root, err := m.ownFolder(ctx, principal, id)
	if err != nil {
		return err
	}

	var (
		handles []string
		t       *tree
	)
	err = m.repo.Transaction(ctx, func(tx *database.Repository) error {
		var err error
		if t, err = collectTree(ctx, tx, principal, root); err != nil {
			return err
		}
		if handles, err = tx.DeleteFiles(ctx, t.fileIDs()); err != nil {
			return err
		}
		return tx.DeleteFolders(ctx, t.foldersBottomUp())
	})
	if err != nil {
		return m.fail(l, err, ErrCantChangeTree, "")
	}
	m.release(ctx, handles)
	l.WithField("folders", len(t.order)).WithField("blobs", len(handles)).Info("folder deleted")
	return nil
}
