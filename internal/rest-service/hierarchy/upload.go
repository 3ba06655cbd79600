package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/konorlevich/resource_center/internal/rest-service/acl"
	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

type UploadFile struct {
	Name    string
	Content io.Reader
}

type UploadRequest struct {
	// Folder is nil for the root.
	Folder     *uuid.UUID
	CategoryID *uuid.UUID
	IsPublic   bool
	Files      []UploadFile
}

type UploadResult struct {
	Folder *database.Folder
	Files  []*database.File
}

// Upload stores a batch of new files. Either every file of the batch is saved
// or none is.
func (m *Manager) Upload(ctx context.Context, principal uuid.UUID, req UploadRequest) (*UploadResult, error) {
	l := m.l.WithField("user_id", principal)
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("no files uploaded: %w", apperr.ErrInvalidInput)
	}

	res := &UploadResult{}
	if req.Folder != nil {
		l = l.WithField("folder_id", *req.Folder)
		f, err := m.repo.GetFolder(ctx, *req.Folder)
		if err != nil {
			if errors.Is(err, database.ErrRecordNotFound) {
				return nil, fmt.Errorf("folder %s does not exist: %w", *req.Folder, apperr.ErrInvalidInput)
			}
			return nil, m.fail(l, err, ErrCantReadTree, "")
		}
		if err = acl.RequireOwner(principal, f.OwnerID); err != nil {
			return nil, err
		}
		res.Folder = f
	}
	if req.CategoryID != nil {
		if err := m.requireCategory(ctx, *req.CategoryID); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(req.Files))
	seen := make(map[string]struct{}, len(req.Files))
	for i, up := range req.Files {
		name := strings.TrimSpace(up.Name)
		if name == "" || up.Content == nil {
			return nil, fmt.Errorf("every upload needs a name and content: %w", apperr.ErrInvalidInput)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%s: %w", duplicateFile(name), apperr.ErrDuplicateName)
		}
		seen[name] = struct{}{}
		taken, err := m.repo.FileNameTaken(ctx, name, req.Folder)
		if err != nil {
			return nil, m.fail(l, err, ErrCantSaveFiles, "")
		}
		if taken {
			return nil, fmt.Errorf("%s: %w", duplicateFile(name), apperr.ErrDuplicateName)
		}
		names[i] = name
	}

	now := m.repo.Now()
	files := make([]*database.File, len(req.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range req.Files {
		i, up := i, up
		g.Go(func() error {
			handle, size, err := m.blobs.Put(gctx, up.Content, names[i])
			if err != nil {
				return err
			}
			files[i] = &database.File{
				Name:       names[i],
				FolderID:   req.Folder,
				BlobHandle: handle,
				Size:       size,
				Type:       database.TypeOf(names[i]),
				OwnerID:    principal,
				IsPublic:   req.IsPublic,
				UploadedAt: now,
			}
			if req.CategoryID != nil {
				files[i].CategoryID = *req.CategoryID
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.release(ctx, handlesOf(files))
		l.WithError(err).Error(ErrCantSaveFiles)
		return nil, ErrCantSaveFiles
	}

	if err := m.repo.CreateFiles(ctx, files); err != nil {
		m.release(ctx, handlesOf(files))
		return nil, m.fail(l, err, ErrCantSaveFiles, "a file with the same name was uploaded concurrently")
	}

	res.Files = make([]*database.File, 0, len(files))
	for _, f := range files {
		saved, err := m.repo.GetFile(ctx, f.ID)
		if err != nil {
			return nil, m.fail(l, err, ErrCantReadTree, "")
		}
		res.Files = append(res.Files, saved)
	}
	l.WithField("files", len(files)).Info("files uploaded")
	return res, nil
}

func handlesOf(files []*database.File) []string {
	res := make([]string, 0, len(files))
	for _, f := range files {
		if f != nil {
			res = append(res, f.BlobHandle)
		}
	}
	return res
}

// release frees blobs nothing references anymore. Failures leave orphans
// behind and are only logged.
func (m *Manager) release(ctx context.Context, handles []string) {
	if len(handles) == 0 {
		return
	}
	if err := m.blobs.DeleteAll(context.WithoutCancel(ctx), handles); err != nil {
		m.l.WithError(err).WithField("blobs", len(handles)).Warn("orphan blobs left behind")
	}
}
