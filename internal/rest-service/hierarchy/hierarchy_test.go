package hierarchy

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konorlevich/resource_center/internal/rest-service/acl"
	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/storage"
	local "github.com/konorlevich/resource_center/internal/storage-service/storage"
)

func getLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.FatalLevel)
	return logger.WithField("in_test", true)
}

// failingBackend refuses blobs whose name starts with "bad".
type failingBackend struct {
	*local.Storage
}

func (b failingBackend) SaveFile(ctx context.Context, p string, r io.Reader) (int64, error) {
	if strings.HasPrefix(path.Base(p), "bad") {
		return 0, errors.New("disk full")
	}
	return b.Storage.SaveFile(ctx, p, r)
}

type fixture struct {
	repo    *database.Repository
	m       *Manager
	blobDir string
	alice   *database.User
	bob     *database.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDb(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	repo := database.NewRepository(db)

	backend, err := local.NewStorage(dir, getLogger())
	require.NoError(t, err)
	blobs := storage.NewBlobs(failingBackend{backend}, getLogger())

	fx := &fixture{
		repo:    repo,
		m:       NewManager(repo, blobs, acl.NewEvaluator(repo, getLogger()), getLogger()),
		blobDir: filepath.Join(dir, "blobs"),
	}
	fx.alice, err = repo.GetOrCreateUser(context.Background(), "alice@example.com", "alice@example.com", "Alice")
	require.NoError(t, err)
	fx.bob, err = repo.GetOrCreateUser(context.Background(), "bob@example.com", "bob@example.com", "Bob")
	require.NoError(t, err)
	return fx
}

func (fx *fixture) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.WalkDir(fx.blobDir, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	}))
	return n
}

func (fx *fixture) upload(t *testing.T, owner *database.User, folder *uuid.UUID, names ...string) []*database.File {
	t.Helper()
	req := UploadRequest{Folder: folder}
	for _, n := range names {
		req.Files = append(req.Files, UploadFile{Name: n, Content: strings.NewReader("12345")})
	}
	res, err := fx.m.Upload(context.Background(), owner.ID, req)
	require.NoError(t, err)
	return res.Files
}

func ptr[T any](v T) *T {
	return &v
}

func TestManager_CreateFolder(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	docs, err := fx.m.CreateFolder(ctx, fx.alice.ID, " Docs ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Docs", docs.Name)
	assert.Equal(t, fx.alice.ID, docs.OwnerID)
	require.NotNil(t, docs.Owner)
	assert.False(t, docs.CreatedAt.IsZero())

	work, err := fx.m.CreateFolder(ctx, fx.alice.ID, "Work", nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		owner   uuid.UUID
		folder  string
		parent  *uuid.UUID
		wantErr error
	}{
		{name: "duplicate at root", owner: fx.alice.ID, folder: "Docs", wantErr: apperr.ErrDuplicateName},
		{name: "duplicate at root for other user", owner: fx.bob.ID, folder: "Docs", wantErr: apperr.ErrDuplicateName},
		{name: "same name other parent", owner: fx.alice.ID, folder: "Docs", parent: &work.ID},
		{name: "empty name", owner: fx.alice.ID, folder: "  ", wantErr: apperr.ErrInvalidInput},
		{name: "parent of another user", owner: fx.bob.ID, folder: "Mine", parent: &docs.ID, wantErr: apperr.ErrForbidden},
		{name: "unknown parent", owner: fx.alice.ID, folder: "Lost", parent: ptr(uuid.New()), wantErr: apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.m.CreateFolder(ctx, tt.owner, tt.folder, tt.parent)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestManager_UpdateFolder(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	a, err := fx.m.CreateFolder(ctx, fx.alice.ID, "A", nil)
	require.NoError(t, err)
	_, err = fx.m.CreateFolder(ctx, fx.alice.ID, "B", nil)
	require.NoError(t, err)

	_, err = fx.m.UpdateFolder(ctx, fx.alice.ID, a.ID, FolderUpdate{Name: ptr("B")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)
	_, err = fx.m.UpdateFolder(ctx, fx.bob.ID, a.ID, FolderUpdate{IsPublic: ptr(true)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := fx.m.UpdateFolder(ctx, fx.alice.ID, a.ID, FolderUpdate{Name: ptr("C"), IsPublic: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "C", got.Name)
	assert.True(t, got.IsPublic)

	got, err = fx.m.GetFolder(ctx, fx.bob.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", got.Name)
}

func names(c *Contents) (folders, files []string) {
	for _, f := range c.Folders {
		folders = append(folders, f.Name)
	}
	for _, f := range c.Files {
		files = append(files, f.Name)
	}
	return folders, files
}

func TestManager_ListContents_Visibility(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	private, err := fx.m.CreateFolder(ctx, fx.alice.ID, "private", nil)
	require.NoError(t, err)
	public, err := fx.m.CreateFolder(ctx, fx.alice.ID, "public", nil)
	require.NoError(t, err)
	_, err = fx.m.UpdateFolder(ctx, fx.alice.ID, public.ID, FolderUpdate{IsPublic: ptr(true)})
	require.NoError(t, err)

	sub, err := fx.m.CreateFolder(ctx, fx.alice.ID, "public-sub", &private.ID)
	require.NoError(t, err)
	_, err = fx.m.UpdateFolder(ctx, fx.alice.ID, sub.ID, FolderUpdate{IsPublic: ptr(true)})
	require.NoError(t, err)
	_, err = fx.m.CreateFolder(ctx, fx.alice.ID, "private-sub", &private.ID)
	require.NoError(t, err)

	inPrivate := fx.upload(t, fx.alice, &private.ID, "open.txt", "closed.txt", "granted.txt")
	_, err = fx.m.UpdateFile(ctx, fx.alice.ID, inPrivate[0].ID, FileUpdate{IsPublic: ptr(true)})
	require.NoError(t, err)
	require.NoError(t, fx.repo.CreateShare(ctx, &database.FileSharing{
		FileID:     &inPrivate[2].ID,
		SharedByID: fx.alice.ID,
		SharedToID: fx.bob.ID,
		SharedAt:   fx.repo.Now(),
		ShareType:  database.ShareTypeFile,
	}))
	fx.upload(t, fx.alice, &public.ID, "secret.txt")

	c, err := fx.m.ListContents(ctx, fx.bob.ID, nil, Filter{})
	require.NoError(t, err)
	folders, files := names(c)
	assert.Equal(t, []string{"public"}, folders)
	assert.Empty(t, files)

	c, err = fx.m.ListContents(ctx, fx.bob.ID, &private.ID, Filter{})
	require.NoError(t, err)
	folders, files = names(c)
	assert.Equal(t, []string{"public-sub"}, folders)
	assert.ElementsMatch(t, []string{"open.txt", "granted.txt"}, files)

	c, err = fx.m.ListContents(ctx, fx.bob.ID, &public.ID, Filter{})
	require.NoError(t, err)
	assert.Empty(t, c.Files)
	assert.Equal(t, "public", c.Folder.Name)

	c, err = fx.m.ListContents(ctx, fx.alice.ID, &private.ID, Filter{})
	require.NoError(t, err)
	folders, files = names(c)
	assert.Equal(t, []string{"private-sub", "public-sub"}, folders)
	assert.Len(t, files, 3)

	_, err = fx.m.ListContents(ctx, fx.alice.ID, ptr(uuid.New()), Filter{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_ListContents_Filters(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	starred, err := fx.m.CreateFolder(ctx, fx.alice.ID, "starred", nil)
	require.NoError(t, err)
	_, err = fx.m.CreateFolder(ctx, fx.alice.ID, "plain", nil)
	require.NoError(t, err)
	on, err := fx.m.ToggleFolderStar(ctx, fx.alice.ID, starred.ID)
	require.NoError(t, err)
	assert.True(t, on)

	files := fx.upload(t, fx.alice, nil, "a.txt")
	files = append(files, fx.upload(t, fx.alice, nil, "b.txt")...)
	files = append(files, fx.upload(t, fx.alice, nil, "c.txt")...)

	on, err = fx.m.ToggleFileStar(ctx, fx.alice.ID, files[0].ID)
	require.NoError(t, err)
	assert.True(t, on)
	on, err = fx.m.ToggleFileArchive(ctx, fx.alice.ID, files[1].ID)
	require.NoError(t, err)
	assert.True(t, on)

	tests := []struct {
		name        string
		filter      Filter
		wantFolders []string
		wantFiles   []string
	}{
		{name: "no filter", wantFolders: []string{"plain", "starred"}, wantFiles: []string{"c.txt", "b.txt", "a.txt"}},
		{name: "starred", filter: Filter{StarredOnly: true}, wantFolders: []string{"starred"}, wantFiles: []string{"a.txt"}},
		{name: "archived", filter: Filter{Archived: ptr(true)}, wantFolders: []string{"plain", "starred"}, wantFiles: []string{"b.txt"}},
		{name: "not archived", filter: Filter{Archived: ptr(false)}, wantFolders: []string{"plain", "starred"}, wantFiles: []string{"c.txt", "a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := fx.m.ListContents(ctx, fx.alice.ID, nil, tt.filter)
			require.NoError(t, err)
			folders, files := names(c)
			if diff := cmp.Diff(tt.wantFolders, folders); diff != "" {
				t.Errorf("folders mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantFiles, files); diff != "" {
				t.Errorf("files mismatch (-want +got):\n%s", diff)
			}
		})
	}

	off, err := fx.m.ToggleFileStar(ctx, fx.alice.ID, files[0].ID)
	require.NoError(t, err)
	assert.False(t, off)

	_, err = fx.m.ToggleFileStar(ctx, fx.bob.ID, files[0].ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = fx.m.ToggleFileArchive(ctx, fx.bob.ID, files[0].ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = fx.m.ToggleFolderStar(ctx, fx.bob.ID, starred.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = fx.m.ToggleFileStar(ctx, fx.alice.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_Upload(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	docs, err := fx.m.CreateFolder(ctx, fx.alice.ID, "docs", nil)
	require.NoError(t, err)

	res, err := fx.m.Upload(ctx, fx.alice.ID, UploadRequest{
		Folder:   &docs.ID,
		IsPublic: true,
		Files: []UploadFile{
			{Name: "report.pdf", Content: strings.NewReader("12345")},
			{Name: "README", Content: strings.NewReader("hi")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "docs", res.Folder.Name)
	require.Len(t, res.Files, 2)
	assert.Equal(t, int64(5), res.Files[0].Size)
	assert.Equal(t, "pdf", res.Files[0].Type)
	assert.Equal(t, "", res.Files[1].Type)
	assert.True(t, res.Files[0].IsPublic)
	require.NotNil(t, res.Files[0].Category)
	assert.Equal(t, database.DefaultCategoryName, res.Files[0].Category.Name)
	assert.Equal(t, 2, fx.blobCount(t))

	f, r, err := fx.m.Download(ctx, fx.bob.ID, res.Files[0].ID)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	_ = r.Close()
	assert.Equal(t, "12345", string(b))
	assert.Equal(t, "report.pdf", f.Name)

	tests := []struct {
		name    string
		owner   uuid.UUID
		req     UploadRequest
		wantErr error
	}{
		{name: "no files", owner: fx.alice.ID, req: UploadRequest{}, wantErr: apperr.ErrInvalidInput},
		{
			name:    "duplicate in folder",
			owner:   fx.alice.ID,
			req:     UploadRequest{Folder: &docs.ID, Files: []UploadFile{{Name: "report.pdf", Content: strings.NewReader("x")}}},
			wantErr: apperr.ErrDuplicateName,
		},
		{
			name:  "duplicate in batch",
			owner: fx.alice.ID,
			req: UploadRequest{Files: []UploadFile{
				{Name: "x.txt", Content: strings.NewReader("x")},
				{Name: "x.txt", Content: strings.NewReader("x")},
			}},
			wantErr: apperr.ErrDuplicateName,
		},
		{
			name:    "unknown folder",
			owner:   fx.alice.ID,
			req:     UploadRequest{Folder: ptr(uuid.New()), Files: []UploadFile{{Name: "x.txt", Content: strings.NewReader("x")}}},
			wantErr: apperr.ErrInvalidInput,
		},
		{
			name:    "folder of another user",
			owner:   fx.bob.ID,
			req:     UploadRequest{Folder: &docs.ID, Files: []UploadFile{{Name: "x.txt", Content: strings.NewReader("x")}}},
			wantErr: apperr.ErrForbidden,
		},
		{
			name:    "unknown category",
			owner:   fx.alice.ID,
			req:     UploadRequest{CategoryID: ptr(uuid.New()), Files: []UploadFile{{Name: "x.txt", Content: strings.NewReader("x")}}},
			wantErr: apperr.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.m.Upload(ctx, tt.owner, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 2, fx.blobCount(t))
}

func TestManager_UploadRollsBack(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.m.Upload(ctx, fx.alice.ID, UploadRequest{Files: []UploadFile{
		{Name: "good.txt", Content: strings.NewReader("fine")},
		{Name: "bad.txt", Content: strings.NewReader("broken")},
		{Name: "also-good.txt", Content: strings.NewReader("fine")},
	}})
	assert.ErrorIs(t, err, ErrCantSaveFiles)
	assert.Equal(t, 0, fx.blobCount(t))

	c, err := fx.m.ListContents(ctx, fx.alice.ID, nil, Filter{})
	require.NoError(t, err)
	assert.Empty(t, c.Files)
}

func TestManager_UpdateFile(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	files := fx.upload(t, fx.alice, nil, "a.txt", "b.txt")

	_, err := fx.m.UpdateFile(ctx, fx.alice.ID, files[0].ID, FileUpdate{Name: ptr("b.txt")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)
	_, err = fx.m.UpdateFile(ctx, fx.alice.ID, files[0].ID, FileUpdate{CategoryID: ptr(uuid.New())})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = fx.m.UpdateFile(ctx, fx.bob.ID, files[0].ID, FileUpdate{Name: ptr("c.txt")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = fx.m.UpdateFile(ctx, fx.alice.ID, files[0].ID, FileUpdate{Name: ptr(" ")})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	cats, err := fx.m.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)

	got, err := fx.m.UpdateFile(ctx, fx.alice.ID, files[0].ID, FileUpdate{
		Name:       ptr("notes.md"),
		CategoryID: &cats[0].ID,
		Tags:       []string{"work", " work ", "", "q3"},
		SetTags:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "notes.md", got.Name)
	assert.Equal(t, "md", got.Type)
	var tags []string
	for _, tg := range got.Tags {
		tags = append(tags, tg.Name)
	}
	assert.ElementsMatch(t, []string{"work", "q3"}, tags)

	got, err = fx.m.UpdateFile(ctx, fx.alice.ID, files[0].ID, FileUpdate{SetTags: true})
	require.NoError(t, err)
	assert.Empty(t, got.Tags)

	_, err = fx.m.GetFile(ctx, fx.bob.ID, files[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_DeleteFile(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	f := fx.upload(t, fx.alice, nil, "a.txt")[0]

	require.NoError(t, fx.repo.CreateVersion(ctx, &database.FileVersion{
		FileID: f.ID, VersionNumber: 0, BlobHandle: f.BlobHandle, IsCurrent: true, UploadedAt: f.UploadedAt,
	}))

	assert.ErrorIs(t, fx.m.DeleteFile(ctx, fx.bob.ID, f.ID), apperr.ErrForbidden)
	require.NoError(t, fx.m.DeleteFile(ctx, fx.alice.ID, f.ID))
	assert.Equal(t, 0, fx.blobCount(t))
	assert.ErrorIs(t, fx.m.DeleteFile(ctx, fx.alice.ID, f.ID), apperr.ErrNotFound)

	versions, err := fx.repo.ListVersions(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestManager_DeleteFolderCascade(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	root, err := fx.m.CreateFolder(ctx, fx.alice.ID, "root", nil)
	require.NoError(t, err)
	child, err := fx.m.CreateFolder(ctx, fx.alice.ID, "child", &root.ID)
	require.NoError(t, err)
	grandchild, err := fx.m.CreateFolder(ctx, fx.alice.ID, "grandchild", &child.ID)
	require.NoError(t, err)
	keep, err := fx.m.CreateFolder(ctx, fx.alice.ID, "keep", nil)
	require.NoError(t, err)

	fx.upload(t, fx.alice, &root.ID, "r.txt")
	deep := fx.upload(t, fx.alice, &grandchild.ID, "g.txt")[0]
	fx.upload(t, fx.alice, &keep.ID, "k.txt")

	require.NoError(t, fx.repo.CreateVersion(ctx, &database.FileVersion{
		FileID: deep.ID, VersionNumber: 1, BlobHandle: "2026/01/x/old.txt", UploadedAt: time.Now().UTC(),
	}))
	require.NoError(t, fx.repo.CreateShare(ctx, &database.FileSharing{
		FolderID: &child.ID, SharedByID: fx.alice.ID, SharedToID: fx.bob.ID,
		SharedAt: fx.repo.Now(), ShareType: database.ShareTypeFolder,
	}))
	require.Equal(t, 3, fx.blobCount(t))

	assert.ErrorIs(t, fx.m.DeleteFolder(ctx, fx.bob.ID, root.ID), apperr.ErrForbidden)
	require.NoError(t, fx.m.DeleteFolder(ctx, fx.alice.ID, root.ID))

	for _, id := range []uuid.UUID{root.ID, child.ID, grandchild.ID} {
		_, err = fx.repo.GetFolder(ctx, id)
		assert.ErrorIs(t, err, database.ErrRecordNotFound)
	}
	_, err = fx.repo.GetFile(ctx, deep.ID)
	assert.ErrorIs(t, err, database.ErrRecordNotFound)
	assert.Equal(t, 1, fx.blobCount(t))

	n, err := fx.repo.CountUnseen(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	c, err := fx.m.ListContents(ctx, fx.alice.ID, nil, Filter{})
	require.NoError(t, err)
	folders, _ := names(c)
	assert.Equal(t, []string{"keep"}, folders)
}
