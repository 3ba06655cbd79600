package sharing

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konorlevich/resource_center/internal/rest-service/apperr"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/events"
)

func getLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.FatalLevel)
	return logger.WithField("in_test", true)
}

type cacheMock struct {
	mu     sync.Mutex
	values map[uuid.UUID]int64
}

func (c *cacheMock) Get(_ context.Context, user uuid.UUID) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.values[user]
	return n, ok
}

func (c *cacheMock) Set(_ context.Context, user uuid.UUID, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[user] = n
}

func (c *cacheMock) Invalidate(_ context.Context, users ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range users {
		delete(c.values, u)
	}
}

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) Publish(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	repo   *database.Repository
	ledger *Ledger
	cache  *cacheMock
	events *recorder
	alice  *database.User
	bob    *database.User
	carol  *database.User
	file   *database.File
	folder *database.Folder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDb(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := database.NewRepository(db)
	ctx := context.Background()

	fx := &fixture{repo: repo, cache: &cacheMock{values: map[uuid.UUID]int64{}}, events: &recorder{}}
	fx.ledger = NewLedger(repo, fx.cache, fx.events, getLogger())
	for _, u := range []**database.User{&fx.alice, &fx.bob, &fx.carol} {
		name := uuid.NewString()[:8] + "@example.com"
		*u, err = repo.GetOrCreateUser(ctx, name, name, "")
		require.NoError(t, err)
	}

	fx.folder = &database.Folder{Name: "docs", OwnerID: fx.alice.ID}
	require.NoError(t, repo.CreateFolder(ctx, fx.folder))
	fx.file = &database.File{Name: "a.txt", BlobHandle: "a", OwnerID: fx.alice.ID, UploadedAt: repo.Now()}
	require.NoError(t, repo.CreateFiles(ctx, []*database.File{fx.file}))
	return fx
}

func TestLedger_Share(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	res, err := fx.ledger.Share(ctx, fx.alice, Request{
		ItemID:  fx.file.ID,
		Emails:  []string{fx.bob.Email, " ", "nobody@example.com", fx.alice.Email, fx.bob.Email},
		Message: "have a look",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{fx.bob.Email}, res.Shared)
	if diff := cmp.Diff([]RecipientError{
		{Email: "nobody@example.com", Error: errNoSuchUser},
		{Email: fx.alice.Email, Error: errSelf},
	}, res.Errors); diff != "" {
		t.Errorf("Share() errors mismatch (-want +got):\n%s", diff)
	}

	res, err = fx.ledger.Share(ctx, fx.alice, Request{ItemID: fx.file.ID, Emails: []string{fx.bob.Email, fx.carol.Email}})
	require.NoError(t, err)
	assert.Equal(t, []string{fx.carol.Email}, res.Shared)
	assert.Equal(t, []RecipientError{{Email: fx.bob.Email, Error: errAlreadyShared}}, res.Errors)

	res, err = fx.ledger.Share(ctx, fx.alice, Request{
		ItemID:    fx.folder.ID,
		ShareType: database.ShareTypeFolder,
		Emails:    []string{fx.bob.Email},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{fx.bob.Email}, res.Shared)

	shares, err := fx.ledger.ListSharedWithMe(ctx, fx.bob.ID)
	require.NoError(t, err)
	require.Len(t, shares, 2)
	assert.Equal(t, database.ShareTypeFolder, shares[0].ShareType)
	require.NotNil(t, shares[0].Folder)
	assert.Equal(t, "docs", shares[0].Folder.Name)
	require.NotNil(t, shares[1].File)
	assert.Equal(t, "a.txt", shares[1].File.Name)
	assert.Equal(t, "have a look", shares[1].Message)
	assert.Equal(t, fx.alice.Email, shares[1].SharedBy.Email)

	fx.events.mu.Lock()
	assert.Len(t, fx.events.events, 3)
	fx.events.mu.Unlock()
}

func TestLedger_ShareErrors(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		from    *database.User
		req     Request
		wantErr error
	}{
		{name: "not the owner", from: fx.bob, req: Request{ItemID: fx.file.ID, Emails: []string{fx.carol.Email}}, wantErr: apperr.ErrForbidden},
		{name: "folder not the owner", from: fx.bob, req: Request{ItemID: fx.folder.ID, ShareType: database.ShareTypeFolder, Emails: []string{fx.carol.Email}}, wantErr: apperr.ErrForbidden},
		{name: "unknown file", from: fx.alice, req: Request{ItemID: uuid.New(), Emails: []string{fx.bob.Email}}, wantErr: apperr.ErrNotFound},
		{name: "folder id as file", from: fx.alice, req: Request{ItemID: fx.folder.ID, Emails: []string{fx.bob.Email}}, wantErr: apperr.ErrNotFound},
		{name: "no emails", from: fx.alice, req: Request{ItemID: fx.file.ID, Emails: []string{"", " "}}, wantErr: apperr.ErrInvalidInput},
		{name: "bad type", from: fx.alice, req: Request{ItemID: fx.file.ID, ShareType: "LINK", Emails: []string{fx.bob.Email}}, wantErr: apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.ledger.Share(ctx, tt.from, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLedger_ConcurrentShare(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fx.ledger.Share(ctx, fx.alice, Request{ItemID: fx.file.ID, Emails: []string{fx.bob.Email}})
		}(i)
	}
	wg.Wait()

	shared := 0
	for i := range results {
		require.NoError(t, errs[i])
		shared += len(results[i].Shared)
		for _, e := range results[i].Errors {
			assert.Equal(t, errAlreadyShared, e.Error)
		}
	}
	assert.Equal(t, 1, shared)

	shares, err := fx.ledger.ListSharedWithMe(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Len(t, shares, 1)
}

func TestLedger_Unseen(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	n, err := fx.ledger.UnseenCount(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	cached, ok := fx.cache.Get(ctx, fx.bob.ID)
	assert.True(t, ok)
	assert.Zero(t, cached)

	_, err = fx.ledger.Share(ctx, fx.alice, Request{ItemID: fx.file.ID, Emails: []string{fx.bob.Email}})
	require.NoError(t, err)
	_, ok = fx.cache.Get(ctx, fx.bob.ID)
	assert.False(t, ok, "share must invalidate the recipient's counter")

	_, err = fx.ledger.Share(ctx, fx.alice, Request{ItemID: fx.folder.ID, ShareType: database.ShareTypeFolder, Emails: []string{fx.bob.Email}})
	require.NoError(t, err)

	n, err = fx.ledger.UnseenCount(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	changed, err := fx.ledger.MarkAllSeen(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	n, err = fx.ledger.UnseenCount(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	changed, err = fx.ledger.MarkAllSeen(ctx, fx.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
