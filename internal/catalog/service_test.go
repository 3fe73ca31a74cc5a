package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grvbrk/vidcatalog_server/internal/auth"
	"github.com/grvbrk/vidcatalog_server/internal/catalog"
	"github.com/grvbrk/vidcatalog_server/internal/models"
	"github.com/grvbrk/vidcatalog_server/internal/storage"
	"github.com/grvbrk/vidcatalog_server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testBucket = "videos"

var (
	alice = &models.Identity{Subject: "sub-alice", DisplayName: "alice"}
	bob   = &models.Identity{Subject: "sub-bob", DisplayName: "bob"}
)

type fakeResolver struct {
	identities map[string]*models.Identity
	err        error
}

func (f *fakeResolver) Resolve(ctx context.Context, credential string) (*models.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.identities[credential]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	return id, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.CatalogEvent
	err    error
}

func (r *recordingSink) Record(ctx context.Context, e models.CatalogEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) kinds() []models.CatalogEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CatalogEventKind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// flakyObjects fails the configured operations and delegates the rest.
type flakyObjects struct {
	storage.ObjectStore
	putErr    error
	deleteErr error
}

func (f *flakyObjects) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.ObjectStore.Put(ctx, bucket, key, body, size, contentType)
}

func (f *flakyObjects) Delete(ctx context.Context, bucket, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.ObjectStore.Delete(ctx, bucket, key)
}

type flakyVideos struct {
	*store.MemoryVideoStore
	putErr    error
	deleteErr error
	// pageSize forces unbounded scans to page
	pageSize int
	scans    int
}

func (f *flakyVideos) PutVideo(ctx context.Context, v *models.Video) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryVideoStore.PutVideo(ctx, v)
}

func (f *flakyVideos) DeleteVideo(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryVideoStore.DeleteVideo(ctx, id)
}

func (f *flakyVideos) ScanVideos(ctx context.Context, p store.ScanParams) (*store.ScanPage, error) {
	f.scans++
	if f.pageSize > 0 && p.Limit == 0 {
		p.Limit = f.pageSize
	}
	return f.MemoryVideoStore.ScanVideos(ctx, p)
}

type lockedTitles struct{}

func (lockedTitles) Acquire(ctx context.Context, title string) (func(), error) {
	return nil, store.ErrTitleLocked
}

type fixture struct {
	svc     *catalog.Service
	videos  *flakyVideos
	objects *flakyObjects
	fs      *storage.FSObjectStore
	events  *recordingSink
}

func newFixture(t *testing.T, opts ...catalog.Option) *fixture {
	t.Helper()

	fsStore, err := storage.NewFSObjectStore(t.TempDir(), testBucket)
	require.NoError(t, err)

	f := &fixture{
		videos:  &flakyVideos{MemoryVideoStore: store.NewMemoryVideoStore()},
		objects: &flakyObjects{ObjectStore: fsStore},
		fs:      fsStore,
		events:  &recordingSink{},
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var tick int
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	resolver := &fakeResolver{identities: map[string]*models.Identity{
		"alice-token": alice,
		"bob-token":   bob,
	}}

	all := append([]catalog.Option{
		catalog.WithEventSink(f.events),
		catalog.WithClock(clock),
	}, opts...)
	f.svc = catalog.NewService(f.videos, f.objects, resolver, zap.NewNop(), all...)
	return f
}

func (f *fixture) upload(t *testing.T, caller *models.Identity, title string) string {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), caller, catalog.UploadInput{
		Title:       title,
		Description: "about " + title,
		Filename:    title + ".mp4",
		Size:        int64(len("payload " + title)),
		Body:        strings.NewReader("payload " + title),
	})
	require.NoError(t, err)
	return res.ID
}

func (f *fixture) seed(t *testing.T, v models.Video) {
	t.Helper()
	require.NoError(t, f.videos.MemoryVideoStore.PutVideo(context.Background(), &v))
}

func (f *fixture) payloadExists(t *testing.T, filePath string) bool {
	t.Helper()
	bucket, key, ok := strings.Cut(filePath, "/")
	require.True(t, ok)
	p, err := f.fs.Path(bucket, key)
	require.NoError(t, err)
	_, err = os.Stat(p)
	return err == nil
}

func bucketFiles(t *testing.T, f *fixture) int {
	t.Helper()
	p, err := f.fs.Path(testBucket, "x")
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	return len(entries)
}

func TestUploadThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, alice, catalog.UploadInput{
		Title:       "Cats",
		Description: "cats being cats",
		Filename:    "cats.mov",
		Size:        4,
		Body:        strings.NewReader("meow"),
	})
	require.NoError(t, err)
	assert.Equal(t, "cats.mov", res.Filename)
	assert.NotEmpty(t, res.ID)

	// any authenticated caller can read any record
	v, err := f.svc.Get(ctx, bob, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, v.ID)
	assert.Equal(t, "Cats", v.Title)
	assert.Equal(t, "cats being cats", v.Description)
	assert.Equal(t, "alice", v.Uploader)
	assert.Equal(t, testBucket+"/"+res.ID+".mp4", v.FilePath)
	assert.Equal(t, v.FilePath, v.FilePathOrg)
	assert.Equal(t, time.UTC, v.Timestamp.Location())

	p, err := f.fs.Path(testBucket, res.ID+".mp4")
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(data))

	assert.Equal(t, []models.CatalogEventKind{models.EventUploadCommitted}, f.events.kinds())
}

func TestUploadDuplicateTitle(t *testing.T) {
	f := newFixture(t)
	f.upload(t, alice, "Same")

	_, err := f.svc.Upload(context.Background(), bob, catalog.UploadInput{
		Title: "Same",
		Body:  strings.NewReader("other"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrConflict)
	assert.Equal(t, 1, f.videos.Len())
	assert.Equal(t, 1, bucketFiles(t, f))
}

func TestUploadTitleIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	f.upload(t, alice, "Same")
	f.upload(t, alice, "same")
	assert.Equal(t, 2, f.videos.Len())
}

func TestUploadDuplicateTitleOnLaterPage(t *testing.T) {
	f := newFixture(t)
	f.videos.pageSize = 2
	for i := 0; i < 7; i++ {
		f.seed(t, models.Video{
			ID:       fmt.Sprintf("id-%02d", i),
			Title:    fmt.Sprintf("title %d", i),
			Uploader: "carol",
			FilePath: testBucket + fmt.Sprintf("/id-%02d.mp4", i),
		})
	}

	_, err := f.svc.Upload(context.Background(), alice, catalog.UploadInput{
		Title: "title 6",
		Body:  strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, catalog.ErrConflict)
	assert.Greater(t, f.videos.scans, 1)
	assert.Equal(t, 7, f.videos.Len())
}

func TestUploadRejectsEmptyTitle(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), alice, catalog.UploadInput{
		Title: "   ",
		Body:  strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, catalog.ErrInvalidInput)
	assert.Equal(t, 0, f.videos.Len())
	assert.Equal(t, 0, bucketFiles(t, f))
}

func TestUploadRequiresIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Upload(context.Background(), nil, catalog.UploadInput{
		Title: "x",
		Body:  strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, catalog.ErrUnauthorized)
	assert.Equal(t, 0, f.videos.Len())
}

func TestUploadObjectStoreFailureWritesNoMetadata(t *testing.T) {
	f := newFixture(t)
	f.objects.putErr = errors.New("bucket unavailable")

	_, err := f.svc.Upload(context.Background(), alice, catalog.UploadInput{
		Title: "x",
		Body:  strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrStorage)
	assert.Contains(t, catalog.Detail(err), "bucket unavailable")
	assert.Equal(t, 0, f.videos.Len())
	assert.Empty(t, f.events.kinds())
}

func TestUploadMetadataFailureLeavesOrphanedPayload(t *testing.T) {
	f := newFixture(t)
	f.videos.putErr = errors.New("table throttled")

	_, err := f.svc.Upload(context.Background(), alice, catalog.UploadInput{
		Title: "x",
		Body:  strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrStorage)
	assert.Equal(t, 0, f.videos.Len())
	assert.Equal(t, 1, bucketFiles(t, f))

	require.Len(t, f.events.events, 1)
	event := f.events.events[0]
	assert.Equal(t, models.EventUploadOrphanedPayload, event.Kind)
	assert.True(t, event.Orphan())
	assert.True(t, f.payloadExists(t, event.FilePath))
}

func TestUploadStoreUniqueViolationIsConflict(t *testing.T) {
	f := newFixture(t)
	f.videos.putErr = fmt.Errorf("%w: x", store.ErrTitleTaken)

	_, err := f.svc.Upload(context.Background(), alice, catalog.UploadInput{
		Title: "x",
		Body:  strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, catalog.ErrConflict)
	assert.Equal(t, []models.CatalogEventKind{models.EventUploadOrphanedPayload}, f.events.kinds())
}

func TestUploadTitleLockHeld(t *testing.T) {
	f := newFixture(t, catalog.WithTitleLock(lockedTitles{}))

	_, err := f.svc.Upload(context.Background(), alice, catalog.UploadInput{
		Title: "x",
		Body:  strings.NewReader("x"),
	})
	assert.ErrorIs(t, err, catalog.ErrConflict)
	assert.Equal(t, 0, bucketFiles(t, f))
}

func TestUploadSucceedsWhenEventSinkFails(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("clickhouse down")

	id := f.upload(t, alice, "x")
	_, err := f.svc.Get(context.Background(), alice, id)
	assert.NoError(t, err)
}

func TestGetMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), alice, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDeleteByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, alice, "mine")

	require.NoError(t, f.svc.Delete(ctx, alice, id))

	_, err := f.svc.Get(ctx, alice, id)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.False(t, f.payloadExists(t, testBucket+"/"+id+".mp4"))
	assert.Equal(t, []models.CatalogEventKind{
		models.EventUploadCommitted,
		models.EventDeleteCommitted,
	}, f.events.kinds())

	// the title is free again
	f.upload(t, bob, "mine")
}

func TestDeleteByOtherUserIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.upload(t, alice, "mine")

	err := f.svc.Delete(ctx, bob, id)
	assert.ErrorIs(t, err, catalog.ErrForbidden)

	_, err = f.svc.Get(ctx, alice, id)
	assert.NoError(t, err)
	assert.True(t, f.payloadExists(t, testBucket+"/"+id+".mp4"))
}

func TestDeleteMissing(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Delete(context.Background(), alice, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDeleteMalformedFilePath(t *testing.T) {
	for _, filePath := range []string{"", "no-separator", "/key-only", "bucket-only/"} {
		t.Run(filePath, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, models.Video{ID: "v1", Title: "t", Uploader: "alice", FilePath: filePath})

			err := f.svc.Delete(context.Background(), alice, "v1")
			assert.ErrorIs(t, err, catalog.ErrNotFound)
			assert.Equal(t, 1, f.videos.Len())
		})
	}
}

func TestDeleteObjectFailureKeepsMetadata(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, alice, "mine")
	f.objects.deleteErr = errors.New("access denied")

	err := f.svc.Delete(context.Background(), alice, id)
	assert.ErrorIs(t, err, catalog.ErrStorage)
	assert.Equal(t, 1, f.videos.Len())
}

func TestDeleteMetadataFailureRecordsOrphan(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, alice, "mine")
	f.videos.deleteErr = errors.New("table throttled")

	err := f.svc.Delete(context.Background(), alice, id)
	assert.ErrorIs(t, err, catalog.ErrStorage)
	assert.Equal(t, 1, f.videos.Len())
	assert.False(t, f.payloadExists(t, testBucket+"/"+id+".mp4"))
	assert.Equal(t, []models.CatalogEventKind{
		models.EventUploadCommitted,
		models.EventDeleteOrphanedMetadata,
	}, f.events.kinds())
}

func TestListSortsPageNewestFirst(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	offsets := []int{3, 1, 4, 0, 2}
	for i, off := range offsets {
		f.seed(t, models.Video{
			ID:          fmt.Sprintf("v%d", i),
			Title:       fmt.Sprintf("t%d", i),
			Description: "hidden",
			Uploader:    "alice",
			FilePath:    testBucket + "/k",
			Timestamp:   base.Add(time.Duration(off) * time.Hour),
		})
	}

	page, err := f.svc.List(context.Background(), alice, catalog.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	assert.Empty(t, page.NextToken)

	var ids []string
	for _, it := range page.Items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"v2", "v0", "v4", "v1", "v3"}, ids)
	for i := 1; i < len(page.Items); i++ {
		assert.False(t, page.Items[i].Timestamp.After(page.Items[i-1].Timestamp))
	}
}

func TestListPaginationHasNoDuplicates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 23; i++ {
		f.upload(t, alice, fmt.Sprintf("video %d", i))
	}

	seen := map[string]bool{}
	token := ""
	pages := 0
	for {
		page, err := f.svc.List(context.Background(), bob, catalog.PageRequest{Limit: 5, Token: token})
		require.NoError(t, err)
		pages++
		assert.LessOrEqual(t, len(page.Items), 5)
		for _, it := range page.Items {
			assert.False(t, seen[it.ID], "duplicate id %s", it.ID)
			seen[it.ID] = true
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.Len(t, seen, 23)
	assert.Equal(t, 5, pages)
}

func TestListLimits(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.upload(t, alice, fmt.Sprintf("video %d", i))
	}
	ctx := context.Background()

	page, err := f.svc.List(ctx, alice, catalog.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Items, catalog.DefaultPageSize)
	assert.NotEmpty(t, page.NextToken)

	_, err = f.svc.List(ctx, alice, catalog.PageRequest{Limit: catalog.MaxPageSize + 1})
	assert.ErrorIs(t, err, catalog.ErrInvalidInput)

	_, err = f.svc.List(ctx, alice, catalog.PageRequest{Limit: -1})
	assert.ErrorIs(t, err, catalog.ErrInvalidInput)
}

func TestListDefaultPageSizeOption(t *testing.T) {
	f := newFixture(t, catalog.WithDefaultPageSize(3))
	for i := 0; i < 5; i++ {
		f.upload(t, alice, fmt.Sprintf("video %d", i))
	}

	page, err := f.svc.List(context.Background(), alice, catalog.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func TestListRejectsBadToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), alice, catalog.PageRequest{Token: "%%%"})
	assert.ErrorIs(t, err, catalog.ErrInvalidInput)
}

func TestListRequiresIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), nil, catalog.PageRequest{})
	assert.ErrorIs(t, err, catalog.ErrUnauthorized)
}

func TestMyVideosOnlyReturnsCallersVideos(t *testing.T) {
	f := newFixture(t)
	a1 := f.upload(t, alice, "a1")
	a2 := f.upload(t, alice, "a2")
	f.upload(t, bob, "b1")

	page, err := f.svc.MyVideos(context.Background(), alice, catalog.PageRequest{Limit: 100})
	require.NoError(t, err)

	var ids []string
	for _, it := range page.Items {
		assert.Equal(t, "alice", it.Uploader)
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{a1, a2}, ids)
}

func TestSearchTitleContainsIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	hit1 := f.upload(t, alice, "foo bar")
	hit2 := f.upload(t, bob, "xfoox")
	f.upload(t, alice, "Foo")
	f.upload(t, alice, "bar")

	page, err := f.svc.Search(context.Background(), alice, "title", "foo", catalog.PageRequest{Limit: 100})
	require.NoError(t, err)

	var ids []string
	for _, it := range page.Items {
		ids = append(ids, it.ID)
	}
	assert.ElementsMatch(t, []string{hit1, hit2}, ids)
}

func TestSearchDescription(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, alice, "needle")
	f.upload(t, alice, "hay")

	page, err := f.svc.Search(context.Background(), alice, "description", "about need", catalog.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, id, page.Items[0].ID)
}

func TestSearchUnknownCategoryMatchesNothing(t *testing.T) {
	f := newFixture(t)
	f.upload(t, alice, "foo")

	page, err := f.svc.Search(context.Background(), alice, "genre", "foo", catalog.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestSearchRequiresCategoryAndKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Search(ctx, alice, "", "foo", catalog.PageRequest{})
	assert.ErrorIs(t, err, catalog.ErrInvalidInput)

	_, err = f.svc.Search(ctx, alice, "title", "", catalog.PageRequest{})
	assert.ErrorIs(t, err, catalog.ErrInvalidInput)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.Authenticate(ctx, "alice-token")
	require.NoError(t, err)
	assert.Equal(t, alice, id)

	_, err = f.svc.Authenticate(ctx, "forged")
	assert.ErrorIs(t, err, catalog.ErrUnauthorized)
}

func TestAuthenticateProviderDown(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("%w: dial tcp: timeout", auth.ErrProviderUnavailable)}
	svc := catalog.NewService(store.NewMemoryVideoStore(), nil, resolver, zap.NewNop())

	_, err := svc.Authenticate(context.Background(), "any")
	assert.ErrorIs(t, err, catalog.ErrStorage)
	assert.NotErrorIs(t, err, catalog.ErrUnauthorized)
}
