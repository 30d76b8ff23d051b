package biz

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteInvalidatesCache(t *testing.T) {
	ctx := t.Context()
	repo := newFakeRepo(dedupCatalog())
	uc := newTestUseCase(repo)

	_, err := uc.Query(ctx, MatchAll())
	require.NoError(t, err)

	require.NoError(t, uc.DeleteEntry(ctx, "img"))

	rs, err := uc.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.False(t, rs.Cached)
	assert.NotContains(t, ids(rs.Entries), "img")
}

func TestDeleteWinsOverInFlightQuery(t *testing.T) {
	ctx := t.Context()
	repo := newFakeRepo(dedupCatalog())
	gate := make(chan struct{})
	repo.setListGate(gate)
	uc := newTestUseCase(repo)

	// this query reads the catalog before the delete and finishes after it
	stale := make(chan *ResultSet, 1)
	go func() {
		rs, err := uc.Query(context.Background(), MatchAll())
		assert.NoError(t, err)
		stale <- rs
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, uc.DeleteEntry(ctx, "img"))
	close(gate)
	<-stale

	for range 3 {
		rs, err := uc.Query(ctx, MatchAll())
		require.NoError(t, err)
		assert.NotContains(t, ids(rs.Entries), "img")
	}
}

func TestConcurrentDeletesAreCoalesced(t *testing.T) {
	repo := newFakeRepo(dedupCatalog())
	repo.deleteGate = make(chan struct{})
	repo.deleteStarted = make(chan struct{}, 1)
	uc := newTestUseCase(repo)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = uc.DeleteEntry(context.Background(), "img")
		}()
	}

	<-repo.deleteStarted
	time.Sleep(50 * time.Millisecond)
	close(repo.deleteGate)
	wg.Wait()

	assert.Equal(t, int64(1), repo.deleteCalls.Load())
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
}

func TestDeleteFailureLeavesViewUnchanged(t *testing.T) {
	ctx := t.Context()
	repo := newFakeRepo(dedupCatalog())
	uc := newTestUseCase(repo)

	before, err := uc.Query(ctx, MatchAll())
	require.NoError(t, err)

	repo.deleteErr = ErrTransport
	err = uc.DeleteEntry(ctx, "img")
	require.ErrorIs(t, err, ErrTransport)

	gen, _ := uc.Generation(ctx)
	assert.Equal(t, uint64(0), gen)

	after, err := uc.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.True(t, after.Cached)
	assert.Equal(t, ids(before.Entries), ids(after.Entries))
}

func TestDeleteUnknownID(t *testing.T) {
	uc := newTestUseCase(newFakeRepo(dedupCatalog()))
	assert.ErrorIs(t, uc.DeleteEntry(t.Context(), "missing"), ErrNotFound)
	assert.ErrorIs(t, uc.DeleteEntry(t.Context(), ""), ErrNotFound)
}

func TestQueriesBypassCacheWhileDeleteInFlight(t *testing.T) {
	repo := newFakeRepo(dedupCatalog())
	repo.deleteGate = make(chan struct{})
	repo.deleteStarted = make(chan struct{}, 1)
	uc := newTestUseCase(repo)

	done := make(chan error, 1)
	go func() { done <- uc.DeleteEntry(context.Background(), "img") }()
	<-repo.deleteStarted

	for range 2 {
		rs, err := uc.Query(t.Context(), MatchAll())
		require.NoError(t, err)
		assert.False(t, rs.Cached)
	}
	assert.Equal(t, int64(2), repo.listCalls.Load())

	close(repo.deleteGate)
	require.NoError(t, <-done)
}

func TestDeleteOutlivesCancelledCaller(t *testing.T) {
	repo := newFakeRepo(dedupCatalog())
	repo.deleteGate = make(chan struct{})
	repo.deleteStarted = make(chan struct{}, 1)
	uc := newTestUseCase(repo)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- uc.DeleteEntry(ctx, "img") }()
	<-repo.deleteStarted
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(repo.deleteGate)
	assert.Eventually(t, func() bool {
		gen, _ := uc.Generation(t.Context())
		return gen == 1
	}, time.Second, 10*time.Millisecond)
}

func TestFailedBumpBypassesCacheUntilRecovered(t *testing.T) {
	ctx := t.Context()
	repo := newFakeRepo(dedupCatalog())
	cache := &failingCache{MemoryCache: NewMemoryCache(0)}
	uc := NewCatalogUseCase(repo, nil, cache, NewLocalBus(), nil, logger.NewNop(), Options{InstanceID: "a"})

	_, err := uc.Query(ctx, MatchAll())
	require.NoError(t, err)

	cache.failBump.Store(true)
	require.NoError(t, uc.DeleteEntry(ctx, "img"))

	rs, err := uc.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.False(t, rs.Cached)
	assert.NotContains(t, ids(rs.Entries), "img")

	cache.failBump.Store(false)
	rs, err = uc.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.False(t, rs.Cached)
	assert.NotContains(t, ids(rs.Entries), "img")

	rs, err = uc.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.True(t, rs.Cached)
}

func TestSharedCacheDeleteReportsFailedInvalidation(t *testing.T) {
	ctx := t.Context()
	repo := newFakeRepo(dedupCatalog())
	cache := &failingCache{MemoryCache: NewMemoryCache(0), shared: true}
	nodeA := NewCatalogUseCase(repo, nil, cache, NewLocalBus(), nil, logger.NewNop(), Options{InstanceID: "a"})
	nodeB := NewCatalogUseCase(repo, nil, cache, NewLocalBus(), nil, logger.NewNop(), Options{InstanceID: "b"})

	_, err := nodeB.Query(ctx, MatchAll())
	require.NoError(t, err)

	cache.failBump.Store(true)
	err = nodeA.DeleteEntry(ctx, "img")
	require.ErrorIs(t, err, ErrInvalidationFailed)
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, int64(bumpAttempts), cache.bumpCalls.Load())

	// the next query on a bumps the shared generation once the cache is back
	cache.failBump.Store(false)
	rs, err := nodeA.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.NotContains(t, ids(rs.Entries), "img")

	rs, err = nodeB.Query(ctx, MatchAll())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rs.Generation)
	assert.NotContains(t, ids(rs.Entries), "img")
}

func TestDeleteRetriesTransientBumpFailure(t *testing.T) {
	ctx := t.Context()
	cache := &flakyCache{MemoryCache: NewMemoryCache(0), failures: 1}
	uc := NewCatalogUseCase(newFakeRepo(dedupCatalog()), nil, cache, NewLocalBus(), nil, logger.NewNop(), Options{InstanceID: "a"})

	require.NoError(t, uc.DeleteEntry(ctx, "img"))
	gen, err := uc.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.False(t, uc.cacheSuspect.Load())
}

func TestDeletePublishesInvalidation(t *testing.T) {
	bus := NewLocalBus()
	var got []Invalidation
	bus.Subscribe(func(inv Invalidation) { got = append(got, inv) })
	uc := NewCatalogUseCase(newFakeRepo(dedupCatalog()), nil, NewMemoryCache(0), bus, nil, logger.NewNop(), Options{InstanceID: "node-a"})

	require.NoError(t, uc.DeleteEntry(t.Context(), "dup-1"))

	require.Len(t, got, 1)
	assert.Equal(t, "node-a", got[0].Origin)
	assert.Equal(t, []string{"dup-1"}, got[0].EntryIDs)
	assert.Equal(t, uint64(1), got[0].Generation)
}

func TestBatchDelete(t *testing.T) {
	repo := newFakeRepo(dedupCatalog())
	runner := &inlineRunner{}
	uc := NewCatalogUseCase(repo, nil, NewMemoryCache(0), NewLocalBus(), runner, logger.NewNop(), Options{InstanceID: "a"})

	outcomes, err := uc.BatchDelete(t.Context(), []string{"img", "dup-1", "img", "missing", ""})
	require.NoError(t, err)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "img", outcomes[0].ID)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, "dup-1", outcomes[1].ID)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, "missing", outcomes[2].ID)
	assert.ErrorIs(t, outcomes[2].Err, ErrNotFound)
	assert.Equal(t, int64(3), runner.submitted.Load())
}

func TestBatchDeleteLimits(t *testing.T) {
	uc := newTestUseCase(newFakeRepo(dedupCatalog()), func(o *Options) { o.BatchLimit = 2 })

	_, err := uc.BatchDelete(t.Context(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = uc.BatchDelete(t.Context(), []string{"", ""})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBatchDeleteRunsInlineWhenRunnerRejects(t *testing.T) {
	repo := newFakeRepo(dedupCatalog())
	uc := NewCatalogUseCase(repo, nil, NewMemoryCache(0), NewLocalBus(), &inlineRunner{reject: true}, logger.NewNop(), Options{})

	outcomes, err := uc.BatchDelete(t.Context(), []string{"img"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, int64(1), repo.deleteCalls.Load())
}

func TestDownloadTargetUsesOwnFilename(t *testing.T) {
	entries := dedupCatalog()
	orig, dup := entries[0], entries[1]

	assert.Equal(t, DownloadTarget{Locator: "blobs/abc", SuggestedFilename: "report.pdf", ContentType: "application/pdf"}, DownloadTargetFor(orig))
	assert.Equal(t, DownloadTarget{Locator: "blobs/abc", SuggestedFilename: "report-copy.pdf", ContentType: "application/pdf"}, DownloadTargetFor(dup))
}

func newDownloadUseCase(t *testing.T, blobs BlobStore) (*CatalogUseCase, string) {
	spool := t.TempDir()
	uc := NewCatalogUseCase(newFakeRepo(dedupCatalog()), blobs, NewMemoryCache(0), NewLocalBus(), nil, logger.NewNop(),
		Options{InstanceID: "a", SpoolDir: spool})
	return uc, spool
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDownloadSpoolsAndCleansUp(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string]string{"blobs/abc": "pdf bytes"}}
	uc, spool := newDownloadUseCase(t, blobs)

	var gotTarget DownloadTarget
	var gotBody string
	err := uc.Download(t.Context(), "dup-2", func(target DownloadTarget, body io.ReadSeeker, size int64) error {
		gotTarget = target
		b, err := io.ReadAll(body)
		gotBody = string(b)
		assert.Equal(t, int64(len(b)), size)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, "Q1 Report.pdf", gotTarget.SuggestedFilename)
	assert.Equal(t, "pdf bytes", gotBody)
	assert.Equal(t, int64(1), blobs.closed.Load())
	assertEmptyDir(t, spool)
}

func TestDownloadFailuresReleaseResources(t *testing.T) {
	blobs := &fakeBlobs{objects: map[string]string{"blobs/abc": "pdf bytes"}}
	uc, spool := newDownloadUseCase(t, blobs)

	boom := errors.New("client went away")
	err := uc.Download(t.Context(), "orig", func(DownloadTarget, io.ReadSeeker, int64) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), blobs.closed.Load())
	assertEmptyDir(t, spool)

	err = uc.Download(t.Context(), "img", func(DownloadTarget, io.ReadSeeker, int64) error { return nil })
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	err = uc.Download(t.Context(), "missing", func(DownloadTarget, io.ReadSeeker, int64) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	gen, _ := uc.Generation(t.Context())
	assert.Equal(t, uint64(0), gen, "downloads never touch catalog state")
}

func TestPresignDownload(t *testing.T) {
	uc, _ := newDownloadUseCase(t, &fakeBlobs{})
	_, _, err := uc.PresignDownload(t.Context(), "orig")
	assert.ErrorIs(t, err, ErrPresignUnsupported)

	uc, _ = newDownloadUseCase(t, &signingBlobs{})
	url, target, err := uc.PresignDownload(t.Context(), "dup-1")
	require.NoError(t, err)
	assert.Equal(t, "report-copy.pdf", target.SuggestedFilename)
	assert.Contains(t, url, "blobs/abc")
}
