package biz

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func strPtr(s string) *string { return &s }

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// dedupCatalog: one original referenced three times, its two duplicates and a unique file
func dedupCatalog() []*Entry {
	return []*Entry{
		{ID: "orig", OriginalFilename: "report.pdf", FileType: "application/pdf", SizeBytes: 1000,
			UploadedAt: baseTime, DownloadLocator: "blobs/abc", ContentHash: strPtr("abc"), ReferenceCount: 3},
		{ID: "dup-1", OriginalFilename: "report-copy.pdf", FileType: "application/pdf", SizeBytes: 1000,
			UploadedAt: baseTime.Add(time.Hour), DownloadLocator: "blobs/abc", ContentHash: strPtr("abc"),
			IsDuplicate: true, ReferenceCount: 1, ReferencedFileID: strPtr("orig")},
		{ID: "dup-2", OriginalFilename: "Q1 Report.pdf", FileType: "application/pdf", SizeBytes: 1000,
			UploadedAt: baseTime.Add(2 * time.Hour), DownloadLocator: "blobs/abc", ContentHash: strPtr("abc"),
			IsDuplicate: true, ReferenceCount: 1, ReferencedFileID: strPtr("orig")},
		{ID: "img", OriginalFilename: "image.png", FileType: "image/png", SizeBytes: 20480,
			UploadedAt: baseTime.AddDate(0, 0, 2), DownloadLocator: "blobs/def", ContentHash: strPtr("def"), ReferenceCount: 1},
	}
}

// fakeRepo is an in-memory CatalogRepo. Delete can be gated to hold calls in flight.
type fakeRepo struct {
	mu      sync.Mutex
	entries []*Entry

	listCalls   atomic.Int64
	deleteCalls atomic.Int64

	listErr   error
	deleteErr error

	// when non-nil, List blocks until it is closed
	listGate chan struct{}
	// when non-nil, Delete signals deleteStarted and blocks until deleteGate is closed
	deleteGate    chan struct{}
	deleteStarted chan struct{}
}

func newFakeRepo(entries []*Entry) *fakeRepo {
	return &fakeRepo{entries: entries}
}

func (r *fakeRepo) List(ctx context.Context, _ Predicate) ([]*Entry, error) {
	r.listCalls.Add(1)
	r.mu.Lock()
	gate, err := r.listGate, r.listErr
	snapshot := cloneEntries(r.entries)
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.deleteCalls.Add(1)
	if r.deleteStarted != nil {
		select {
		case r.deleteStarted <- struct{}{}:
		default:
		}
	}
	if r.deleteGate != nil {
		select {
		case <-r.deleteGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.deleteErr != nil {
		return r.deleteErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *fakeRepo) setListGate(ch chan struct{}) {
	r.mu.Lock()
	r.listGate = ch
	r.mu.Unlock()
}

func ids(entries []*Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

// fakeBlobs serves blob bytes from a map and records closed readers
type fakeBlobs struct {
	objects map[string]string
	opened  atomic.Int64
	closed  atomic.Int64
	signed  bool
}

type trackedReader struct {
	io.Reader
	closed *atomic.Int64
}

func (r *trackedReader) Close() error {
	r.closed.Add(1)
	return nil
}

func (b *fakeBlobs) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	body, ok := b.objects[locator]
	if !ok {
		return nil, ErrBlobNotFound
	}
	b.opened.Add(1)
	return &trackedReader{Reader: strings.NewReader(body), closed: &b.closed}, nil
}

type signingBlobs struct {
	fakeBlobs
}

func (b *signingBlobs) PresignGet(_ context.Context, locator, filename string) (string, error) {
	return "https://blobs.example/" + locator + "?name=" + filename, nil
}

// failingCache wraps MemoryCache and fails Bump while failBump is set.
// shared makes it stand in for a cache every instance reads.
type failingCache struct {
	*MemoryCache
	shared    bool
	failBump  atomic.Bool
	bumpCalls atomic.Int64
}

func (c *failingCache) Bump(ctx context.Context) (uint64, error) {
	c.bumpCalls.Add(1)
	if c.failBump.Load() {
		return 0, errors.New("cache unavailable")
	}
	return c.MemoryCache.Bump(ctx)
}

func (c *failingCache) Shared() bool {
	return c.shared
}

// flakyCache fails the first failures calls to Bump
type flakyCache struct {
	*MemoryCache
	failures int64
	calls    atomic.Int64
}

func (c *flakyCache) Bump(ctx context.Context) (uint64, error) {
	if c.calls.Add(1) <= c.failures {
		return 0, errors.New("connection reset")
	}
	return c.MemoryCache.Bump(ctx)
}

// inlineRunner runs tasks on new goroutines, rejecting every task after reject is set
type inlineRunner struct {
	submitted atomic.Int64
	reject    bool
}

func (r *inlineRunner) Submit(task func()) error {
	if r.reject {
		return errors.New("runner closed")
	}
	r.submitted.Add(1)
	go task()
	return nil
}
