package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CatalogRepo 目录后端（权威数据源）
//
// List 可以在后端预先过滤，返回顺序即为展示顺序。
// Get / Delete 在条目不存在时返回 ErrNotFound，后端不可达时返回 ErrTransport。
type CatalogRepo interface {
	List(ctx context.Context, p Predicate) ([]*Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore 文件内容存储，按下载定位符读取
type BlobStore interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// Presigner 可选能力：生成带时效的直接下载地址
type Presigner interface {
	PresignGet(ctx context.Context, locator, filename string) (string, error)
}

// TaskRunner 批量删除使用的协程池
type TaskRunner interface {
	Submit(task func()) error
}

// Options CatalogUseCase 可调参数
type Options struct {
	InstanceID    string
	FetchTimeout  time.Duration
	DeleteTimeout time.Duration
	SpoolDir      string
	BatchLimit    int
}

func (o *Options) setDefaults() {
	if o.InstanceID == "" {
		o.InstanceID = uuid.New().String()
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	if o.DeleteTimeout <= 0 {
		o.DeleteTimeout = 30 * time.Second
	}
	if o.BatchLimit <= 0 {
		o.BatchLimit = 100
	}
}

// CatalogUseCase 目录查询与变更协调
type CatalogUseCase struct {
	repo   CatalogRepo
	blobs  BlobStore
	cache  ResultCache
	bus    InvalidationBus
	runner TaskRunner
	logger *logger.Logger
	opts   Options

	queries singleflight.Group
	deletes singleflight.Group

	// deletes currently talking to the backend; the cache is bypassed while non-zero
	inflight atomic.Int64
	// set when a post-delete Bump failed, cleared by the next successful Bump
	cacheSuspect atomic.Bool

	unsubscribe func()
}

// NewCatalogUseCase wires the use case and subscribes it to bus so that
// invalidations from other instances reach an instance-local cache.
func NewCatalogUseCase(
	repo CatalogRepo,
	blobs BlobStore,
	cache ResultCache,
	bus InvalidationBus,
	runner TaskRunner,
	log *logger.Logger,
	opts Options,
) *CatalogUseCase {
	opts.setDefaults()
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	if bus == nil {
		bus = NewLocalBus()
	}

	uc := &CatalogUseCase{
		repo:   repo,
		blobs:  blobs,
		cache:  cache,
		bus:    bus,
		runner: runner,
		logger: log.Named("catalog"),
		opts:   opts,
	}
	uc.unsubscribe = bus.Subscribe(uc.onInvalidation)
	return uc
}

// Close detaches the use case from the invalidation bus
func (uc *CatalogUseCase) Close() {
	if uc.unsubscribe != nil {
		uc.unsubscribe()
	}
}

// InstanceID identifies this process on the invalidation bus
func (uc *CatalogUseCase) InstanceID() string {
	return uc.opts.InstanceID
}

// Bus returns the invalidation bus the use case publishes to
func (uc *CatalogUseCase) Bus() InvalidationBus {
	return uc.bus
}

func (uc *CatalogUseCase) onInvalidation(inv Invalidation) {
	if inv.Origin == uc.opts.InstanceID || uc.cache.Shared() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := uc.cache.Bump(ctx); err != nil {
		uc.cacheSuspect.Store(true)
		uc.logger.Warn("failed to apply remote invalidation", zap.String("origin", inv.Origin), zap.Error(err))
	}
}

// Query returns the entries matching p, served from cache when the catalog
// has not changed since the result was computed.
func (uc *CatalogUseCase) Query(ctx context.Context, p Predicate) (*ResultSet, error) {
	key := p.Key()
	log := uc.logger.WithContext(ctx)

	if uc.bypassCache(ctx) {
		log.Debug("cache bypassed", zap.String("predicate", key))
		entries, err := uc.fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		return &ResultSet{Predicate: p, Entries: entries, FetchedAt: time.Now()}, nil
	}

	gen, err := uc.cache.Generation(ctx)
	if err != nil {
		log.Warn("cache generation unavailable", zap.Error(err))
		entries, err := uc.fetch(ctx, p)
		if err != nil {
			return nil, err
		}
		return &ResultSet{Predicate: p, Entries: entries, FetchedAt: time.Now()}, nil
	}

	if entries, ok, err := uc.cache.Get(ctx, gen, key); err != nil {
		log.Warn("cache read failed", zap.String("predicate", key), zap.Error(err))
	} else if ok {
		return &ResultSet{Predicate: p, Entries: entries, Generation: gen, FetchedAt: time.Now(), Cached: true}, nil
	}

	flightKey := strconv.FormatUint(gen, 10) + "|" + key
	ch := uc.queries.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.FetchTimeout)
		defer cancel()

		entries, err := uc.fetch(fctx, p)
		if err != nil {
			return nil, err
		}
		uc.store(fctx, gen, key, entries)
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return &ResultSet{
			Predicate:  p,
			Entries:    cloneEntries(res.Val.([]*Entry)),
			Generation: gen,
			FetchedAt:  time.Now(),
		}, nil
	}
}

func (uc *CatalogUseCase) bypassCache(ctx context.Context) bool {
	if uc.inflight.Load() > 0 {
		return true
	}
	if !uc.cacheSuspect.Load() {
		return false
	}
	if _, err := uc.cache.Bump(ctx); err != nil {
		return true
	}
	uc.cacheSuspect.Store(false)
	return false
}

// store caches entries unless the catalog changed while they were fetched
func (uc *CatalogUseCase) store(ctx context.Context, gen uint64, key string, entries []*Entry) {
	if uc.inflight.Load() > 0 || uc.cacheSuspect.Load() {
		return
	}
	if cur, err := uc.cache.Generation(ctx); err != nil || cur != gen {
		return
	}
	if err := uc.cache.Set(ctx, gen, key, entries); err != nil {
		uc.logger.Warn("cache write failed", zap.String("predicate", key), zap.Error(err))
	}
}

// fetch lists from the backend and re-applies p, so a backend that ignores
// some criteria still yields a correct result
func (uc *CatalogUseCase) fetch(ctx context.Context, p Predicate) ([]*Entry, error) {
	start := time.Now()
	entries, err := uc.repo.List(ctx, p)
	if err != nil {
		uc.logger.WithContext(ctx).Error("list catalog failed", zap.String("predicate", p.Key()), zap.Error(err))
		return nil, err
	}
	out := Filter(entries, p)
	uc.logger.WithContext(ctx).Debug("catalog fetched",
		zap.String("predicate", p.Key()),
		zap.Int("backend_rows", len(entries)),
		zap.Int("matched", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// Snapshot returns the unfiltered catalog
func (uc *CatalogUseCase) Snapshot(ctx context.Context) (*ResultSet, error) {
	return uc.Query(ctx, MatchAll())
}

// FileTypes lists the distinct file types of the unfiltered catalog,
// independent of any filter the caller has applied
func (uc *CatalogUseCase) FileTypes(ctx context.Context) ([]string, error) {
	rs, err := uc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return FileTypesOf(rs.Entries), nil
}

// SavingsReport 视图与全目录两种口径的节省统计
type SavingsReport struct {
	View    Savings
	Catalog Savings
}

// Savings reports savings over the view selected by p alongside the whole catalog
func (uc *CatalogUseCase) Savings(ctx context.Context, p Predicate) (SavingsReport, error) {
	view, err := uc.Query(ctx, p)
	if err != nil {
		return SavingsReport{}, err
	}
	report := SavingsReport{View: Aggregate(view.Entries)}

	if p.IsMatchAll() {
		report.Catalog = report.View
		return report, nil
	}
	catalog, err := uc.CatalogSavings(ctx)
	if err != nil {
		return SavingsReport{}, err
	}
	report.Catalog = catalog
	return report, nil
}

// CatalogSavings aggregates over the unfiltered catalog
func (uc *CatalogUseCase) CatalogSavings(ctx context.Context) (Savings, error) {
	rs, err := uc.Snapshot(ctx)
	if err != nil {
		return Savings{}, err
	}
	return Aggregate(rs.Entries), nil
}

// Get fetches one entry straight from the backend
func (uc *CatalogUseCase) Get(ctx context.Context, id string) (*Entry, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return uc.repo.Get(ctx, id)
}

// Duplicates returns the duplicates referencing the original id
func (uc *CatalogUseCase) Duplicates(ctx context.Context, id string) ([]*Entry, error) {
	rs, err := uc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range rs.Entries {
		if e.ID == id {
			return DuplicatesOf(rs.Entries, id), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Integrity checks the dedup invariants over the unfiltered catalog
func (uc *CatalogUseCase) Integrity(ctx context.Context) ([]IntegrityIssue, error) {
	rs, err := uc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	issues := CheckIntegrity(rs.Entries)
	if len(issues) > 0 {
		uc.logger.WithContext(ctx).Warn("catalog integrity issues found", zap.Int("count", len(issues)))
	}
	return issues, nil
}

// Generation returns the current cache generation
func (uc *CatalogUseCase) Generation(ctx context.Context) (uint64, error) {
	return uc.cache.Generation(ctx)
}

// IsRecoverable reports errors a caller can retry by re-issuing the operation
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrSuperseded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
