package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeleteEntry removes id from the backend. Concurrent calls for the same id
// share one backend call and its outcome. On success every cached result is
// invalidated before DeleteEntry returns; on failure nothing changes.
//
// With a shared cache, a delete whose invalidation never lands returns
// ErrInvalidationFailed: the entry is gone but other instances may still
// serve it until the generation is bumped.
func (uc *CatalogUseCase) DeleteEntry(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	log := uc.logger.WithContext(ctx).With(zap.String("entry_id", id))

	ch := uc.deletes.DoChan(id, func() (any, error) {
		uc.inflight.Add(1)
		defer uc.inflight.Add(-1)

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.DeleteTimeout)
		defer cancel()

		if err := uc.repo.Delete(dctx, id); err != nil {
			log.Warn("delete failed", zap.Error(err))
			return nil, err
		}
		if err := uc.invalidate(dctx, "delete", id); err != nil {
			return nil, err
		}
		log.Info("entry deleted")
		return nil, nil
	})

	select {
	case <-ctx.Done():
		// the backend call keeps running for the other waiters
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			log.Debug("delete coalesced with in-flight request")
		}
		return res.Err
	}
}

const (
	bumpAttempts = 3
	bumpBackoff  = 50 * time.Millisecond
)

// invalidate bumps the cache generation and announces the change.
// Called while the delete is still counted as in flight.
func (uc *CatalogUseCase) invalidate(ctx context.Context, reason string, ids ...string) error {
	gen, err := uc.bump(ctx)
	if err != nil {
		uc.cacheSuspect.Store(true)
		uc.logger.Error("cache invalidation failed, bypassing cache until it recovers",
			zap.Bool("shared", uc.cache.Shared()), zap.Error(err))
	} else {
		uc.cacheSuspect.Store(false)
	}

	inv := Invalidation{
		Generation: gen,
		Reason:     reason,
		EntryIDs:   ids,
		Origin:     uc.opts.InstanceID,
		At:         time.Now().UTC(),
	}
	if perr := uc.bus.Publish(ctx, inv); perr != nil {
		uc.logger.Warn("failed to publish invalidation", zap.Uint64("generation", gen), zap.Error(perr))
	}

	// other instances never see cacheSuspect
	if err != nil && uc.cache.Shared() {
		return fmt.Errorf("%w: %w", ErrInvalidationFailed, err)
	}
	return nil
}

// bump retries Bump with a short linear backoff. Queries on this instance
// keep retrying through bypassCache once it gives up.
func (uc *CatalogUseCase) bump(ctx context.Context) (uint64, error) {
	for attempt := 1; ; attempt++ {
		gen, err := uc.cache.Bump(ctx)
		if err == nil {
			return gen, nil
		}
		if attempt == bumpAttempts {
			return 0, err
		}
		uc.logger.Warn("cache bump failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return 0, err
		case <-time.After(time.Duration(attempt) * bumpBackoff):
		}
	}
}

// DeleteOutcome 批量删除中单个 id 的结果
type DeleteOutcome struct {
	ID  string
	Err error
}

// Retryable 失败且可以重新提交
func (o DeleteOutcome) Retryable() bool {
	return o.Err != nil && IsRecoverable(o.Err)
}

// BatchDelete deletes ids concurrently on the task runner. Duplicate ids are
// collapsed; outcomes follow the order ids were first given.
func (uc *CatalogUseCase) BatchDelete(ctx context.Context, ids []string) ([]DeleteOutcome, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	if len(unique) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(unique) > uc.opts.BatchLimit {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(unique), uc.opts.BatchLimit)
	}

	outcomes := make([]DeleteOutcome, len(unique))
	var wg sync.WaitGroup
	for i, id := range unique {
		outcomes[i].ID = id
		task := func() {
			defer wg.Done()
			outcomes[i].Err = uc.DeleteEntry(ctx, id)
		}

		wg.Add(1)
		if uc.runner == nil {
			task()
			continue
		}
		if err := uc.runner.Submit(task); err != nil {
			uc.logger.WithContext(ctx).Debug("task runner rejected delete, running inline", zap.String("entry_id", id), zap.Error(err))
			task()
		}
	}
	wg.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	uc.logger.WithContext(ctx).Info("batch delete finished", zap.Int("requested", len(unique)), zap.Int("failed", failed))
	return outcomes, nil
}

// DownloadTarget 下载目标：对象定位符和建议的文件名
type DownloadTarget struct {
	Locator           string
	SuggestedFilename string
	ContentType       string // 可能为空
}

// DownloadTargetFor resolves where the bytes of e live and the name to save
// them under. Duplicates share their original's locator but keep their own name.
func DownloadTargetFor(e *Entry) DownloadTarget {
	return DownloadTarget{
		Locator:           e.DownloadLocator,
		SuggestedFilename: e.OriginalFilename,
		ContentType:       e.FileType,
	}
}

// DownloadFunc receives the spooled content; it must not retain body after returning
type DownloadFunc func(target DownloadTarget, body io.ReadSeeker, size int64) error

// Download spools the content of entry id into a temporary file and hands
// it to fn. The temporary file is removed on every path.
func (uc *CatalogUseCase) Download(ctx context.Context, id string, fn DownloadFunc) error {
	entry, err := uc.Get(ctx, id)
	if err != nil {
		return err
	}
	target := DownloadTargetFor(entry)
	log := uc.logger.WithContext(ctx).With(zap.String("entry_id", id), zap.String("locator", target.Locator))

	if uc.blobs == nil {
		return fmt.Errorf("%w: no blob store configured", ErrTransport)
	}
	rc, err := uc.blobs.Open(ctx, target.Locator)
	if err != nil {
		log.Warn("open blob failed", zap.Error(err))
		return err
	}
	defer rc.Close()

	spool, err := os.CreateTemp(uc.opts.SpoolDir, "catalog-download-*")
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		if err := os.Remove(spool.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove spool file", zap.String("path", spool.Name()), zap.Error(err))
		}
	}()

	size, err := io.Copy(spool, &ctxReader{ctx: ctx, r: rc})
	if err != nil {
		log.Warn("spooling blob failed", zap.Error(err))
		return fmt.Errorf("%w: read blob: %w", ErrTransport, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool file: %w", err)
	}
	return fn(target, spool, size)
}

// PresignDownload returns a time-limited direct URL for entry id when the
// blob store supports it
func (uc *CatalogUseCase) PresignDownload(ctx context.Context, id string) (string, DownloadTarget, error) {
	signer, ok := uc.blobs.(Presigner)
	if !ok {
		return "", DownloadTarget{}, ErrPresignUnsupported
	}
	entry, err := uc.Get(ctx, id)
	if err != nil {
		return "", DownloadTarget{}, err
	}
	target := DownloadTargetFor(entry)
	url, err := signer.PresignGet(ctx, target.Locator, target.SuggestedFilename)
	if err != nil {
		return "", target, err
	}
	return url, target, nil
}

// ctxReader stops a copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
