package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/lk2023060901/file-catalog/internal/pkg/database"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FilePO 文件目录数据库模型，一行对应一次逻辑上传
type FilePO struct {
	ID               string    `gorm:"type:uuid;primarykey"`
	File             string    `gorm:"size:1024;not null"` // 对象存储 key
	OriginalFilename string    `gorm:"size:255;not null;index:idx_files_original_filename"`
	FileType         string    `gorm:"size:100;not null;default:'';index:idx_files_file_type"`
	Size             int64     `gorm:"not null;index:idx_files_size"`
	UploadedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_files_uploaded_at"`
	ContentHash      *string   `gorm:"size:64;uniqueIndex:idx_files_content_hash"`
	IsDuplicate      bool      `gorm:"not null;default:false"`
	ReferenceCount   int       `gorm:"not null;default:1"`
	ReferencedFileID *string   `gorm:"type:uuid;index:idx_files_referenced_file_id"`
}

func (FilePO) TableName() string {
	return "files"
}

func (po *FilePO) toEntry() *biz.Entry {
	return &biz.Entry{
		ID:               po.ID,
		OriginalFilename: po.OriginalFilename,
		FileType:         po.FileType,
		SizeBytes:        po.Size,
		UploadedAt:       po.UploadedAt,
		DownloadLocator:  po.File,
		ContentHash:      po.ContentHash,
		IsDuplicate:      po.IsDuplicate,
		ReferenceCount:   po.ReferenceCount,
		ReferencedFileID: po.ReferencedFileID,
	}
}

// EntryRepo 基于 PostgreSQL 的目录仓储
type EntryRepo struct {
	db     *database.DB
	logger *logger.Logger
}

// NewEntryRepo 创建目录仓储
func NewEntryRepo(db *database.DB, log *logger.Logger) *EntryRepo {
	return &EntryRepo{db: db, logger: log.Named("entry_repo")}
}

// Migrate creates or updates the files table
func (r *EntryRepo) Migrate() error {
	return r.db.AutoMigrate(&FilePO{})
}

// List 按条件查询，最近上传的在前
func (r *EntryRepo) List(ctx context.Context, p biz.Predicate) ([]*biz.Entry, error) {
	var pos []FilePO
	err := r.db.WithContext(ctx).
		Scopes(
			database.WhereIf(p.Search != "", "original_filename ILIKE ? ESCAPE '\\'", "%"+escapeLike(p.Search)+"%"),
			database.WhereIf(p.FileType != "", "file_type = ?", p.FileType),
			database.WhereIf(p.SizeMin != nil, "size >= ?", deref(p.SizeMin)),
			database.WhereIf(p.SizeMax != nil, "size <= ?", deref(p.SizeMax)),
			database.WhereIf(p.UploadedAfter != nil, "uploaded_at >= ?", derefTime(p.UploadedAfter)),
			database.WhereIf(p.UploadedBefore != nil, "uploaded_at <= ?", derefTime(p.UploadedBefore)),
			database.OrderBy("uploaded_at", true, "id"),
		).
		Find(&pos).Error
	if err != nil {
		return nil, mapDBError(err)
	}

	entries := make([]*biz.Entry, 0, len(pos))
	for i := range pos {
		entries = append(entries, pos[i].toEntry())
	}
	return entries, nil
}

// Get 根据 ID 获取条目
func (r *EntryRepo) Get(ctx context.Context, id string) (*biz.Entry, error) {
	var po FilePO
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		return nil, mapDBError(err)
	}
	return po.toEntry(), nil
}

// Delete 删除条目
//
// 删除重复文件时原始文件的引用计数减一；原始文件仍被引用时拒绝删除。
func (r *EntryRepo) Delete(ctx context.Context, id string) error {
	err := r.db.TransactionWithRetry(ctx, 3, func(ctx context.Context, tx *gorm.DB) error {
		var po FilePO
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&po).Error; err != nil {
			return err
		}

		if !po.IsDuplicate && po.ReferenceCount > 1 {
			return fmt.Errorf("%w: %s is referenced by %d duplicates", biz.ErrReferenced, id, po.ReferenceCount-1)
		}

		if po.IsDuplicate && po.ReferencedFileID != nil {
			res := tx.Model(&FilePO{}).
				Where("id = ? AND reference_count > 1", *po.ReferencedFileID).
				Update("reference_count", gorm.Expr("reference_count - 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				r.logger.WithContext(ctx).Warn("duplicate references an original without spare references",
					zap.String("id", id), zap.String("original_id", *po.ReferencedFileID))
			}
		}

		return tx.Delete(&FilePO{}, "id = ?", id).Error
	})
	if err != nil {
		return mapDBError(err)
	}
	return nil
}

// Insert 写入一条记录，仅用于测试和数据导入
func (r *EntryRepo) Insert(ctx context.Context, e *biz.Entry) error {
	po := &FilePO{
		ID:               e.ID,
		File:             e.DownloadLocator,
		OriginalFilename: e.OriginalFilename,
		FileType:         e.FileType,
		Size:             e.SizeBytes,
		UploadedAt:       e.UploadedAt,
		ContentHash:      e.ContentHash,
		IsDuplicate:      e.IsDuplicate,
		ReferenceCount:   e.ReferenceCount,
		ReferencedFileID: e.ReferencedFileID,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return mapDBError(err)
	}
	return nil
}

func mapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, biz.ErrReferenced), errors.Is(err, biz.ErrNotFound):
		return err
	case database.IsRecordNotFoundError(err):
		return biz.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return biz.ErrNotFound
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", biz.ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", biz.ErrTransport, err)
}

// escapeLike escapes LIKE wildcards so search is a plain substring match
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
