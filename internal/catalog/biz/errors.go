package biz

import (
	"errors"
	"fmt"
)

// 目录相关错误
var (
	ErrNotFound   = errors.New("catalog entry not found")
	ErrTransport  = errors.New("catalog backend unreachable")
	ErrConflict   = errors.New("catalog entry changed concurrently")
	ErrReferenced = errors.New("original file still has duplicates")
	ErrSuperseded = errors.New("query superseded by a newer request")

	// 条目已删除，但共享缓存的 generation 未能更新
	ErrInvalidationFailed = fmt.Errorf("%w: entry deleted but cache invalidation failed", ErrTransport)
)

// 下载与批量操作相关错误
var (
	ErrBlobNotFound       = fmt.Errorf("%w: file content missing", ErrNotFound)
	ErrPresignUnsupported = errors.New("blob store cannot presign downloads")
	ErrBatchTooLarge      = errors.New("too many ids in batch")
	ErrEmptyBatch         = errors.New("batch contains no ids")
)
