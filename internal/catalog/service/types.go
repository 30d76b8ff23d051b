package service

import (
	"net/url"
	"time"

	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
)

// FilterQuery 列表过滤参数，全部按字符串接收，格式错误的值被忽略
type FilterQuery struct {
	Search         string `form:"search"`
	FileType       string `form:"file_type"`
	SizeMin        string `form:"size_min"` // KB
	SizeMax        string `form:"size_max"` // KB
	UploadedAfter  string `form:"uploaded_after"`
	UploadedBefore string `form:"uploaded_before"`
}

func (q FilterQuery) toInput() biz.FilterInput {
	return biz.FilterInput{
		Search:         q.Search,
		FileType:       q.FileType,
		SizeMinKB:      q.SizeMin,
		SizeMaxKB:      q.SizeMax,
		UploadedAfter:  q.UploadedAfter,
		UploadedBefore: q.UploadedBefore,
	}
}

// EntryResponse 目录条目
type EntryResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	Size             int64     `json:"size"`
	UploadedAt       time.Time `json:"uploaded_at"`
	ContentHash      *string   `json:"content_hash"`
	IsDuplicate      bool      `json:"is_duplicate"`
	ReferenceCount   int       `json:"reference_count"`
	ReferencedFileID *string   `json:"referenced_file_id"`
	DownloadURL      string    `json:"download_url"`
}

// SavingsResponse 去重节省统计
type SavingsResponse struct {
	BytesSaved          int64 `json:"bytes_saved"`
	DuplicatesPrevented int64 `json:"duplicates_prevented"`
}

// ListFilesResponse 文件列表响应
type ListFilesResponse struct {
	Items         []*EntryResponse `json:"items"`
	Total         int              `json:"total"`
	Savings       SavingsResponse  `json:"savings"`
	FiltersActive bool             `json:"filters_active"`
	Generation    uint64           `json:"generation"`
	Cached        bool             `json:"cached"`
}

// SavingsReportResponse 视图与全目录的节省统计
type SavingsReportResponse struct {
	View    SavingsResponse `json:"view"`
	Catalog SavingsResponse `json:"catalog"`
}

// IntegrityIssueResponse 一致性问题
type IntegrityIssueResponse struct {
	EntryID string `json:"entry_id"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}

// IntegrityResponse 一致性检查结果
type IntegrityResponse struct {
	Healthy bool                      `json:"healthy"`
	Issues  []*IntegrityIssueResponse `json:"issues"`
}

// BatchDeleteRequest 批量删除请求
type BatchDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// DeleteOutcomeResponse 单个 id 的删除结果
type DeleteOutcomeResponse struct {
	ID        string `json:"id"`
	Success   bool   `json:"success"`
	Code      int    `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"` // 失败原因是暂时性的，可以重新提交
}

// BatchDeleteResponse 批量删除响应
type BatchDeleteResponse struct {
	Items     []*DeleteOutcomeResponse `json:"items"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
}

// InvalidationEvent SSE 推送的目录变更事件
type InvalidationEvent struct {
	Generation uint64    `json:"generation"`
	Reason     string    `json:"reason"`
	EntryIDs   []string  `json:"entry_ids,omitempty"`
	At         time.Time `json:"at"`
}

func toEntryResponse(e *biz.Entry, basePath string) *EntryResponse {
	return &EntryResponse{
		ID:               e.ID,
		OriginalFilename: e.OriginalFilename,
		FileType:         e.FileType,
		Size:             e.SizeBytes,
		UploadedAt:       e.UploadedAt,
		ContentHash:      e.ContentHash,
		IsDuplicate:      e.IsDuplicate,
		ReferenceCount:   e.ReferenceCount,
		ReferencedFileID: e.ReferencedFileID,
		DownloadURL:      basePath + "/files/" + url.PathEscape(e.ID) + "/download",
	}
}

func toEntryResponses(entries []*biz.Entry, basePath string) []*EntryResponse {
	items := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		items[i] = toEntryResponse(e, basePath)
	}
	return items
}

func toSavingsResponse(s biz.Savings) SavingsResponse {
	return SavingsResponse{BytesSaved: s.BytesSaved, DuplicatesPrevented: s.DuplicatesPrevented}
}
