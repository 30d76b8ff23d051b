package biz

import "time"

// Entry 目录条目，一次逻辑上传对应一条（而不是一个物理文件）
type Entry struct {
	ID               string
	OriginalFilename string
	FileType         string // 可能为空
	SizeBytes        int64
	UploadedAt       time.Time
	DownloadLocator  string  // 对象存储中的 key，重复文件与原始文件共享
	ContentHash      *string // 后端未计算时为 nil
	IsDuplicate      bool
	ReferenceCount   int     // 仅原始文件上的值具有权威性
	ReferencedFileID *string // 当且仅当 IsDuplicate 时非 nil
}

// ResultSet 一次查询的结果，Entries 保持后端返回顺序
type ResultSet struct {
	Predicate  Predicate
	Entries    []*Entry
	Generation uint64
	FetchedAt  time.Time
	Cached     bool
}

// cloneEntries returns deep copies so cached results cannot be mutated through shared pointers
func cloneEntries(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		cp := *e
		if e.ContentHash != nil {
			h := *e.ContentHash
			cp.ContentHash = &h
		}
		if e.ReferencedFileID != nil {
			ref := *e.ReferencedFileID
			cp.ReferencedFileID = &ref
		}
		out = append(out, &cp)
	}
	return out
}
