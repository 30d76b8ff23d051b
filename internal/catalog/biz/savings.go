package biz

// Savings 去重节省的存储空间
type Savings struct {
	BytesSaved          int64
	DuplicatesPrevented int64
}

// Aggregate sums dedup savings over entries. Only originals referenced more
// than once contribute; duplicates are attributed to their original.
func Aggregate(entries []*Entry) Savings {
	var s Savings
	for _, e := range entries {
		if e == nil || e.IsDuplicate || e.ReferenceCount <= 1 {
			continue
		}
		extra := int64(e.ReferenceCount - 1)
		s.BytesSaved += e.SizeBytes * extra
		s.DuplicatesPrevented += extra
	}
	return s
}
