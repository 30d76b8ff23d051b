package biz

import "fmt"

// IssueKind 一致性问题类型
type IssueKind string

const (
	IssueDuplicateFlag    IssueKind = "duplicate_flag_mismatch"
	IssueMissingOriginal  IssueKind = "missing_original"
	IssueChainedDuplicate IssueKind = "chained_duplicate"
	IssueReferenceCount   IssueKind = "reference_count_mismatch"
	IssueInvalidRefCount  IssueKind = "invalid_reference_count"
	IssueSizeMismatch     IssueKind = "size_mismatch"
	IssueNegativeSize     IssueKind = "negative_size"
)

// IntegrityIssue 一条违反去重不变量的记录
type IntegrityIssue struct {
	EntryID string
	Kind    IssueKind
	Detail  string
}

// DuplicatesOf returns the entries whose ReferencedFileID is originalID, in input order
func DuplicatesOf(entries []*Entry, originalID string) []*Entry {
	out := make([]*Entry, 0)
	for _, e := range entries {
		if e != nil && e.IsDuplicate && e.ReferencedFileID != nil && *e.ReferencedFileID == originalID {
			out = append(out, e)
		}
	}
	return out
}

// CheckIntegrity checks the dedup invariants over a full catalog snapshot.
// Running it on a filtered view reports missing originals and count mismatches
// that are artifacts of the filter.
func CheckIntegrity(entries []*Entry) []IntegrityIssue {
	var issues []IntegrityIssue
	report := func(id string, kind IssueKind, format string, args ...any) {
		issues = append(issues, IntegrityIssue{EntryID: id, Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	byID := make(map[string]*Entry, len(entries))
	dupCount := make(map[string]int)
	for _, e := range entries {
		if e == nil {
			continue
		}
		byID[e.ID] = e
		if e.ReferencedFileID != nil {
			dupCount[*e.ReferencedFileID]++
		}
	}

	for _, e := range entries {
		if e == nil {
			continue
		}
		if e.SizeBytes < 0 {
			report(e.ID, IssueNegativeSize, "size_bytes is %d", e.SizeBytes)
		}
		if e.IsDuplicate != (e.ReferencedFileID != nil) {
			report(e.ID, IssueDuplicateFlag, "is_duplicate=%t but referenced_file_id set=%t", e.IsDuplicate, e.ReferencedFileID != nil)
		}

		if e.ReferencedFileID != nil {
			orig, ok := byID[*e.ReferencedFileID]
			switch {
			case !ok:
				report(e.ID, IssueMissingOriginal, "referenced original %s is not in the catalog", *e.ReferencedFileID)
			case orig.IsDuplicate:
				report(e.ID, IssueChainedDuplicate, "referenced entry %s is itself a duplicate", orig.ID)
			case orig.SizeBytes != e.SizeBytes:
				report(e.ID, IssueSizeMismatch, "size %d differs from original %s size %d", e.SizeBytes, orig.ID, orig.SizeBytes)
			}
			continue
		}

		if e.ReferenceCount < 1 {
			report(e.ID, IssueInvalidRefCount, "reference_count is %d", e.ReferenceCount)
			continue
		}
		if want := e.ReferenceCount - 1; dupCount[e.ID] != want {
			report(e.ID, IssueReferenceCount, "reference_count %d implies %d duplicates, found %d", e.ReferenceCount, want, dupCount[e.ID])
		}
	}
	return issues
}
