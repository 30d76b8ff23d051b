package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateFlagMatchesReference(t *testing.T) {
	for _, e := range dedupCatalog() {
		assert.Equal(t, e.IsDuplicate, e.ReferencedFileID != nil, e.ID)
	}
}

func TestDuplicatesOfMatchesReferenceCount(t *testing.T) {
	entries := dedupCatalog()
	for _, e := range entries {
		if e.IsDuplicate {
			continue
		}
		assert.Len(t, DuplicatesOf(entries, e.ID), e.ReferenceCount-1, e.ID)
	}
	assert.Equal(t, []string{"dup-1", "dup-2"}, ids(DuplicatesOf(entries, "orig")))
}

func TestCheckIntegrityCleanCatalog(t *testing.T) {
	assert.Empty(t, CheckIntegrity(dedupCatalog()))
}

func TestCheckIntegrityReportsViolations(t *testing.T) {
	entries := dedupCatalog()
	entries[0].ReferenceCount = 5
	entries = append(entries,
		&Entry{ID: "flagless", IsDuplicate: true, ReferenceCount: 1},
		&Entry{ID: "orphan", IsDuplicate: true, ReferenceCount: 1, ReferencedFileID: strPtr("gone")},
		&Entry{ID: "chained", IsDuplicate: true, SizeBytes: 1000, ReferenceCount: 1, ReferencedFileID: strPtr("dup-1")},
		&Entry{ID: "zero", ReferenceCount: 0},
	)

	kinds := map[string]IssueKind{}
	for _, issue := range CheckIntegrity(entries) {
		kinds[issue.EntryID] = issue.Kind
	}

	require.Len(t, kinds, 5)
	assert.Equal(t, IssueReferenceCount, kinds["orig"])
	assert.Equal(t, IssueDuplicateFlag, kinds["flagless"])
	assert.Equal(t, IssueMissingOriginal, kinds["orphan"])
	assert.Equal(t, IssueChainedDuplicate, kinds["chained"])
	assert.Equal(t, IssueInvalidRefCount, kinds["zero"])
}
