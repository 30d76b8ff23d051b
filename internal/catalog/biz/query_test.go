package biz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterSearchIsCaseInsensitive(t *testing.T) {
	entries := []*Entry{
		{ID: "1", OriginalFilename: "report.pdf"},
		{ID: "2", OriginalFilename: "image.png"},
	}
	got := Filter(entries, BuildPredicate(FilterInput{Search: "REPORT"}))
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestFilterCombinesCriteria(t *testing.T) {
	entries := dedupCatalog()

	tests := []struct {
		name string
		in   FilterInput
		want []string
	}{
		{"match all keeps order", FilterInput{}, []string{"orig", "dup-1", "dup-2", "img"}},
		{"type", FilterInput{FileType: "image/png"}, []string{"img"}},
		{"search and type", FilterInput{Search: "report", FileType: "application/pdf"}, []string{"orig", "dup-1", "dup-2"}},
		{"size bounds are inclusive", FilterInput{SizeMinKB: "20", SizeMaxKB: "20"}, []string{"img"}},
		{"min above max is empty", FilterInput{SizeMinKB: "30", SizeMaxKB: "1"}, []string{}},
		{"date bounds are inclusive", FilterInput{UploadedAfter: "2024-03-10", UploadedBefore: "2024-03-10"}, []string{"orig", "dup-1", "dup-2"}},
		{"after excludes earlier", FilterInput{UploadedAfter: "2024-03-11"}, []string{"img"}},
		{"no match", FilterInput{Search: "missing"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(entries, BuildPredicate(tt.in))
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	entries := dedupCatalog()
	before := ids(entries)

	_ = Filter(entries, BuildPredicate(FilterInput{FileType: "image/png"}))
	_ = Filter(entries, BuildPredicate(FilterInput{Search: "copy"}))

	assert.Equal(t, before, ids(entries))
}

func TestFilterSkipsNil(t *testing.T) {
	got := Filter([]*Entry{nil, {ID: "a"}}, MatchAll())
	assert.Equal(t, []string{"a"}, ids(got))
	assert.False(t, Match(nil, MatchAll()))
}

func TestMatchExactBoundaryInstant(t *testing.T) {
	at := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	e := &Entry{ID: "x", UploadedAt: at}
	p := Predicate{UploadedAfter: &at, UploadedBefore: &at}
	assert.True(t, Match(e, p))
}

func TestFileTypesOf(t *testing.T) {
	entries := append(dedupCatalog(), &Entry{ID: "untyped"})
	assert.Equal(t, []string{"application/pdf", "image/png"}, FileTypesOf(entries))
	assert.Empty(t, FileTypesOf(nil))
}
