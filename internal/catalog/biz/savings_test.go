package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateMatchAll(t *testing.T) {
	got := Aggregate(Filter(dedupCatalog(), MatchAll()))
	assert.Equal(t, Savings{BytesSaved: 2000, DuplicatesPrevented: 2}, got)
}

func TestAggregateEmpty(t *testing.T) {
	assert.Equal(t, Savings{}, Aggregate(nil))
	assert.Equal(t, Savings{}, Aggregate([]*Entry{}))
}

func TestAggregateIgnoresDuplicatesAndUniqueFiles(t *testing.T) {
	dups := Filter(dedupCatalog(), BuildPredicate(FilterInput{Search: "copy"}))
	assert.Equal(t, Savings{}, Aggregate(dups))

	unique := Filter(dedupCatalog(), BuildPredicate(FilterInput{FileType: "image/png"}))
	assert.Equal(t, Savings{}, Aggregate(unique))
}

func TestAggregateIsViewScoped(t *testing.T) {
	// the original alone still reports its full savings even with its duplicates filtered out
	view := Filter(dedupCatalog(), BuildPredicate(FilterInput{Search: "report.pdf"}))
	assert.Equal(t, []string{"orig"}, ids(view))
	assert.Equal(t, Savings{BytesSaved: 2000, DuplicatesPrevented: 2}, Aggregate(view))
}
