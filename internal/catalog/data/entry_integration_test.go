//go:build integration

package data

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/lk2023060901/file-catalog/internal/pkg/database"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEntryRepo(t *testing.T) *EntryRepo {
	t.Helper()
	cfg := database.DefaultConfig()
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	if name := os.Getenv("TEST_DB_NAME"); name != "" {
		cfg.DBName = name
	}

	db, err := database.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewEntryRepo(db, logger.NewNop())
	require.NoError(t, repo.Migrate())
	require.NoError(t, db.Exec("DELETE FROM files").Error)
	return repo
}

func seedDedup(t *testing.T, repo *EntryRepo) (origID, dupID string) {
	t.Helper()
	origID, dupID = uuid.NewString(), uuid.NewString()
	hash := uuid.NewString()[:32]
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Insert(t.Context(), &biz.Entry{
		ID: origID, OriginalFilename: "100%_report.pdf", FileType: "application/pdf", SizeBytes: 1000,
		UploadedAt: now, DownloadLocator: "uploads/a.pdf", ContentHash: &hash, ReferenceCount: 2,
	}))
	require.NoError(t, repo.Insert(t.Context(), &biz.Entry{
		ID: dupID, OriginalFilename: "copy.pdf", FileType: "application/pdf", SizeBytes: 1000,
		UploadedAt: now.Add(time.Second), DownloadLocator: "uploads/a.pdf", IsDuplicate: true,
		ReferenceCount: 1, ReferencedFileID: &origID,
	}))
	return origID, dupID
}

func TestEntryRepoListOrderAndFilters(t *testing.T) {
	repo := setupEntryRepo(t)
	origID, dupID := seedDedup(t, repo)

	all, err := repo.List(t.Context(), biz.MatchAll())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, dupID, all[0].ID, "newest first")

	got, err := repo.List(t.Context(), biz.BuildPredicate(biz.FilterInput{Search: "100%_R"}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, origID, got[0].ID)

	got, err = repo.List(t.Context(), biz.BuildPredicate(biz.FilterInput{Search: "%"}))
	require.NoError(t, err)
	assert.Len(t, got, 1, "wildcards are matched literally")
}

func TestEntryRepoDeletePolicy(t *testing.T) {
	repo := setupEntryRepo(t)
	origID, dupID := seedDedup(t, repo)

	err := repo.Delete(t.Context(), origID)
	assert.ErrorIs(t, err, biz.ErrReferenced)

	require.NoError(t, repo.Delete(t.Context(), dupID))
	orig, err := repo.Get(t.Context(), origID)
	require.NoError(t, err)
	assert.Equal(t, 1, orig.ReferenceCount)

	require.NoError(t, repo.Delete(t.Context(), origID))
	_, err = repo.Get(t.Context(), origID)
	assert.ErrorIs(t, err, biz.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(t.Context(), origID), biz.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(t.Context(), "not-a-uuid"), biz.ErrNotFound)
}
