package data

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_draft\\`, escapeLike(`100% _draft\`))
	assert.Equal(t, "report", escapeLike("report"))
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, biz.ErrNotFound},
		{"malformed uuid", &pgconn.PgError{Code: "22P02"}, biz.ErrNotFound},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, biz.ErrConflict},
		{"referenced", fmt.Errorf("%w: x", biz.ErrReferenced), biz.ErrReferenced},
		{"connection refused", errors.New("dial tcp: connection refused"), biz.ErrTransport},
		{"cancelled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapDBError(tt.err), tt.want)
		})
	}
	assert.NoError(t, mapDBError(nil))
}

func TestFilePOToEntry(t *testing.T) {
	ref := "orig"
	po := FilePO{ID: "dup", File: "uploads/a", OriginalFilename: "a.pdf", Size: 10, IsDuplicate: true, ReferenceCount: 1, ReferencedFileID: &ref}
	e := po.toEntry()
	assert.Equal(t, "uploads/a", e.DownloadLocator)
	assert.Equal(t, int64(10), e.SizeBytes)
	assert.Equal(t, &ref, e.ReferencedFileID)
}
