package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pdf returns a document of exactly n bytes that sniffs as PDF.
func pdf(n int) []byte {
	head := []byte("%PDF-1.7\n")
	if n < len(head) {
		n = len(head)
	}
	b := make([]byte, n)
	copy(b, head)
	for i := len(head); i < n; i++ {
		b[i] = 'x'
	}
	return b
}

func pdfUpload(name string, n int) *FileUpload {
	return &FileUpload{Name: name, Content: bytes.NewReader(pdf(n))}
}

// failingReader fails the test if anything reads it.
type failingReader struct{ t *testing.T }

func (r failingReader) Read([]byte) (int, error) {
	r.t.Fatal("content must not be read")
	return 0, io.EOF
}

func newTestAttachmentManager(blobs *countingBlobs) (*AttachmentManager, *fakeDataStore, *fakeRepos) {
	ds := newFakeDataStore()
	repos := newFakeRepos()
	return NewAttachmentManager(blobs, ds, repos, 0, logging.Nop()), ds, repos
}

func TestUpload_StoresUnderFreshKeys(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		a, err := m.Upload(ctx, "q1", pdfUpload("notes.pdf", 1024))
		require.NoError(t, err)
		require.NotNil(t, a)
		assert.False(t, seen[a.StorageKey], "storage key reused: %s", a.StorageKey)
		seen[a.StorageKey] = true

		assert.True(t, strings.HasPrefix(a.StorageKey, "questions/q1/"))
		assert.Equal(t, "q1", a.RecordID)
		assert.Equal(t, "notes.pdf", a.DisplayName)
		assert.Equal(t, int64(1024), a.ByteSize)
		assert.Equal(t, "application/pdf", a.ContentType)

		obj, err := blobs.Get(ctx, a.StorageKey)
		require.NoError(t, err)
		assert.Equal(t, int64(1024), obj.Size)
	}
}

func TestUpload_Policy(t *testing.T) {
	tests := []struct {
		name    string
		file    func(t *testing.T) *FileUpload
		wantErr error
	}{
		{"exe", func(t *testing.T) *FileUpload { return &FileUpload{Name: "setup.exe", Content: failingReader{t}} }, common.ErrUnsupportedType},
		{"no extension", func(t *testing.T) *FileUpload { return &FileUpload{Name: "README", Content: failingReader{t}} }, common.ErrUnsupportedType},
		{"pdf suffix in the middle", func(t *testing.T) *FileUpload { return &FileUpload{Name: "a.pdf.exe", Content: failingReader{t}} }, common.ErrUnsupportedType},
		{"renamed binary", func(t *testing.T) *FileUpload {
			return &FileUpload{Name: "fake.pdf", Content: bytes.NewReader([]byte("MZ\x90\x00 not a pdf"))}
		}, common.ErrUnsupportedType},
		{"too large", func(t *testing.T) *FileUpload { return pdfUpload("big.pdf", DefaultAttachmentMaxBytes+1) }, common.ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := newCountingBlobs()
			m, _, _ := newTestAttachmentManager(blobs)

			a, err := m.Upload(context.Background(), "q1", tt.file(t))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, a)
			assert.Zero(t, blobs.Calls(), "blob store must not be contacted")
		})
	}
}

func TestUpload_ExactlyAtCapIsAccepted(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)

	a, err := m.Upload(context.Background(), "q1", pdfUpload("UPPER.PDF", DefaultAttachmentMaxBytes))
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultAttachmentMaxBytes), a.ByteSize)
}

func TestUpload_NoFileIsNoop(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)

	for _, f := range []*FileUpload{nil, {Name: "", Content: bytes.NewReader(nil)}, {Name: "a.pdf"}} {
		a, err := m.Upload(context.Background(), "q1", f)
		require.NoError(t, err)
		assert.Nil(t, a)
	}
	assert.Zero(t, blobs.Calls())
}

func TestUpload_StoreFailure(t *testing.T) {
	blobs := newCountingBlobs()
	blobs.putErr = errBlobDown
	m, _, _ := newTestAttachmentManager(blobs)

	_, err := m.Upload(context.Background(), "q1", pdfUpload("a.pdf", 100))
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestUpload_StripsClientPath(t *testing.T) {
	m, _, _ := newTestAttachmentManager(newCountingBlobs())

	a, err := m.Upload(context.Background(), "q1", pdfUpload(`C:\Users\ann\report.pdf`, 100))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", a.DisplayName)
}

func TestReplace_NewBeforeOldDelete(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)
	ctx := context.Background()

	old, err := m.Upload(ctx, "q1", pdfUpload("v1.pdf", 2<<20))
	require.NoError(t, err)

	var persisted string
	next, err := m.Replace(ctx, old, "q1", pdfUpload("v2.pdf", 1<<20), func(ctx context.Context, a *models.Attachment) error {
		_, getErr := blobs.Get(ctx, a.StorageKey)
		require.NoError(t, getErr, "new blob is stored before the record points at it")
		_, getErr = blobs.Get(ctx, old.StorageKey)
		require.NoError(t, getErr, "old blob survives until the record moved on")
		persisted = a.StorageKey
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, next.StorageKey, persisted)

	_, err = blobs.Get(ctx, next.StorageKey)
	require.NoError(t, err)

	m.Wait()
	_, err = blobs.Get(ctx, old.StorageKey)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestReplace_UploadFailureKeepsOld(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)
	ctx := context.Background()

	old, err := m.Upload(ctx, "q1", pdfUpload("v1.pdf", 100))
	require.NoError(t, err)

	called := false
	_, err = m.Replace(ctx, old, "q1", &FileUpload{Name: "v2.exe", Content: bytes.NewReader(nil)}, func(context.Context, *models.Attachment) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, common.ErrUnsupportedType)
	assert.False(t, called)

	m.Wait()
	_, err = blobs.Get(ctx, old.StorageKey)
	require.NoError(t, err)
}

func TestReplace_PersistFailureRemovesNewBlob(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)
	ctx := context.Background()

	old, err := m.Upload(ctx, "q1", pdfUpload("v1.pdf", 100))
	require.NoError(t, err)

	persistErr := errors.New("row gone")
	var newKey string
	_, err = m.Replace(ctx, old, "q1", pdfUpload("v2.pdf", 100), func(ctx context.Context, a *models.Attachment) error {
		newKey = a.StorageKey
		return persistErr
	})
	require.ErrorIs(t, err, persistErr)

	m.Wait()
	assert.ElementsMatch(t, []string{old.StorageKey}, blobs.Keys())
	assert.NotEmpty(t, newKey)
}

func TestReplace_OldDeleteFailureIsSwallowed(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, repos := newTestAttachmentManager(blobs)
	ctx := context.Background()

	old, err := m.Upload(ctx, "q1", pdfUpload("v1.pdf", 100))
	require.NoError(t, err)
	blobs.failDelete[old.StorageKey] = true

	next, err := m.Replace(ctx, old, "q1", pdfUpload("v2.pdf", 100), nil)
	require.NoError(t, err)
	require.NotNil(t, next)

	m.Wait()
	assert.Equal(t, []string{old.StorageKey}, repos.orphans.keys())
}

func TestReplace_NoFileKeepsOld(t *testing.T) {
	m, _, _ := newTestAttachmentManager(newCountingBlobs())
	ctx := context.Background()

	old, err := m.Upload(ctx, "q1", pdfUpload("v1.pdf", 100))
	require.NoError(t, err)

	got, err := m.Replace(ctx, old, "q1", nil, nil)
	require.NoError(t, err)
	assert.Same(t, old, got)
}

func TestDelete(t *testing.T) {
	blobs := newCountingBlobs()
	m, ds, repos := newTestAttachmentManager(blobs)
	ctx := context.Background()

	m.Delete(ctx, nil)
	assert.Zero(t, blobs.Calls())

	a, err := m.Upload(ctx, "q1", pdfUpload("a.pdf", 100))
	require.NoError(t, err)
	m.Delete(ctx, a)
	_, err = blobs.Get(ctx, a.StorageKey)
	require.ErrorIs(t, err, common.ErrorNotFound)

	b, err := m.Upload(ctx, "q2", pdfUpload("b.pdf", 100))
	require.NoError(t, err)
	blobs.failDelete[b.StorageKey] = true
	ds.privilegedErr = errors.New("db down")
	assert.NotPanics(t, func() { m.Delete(ctx, b) })
	assert.Empty(t, repos.orphans.keys())
}

func TestSweepOrphans(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, repos := newTestAttachmentManager(blobs)
	ctx := context.Background()

	require.NoError(t, blobs.Put(ctx, "questions/q1/a.pdf", pdf(10), "application/pdf"))
	require.NoError(t, blobs.Put(ctx, "questions/q2/b.pdf", pdf(10), "application/pdf"))
	require.NoError(t, repos.orphans.Record(ctx, "questions/q1/a.pdf", "timeout"))
	require.NoError(t, repos.orphans.Record(ctx, "questions/q2/b.pdf", "timeout"))
	blobs.failDelete["questions/q2/b.pdf"] = true

	n, err := m.SweepOrphans(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"questions/q2/b.pdf"}, repos.orphans.keys())
	assert.Equal(t, 1, repos.orphans.rows["o2"].Attempts)

	delete(blobs.failDelete, "questions/q2/b.pdf")
	n, err = m.SweepOrphans(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, repos.orphans.keys())
	assert.Empty(t, blobs.Keys())
}

func TestOpen(t *testing.T) {
	blobs := newCountingBlobs()
	m, _, _ := newTestAttachmentManager(blobs)
	ctx := context.Background()

	a, err := m.Upload(ctx, "q1", pdfUpload("a.pdf", 64))
	require.NoError(t, err)

	d, err := m.Open(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, d.Object)
	defer d.Object.Body.Close()
	body, err := io.ReadAll(d.Object.Body)
	require.NoError(t, err)
	assert.Equal(t, pdf(64), body)

	_, err = m.Open(ctx, nil)
	require.ErrorIs(t, err, common.ErrorNotFound)

	m.Delete(ctx, a)
	_, err = m.Open(ctx, a)
	require.ErrorIs(t, err, common.ErrorNotFound)
}
