package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/blobstore"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/repositories/repomanager"
)

const (
	// DefaultAttachmentMaxBytes caps a single attachment.
	DefaultAttachmentMaxBytes = 10 << 20

	attachmentExt         = ".pdf"
	attachmentContentType = "application/pdf"

	downloadURLTTL = 5 * time.Minute
)

// FileUpload is a file received from the client. A nil *FileUpload, or one
// with an empty Name, means no file was sent.
type FileUpload struct {
	Name    string
	Content io.Reader
}

func (f *FileUpload) present() bool {
	return f != nil && f.Content != nil && strings.TrimSpace(f.Name) != ""
}

// Download is either a presigned URL or an open object, never both.
type Download struct {
	URL    string
	Object *blobstore.Object
}

// AttachmentManager owns the blob side of the single attachment a question
// may carry. It never writes question rows; callers persist the returned
// metadata themselves.
type AttachmentManager struct {
	blobs       blobstore.Store
	ds          DataStore
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	maxBytes    int64

	pending sync.WaitGroup
}

// NewAttachmentManager constructs an AttachmentManager. ds and m are used
// only to record blobs that could not be deleted; both may be nil.
func NewAttachmentManager(blobs blobstore.Store, ds DataStore, m repomanager.RepositoryManager, maxBytes int64, logger logging.Logger) *AttachmentManager {
	if maxBytes <= 0 {
		maxBytes = DefaultAttachmentMaxBytes
	}
	return &AttachmentManager{
		blobs:       blobs,
		ds:          ds,
		repomanager: m,
		logger:      logger,
		maxBytes:    maxBytes,
	}
}

// Upload validates and stores f under a fresh key for recordID. It returns
// (nil, nil) when no file is present.
func (m *AttachmentManager) Upload(ctx context.Context, recordID string, f *FileUpload) (*models.Attachment, error) {
	if !f.present() {
		return nil, nil
	}

	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(f.Name), `\`, "/"))
	if !strings.EqualFold(filepath.Ext(name), attachmentExt) {
		return nil, fmt.Errorf("%w: only %s files are accepted", common.ErrUnsupportedType, attachmentExt)
	}

	body, err := io.ReadAll(io.LimitReader(f.Content, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > m.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", common.ErrTooLarge, m.maxBytes)
	}
	if !mimetype.Detect(body).Is(attachmentContentType) {
		return nil, fmt.Errorf("%w: content is not a PDF document", common.ErrUnsupportedType)
	}

	key := storageKey(recordID)
	if err := m.blobs.Put(ctx, key, body, attachmentContentType); err != nil {
		return nil, blobErr(err)
	}

	return &models.Attachment{
		RecordID:    recordID,
		DisplayName: name,
		StorageKey:  key,
		ByteSize:    int64(len(body)),
		ContentType: attachmentContentType,
	}, nil
}

// Replace uploads f, hands the new attachment to persist, and only then
// schedules deletion of old. If persist fails the new blob is removed and
// old is kept. With no file present Replace returns (old, nil).
func (m *AttachmentManager) Replace(ctx context.Context, old *models.Attachment, recordID string, f *FileUpload, persist func(context.Context, *models.Attachment) error) (*models.Attachment, error) {
	att, err := m.Upload(ctx, recordID, f)
	if err != nil {
		return nil, err
	}
	if att == nil {
		return old, nil
	}

	if persist != nil {
		if err := persist(ctx, att); err != nil {
			m.Delete(ctx, att)
			return nil, err
		}
	}

	if old != nil && old.StorageKey != att.StorageKey {
		m.deleteLater(ctx, old)
	}
	return att, nil
}

// Delete removes the blob of a, if any. Failures are logged and the key is
// recorded for a later sweep; Delete never fails.
func (m *AttachmentManager) Delete(ctx context.Context, a *models.Attachment) {
	if a == nil || a.StorageKey == "" {
		return
	}
	if err := m.blobs.Delete(ctx, a.StorageKey); err != nil {
		m.logger.Warn(ctx, "attachment delete failed", "key", a.StorageKey, "record", a.RecordID, "error", err)
		m.recordOrphan(ctx, a.StorageKey, err)
	}
}

// Wait blocks until every scheduled deletion has finished.
func (m *AttachmentManager) Wait() {
	m.pending.Wait()
}

// Open returns a presigned download URL when the store supports it and
// otherwise the blob itself.
func (m *AttachmentManager) Open(ctx context.Context, a *models.Attachment) (*Download, error) {
	if a == nil || a.StorageKey == "" {
		return nil, common.ErrorNotFound
	}
	if p, ok := m.blobs.(blobstore.Presigner); ok {
		url, err := p.PresignGet(ctx, a.StorageKey, a.DisplayName, downloadURLTTL)
		if err == nil {
			return &Download{URL: url}, nil
		}
		m.logger.Warn(ctx, "presign failed, streaming instead", "key", a.StorageKey, "error", err)
	}
	obj, err := m.blobs.Get(ctx, a.StorageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, blobErr(err)
	}
	return &Download{Object: obj}, nil
}

// SweepOrphans retries deletion of up to limit recorded orphans and returns
// how many were removed.
func (m *AttachmentManager) SweepOrphans(ctx context.Context, limit int) (int, error) {
	if m.ds == nil || m.repomanager == nil {
		return 0, nil
	}

	var list []*models.OrphanBlob
	err := m.ds.Privileged(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		list, err = m.repomanager.Orphans(tx).List(ctx, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, o := range list {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		delErr := m.blobs.Delete(ctx, o.StorageKey)
		err := m.ds.Privileged(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			repo := m.repomanager.Orphans(tx)
			if delErr != nil {
				return repo.MarkAttempt(ctx, o.ID, delErr.Error())
			}
			return repo.Delete(ctx, o.ID)
		})
		if err != nil {
			m.logger.Warn(ctx, "orphan bookkeeping failed", "key", o.StorageKey, "error", err)
			continue
		}
		if delErr != nil {
			m.logger.Warn(ctx, "orphan still not deleted", "key", o.StorageKey, "attempts", o.Attempts+1, "error", delErr)
			continue
		}
		removed++
	}
	return removed, nil
}

func (m *AttachmentManager) deleteLater(ctx context.Context, a *models.Attachment) {
	ctx = context.WithoutCancel(ctx)
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.Delete(ctx, a)
	}()
}

func (m *AttachmentManager) recordOrphan(ctx context.Context, key string, cause error) {
	if m.ds == nil || m.repomanager == nil {
		return
	}
	err := m.ds.Privileged(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return m.repomanager.Orphans(tx).Record(ctx, key, cause.Error())
	})
	if err != nil {
		m.logger.Error(ctx, "failed to record orphaned blob", "key", key, "error", err)
	}
}

// storageKey derives an unguessable key from the owning record.
func storageKey(recordID string) string {
	return fmt.Sprintf("questions/%s/%s%s", recordID, uuid.NewString(), attachmentExt)
}

func blobErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
}
