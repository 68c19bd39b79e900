package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/logging"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/repositories/repomanager"
)

// QuestionInput carries the form fields of a question. Empty optional
// fields are stored as NULL.
type QuestionInput struct {
	Title          string
	Description    string
	Notes          string
	Links          string
	Code           string
	TerminalOutput string

	File             *FileUpload
	RemoveAttachment bool
}

// RecordService implements folder and question operations on behalf of a
// session. Every operation first makes sure the session's token is usable
// and then runs scoped to it; a store-side authorization failure ends the
// session instead of being retried.
type RecordService struct {
	ds          DataStore
	repomanager repomanager.RepositoryManager
	credentials *CredentialManager
	attachments *AttachmentManager
	ledger      *ContributionLedger
	logger      logging.Logger
	now         func() time.Time
}

func NewRecordService(ds DataStore, m repomanager.RepositoryManager, c *CredentialManager, a *AttachmentManager, l *ContributionLedger, logger logging.Logger) *RecordService {
	return &RecordService{
		ds:          ds,
		repomanager: m,
		credentials: c,
		attachments: a,
		ledger:      l,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateFolder creates a folder owned by the session user. The name is
// stored trimmed but otherwise as typed.
func (r *RecordService) CreateFolder(ctx context.Context, s *models.Session, name string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is required", common.ErrorValidation)
	}

	var folder *models.Folder
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		folder, err = r.repomanager.Folders(tx).Create(ctx, &models.Folder{UserID: s.UserID, Name: name})
		return err
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ListFolders returns the visible folders, newest first, each with its
// questions.
func (r *RecordService) ListFolders(ctx context.Context, s *models.Session) ([]*models.Folder, error) {
	var list []*models.Folder
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		list, err = r.repomanager.Folders(tx).List(ctx)
		if err != nil {
			return err
		}
		for _, f := range list {
			if err := r.loadQuestions(ctx, tx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GetFolder returns a folder with its questions.
func (r *RecordService) GetFolder(ctx context.Context, s *models.Session, id string) (*models.Folder, error) {
	var folder *models.Folder
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		folder, err = r.repomanager.Folders(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		return r.loadQuestions(ctx, tx, folder)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// DeleteFolder removes a folder and its questions, then the attachment blobs
// those questions referenced.
func (r *RecordService) DeleteFolder(ctx context.Context, s *models.Session, id string) error {
	var attachments []*models.Attachment
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := r.repomanager.Folders(tx).Get(ctx, id); err != nil {
			return err
		}
		var err error
		attachments, err = r.repomanager.Questions(tx).AttachmentsInFolder(ctx, id)
		if err != nil {
			return err
		}
		return r.repomanager.Folders(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	for _, a := range attachments {
		r.attachments.Delete(ctx, a)
	}
	return nil
}

// CreateQuestion stores a question in folderID, uploading its attachment
// first, and counts one contribution for today.
func (r *RecordService) CreateQuestion(ctx context.Context, s *models.Session, folderID string, in QuestionInput) (*models.Question, error) {
	q := &models.Question{
		ID:       uuid.NewString(),
		UserID:   s.UserID,
		FolderID: folderID,
	}
	if err := r.applyInput(q, in); err != nil {
		return nil, err
	}
	if err := r.credentials.EnsureValid(ctx, s); err != nil {
		return nil, err
	}

	att, err := r.attachments.Upload(ctx, q.ID, in.File)
	if err != nil {
		return nil, err
	}
	q.Attachment = att

	err = r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := r.repomanager.Folders(tx).Get(ctx, folderID); err != nil {
			return err
		}
		_, err := r.repomanager.Questions(tx).Create(ctx, q)
		return err
	})
	if err != nil {
		r.attachments.Delete(ctx, att)
		return nil, err
	}

	if err := r.ledger.RecordActivity(ctx, s, r.now()); err != nil {
		r.logger.Warn(ctx, "failed to record contribution", "user_id", s.UserID, "error", err)
	}
	return q, nil
}

// GetQuestion returns a question together with its folder.
func (r *RecordService) GetQuestion(ctx context.Context, s *models.Session, id string) (*models.Question, *models.Folder, error) {
	var (
		q      *models.Question
		folder *models.Folder
	)
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if q, err = r.repomanager.Questions(tx).Get(ctx, id); err != nil {
			return err
		}
		folder, err = r.repomanager.Folders(tx).Get(ctx, q.FolderID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return q, folder, nil
}

// UpdateQuestion overwrites the question's fields. A new file replaces the
// current attachment; RemoveAttachment without a file drops it.
func (r *RecordService) UpdateQuestion(ctx context.Context, s *models.Session, id string, in QuestionInput) (*models.Question, error) {
	var q *models.Question
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		q, err = r.repomanager.Questions(tx).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := r.applyInput(q, in); err != nil {
		return nil, err
	}

	old := q.Attachment
	save := func(ctx context.Context, att *models.Attachment) error {
		q.Attachment = att
		return r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
			return r.repomanager.Questions(tx).Update(ctx, q)
		})
	}

	switch {
	case in.File.present():
		if _, err := r.attachments.Replace(ctx, old, q.ID, in.File, save); err != nil {
			return nil, err
		}
	case in.RemoveAttachment && old != nil:
		if err := save(ctx, nil); err != nil {
			return nil, err
		}
		r.attachments.Delete(ctx, old)
	default:
		if err := save(ctx, old); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// DeleteQuestion removes the question row, then its attachment blob.
func (r *RecordService) DeleteQuestion(ctx context.Context, s *models.Session, id string) error {
	var att *models.Attachment
	err := r.scoped(ctx, s, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repomanager.Questions(tx)
		q, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		att = q.Attachment
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	r.attachments.Delete(ctx, att)
	return nil
}

// OpenAttachment resolves the attachment of question id for download.
func (r *RecordService) OpenAttachment(ctx context.Context, s *models.Session, id string) (*models.Attachment, *Download, error) {
	q, _, err := r.GetQuestion(ctx, s, id)
	if err != nil {
		return nil, nil, err
	}
	if q.Attachment == nil {
		return nil, nil, common.ErrorNotFound
	}
	d, err := r.attachments.Open(ctx, q.Attachment)
	if err != nil {
		return nil, nil, err
	}
	return q.Attachment, d, nil
}

// Contributions returns the session user's activity in [from, to] and the
// current streak.
func (r *RecordService) Contributions(ctx context.Context, s *models.Session, from, to time.Time) ([]models.ContributionDay, int, error) {
	if err := r.credentials.EnsureValid(ctx, s); err != nil {
		return nil, 0, err
	}
	days, err := r.ledger.RangeQuery(ctx, s, from, to)
	if err != nil {
		return nil, 0, r.sessionErr(s, err)
	}
	n, err := r.ledger.Streak(ctx, s, r.now())
	if err != nil {
		return nil, 0, r.sessionErr(s, err)
	}
	return days, n, nil
}

// scoped runs fn as the session user once the session is known to be valid.
func (r *RecordService) scoped(ctx context.Context, s *models.Session, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if err := r.credentials.EnsureValid(ctx, s); err != nil {
		return err
	}
	return r.sessionErr(s, r.ds.Scoped(ctx, s.AccessToken, fn))
}

// sessionErr turns a store authorization failure into an ended session.
func (r *RecordService) sessionErr(s *models.Session, err error) error {
	if errors.Is(err, common.ErrorUnauthorized) {
		r.credentials.Invalidate(s)
		return common.ErrSessionExpired
	}
	return err
}

func (r *RecordService) loadQuestions(ctx context.Context, tx dbx.DBTX, f *models.Folder) error {
	qs, err := r.repomanager.Questions(tx).ListByFolder(ctx, f.ID)
	if err != nil {
		return err
	}
	f.Questions = make([]models.Question, 0, len(qs))
	for _, q := range qs {
		f.Questions = append(f.Questions, *q)
	}
	return nil
}

// applyInput copies form fields onto q verbatim; escaping is the renderer's job.
func (r *RecordService) applyInput(q *models.Question, in QuestionInput) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	q.Title = title
	q.Description = optional(in.Description)
	q.Notes = optional(in.Notes)
	q.Code = optional(in.Code)
	q.Links = ParseLinks(in.Links)
	q.TerminalOutput = nil
	if r.repomanager.Capabilities().TerminalOutput {
		q.TerminalOutput = optional(in.TerminalOutput)
	}
	return nil
}

// ParseLinks splits text into one link per line, dropping blank lines.
func ParseLinks(text string) []string {
	var links []string
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			links = append(links, l)
		}
	}
	return links
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
