package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/models"
)

const baseColumns = `id, user_id, folder_id, title, description, notes, links, code,
		attachment_key, attachment_name, attachment_size, attachment_content_type,
		created_at, updated_at`

// PostgresRepository implements question storage over a dbx.DBTX.
// The terminal_output column is optional in deployed schemas; it is only
// referenced when terminalOutput is set.
type PostgresRepository struct {
	db             dbx.DBTX
	terminalOutput bool
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, terminalOutput bool) *PostgresRepository {
	return &PostgresRepository{db: db, terminalOutput: terminalOutput}
}

func (r *PostgresRepository) columns() string {
	if r.terminalOutput {
		return baseColumns + `, terminal_output`
	}
	return baseColumns
}

// Create inserts q using its pre-assigned id.
func (r *PostgresRepository) Create(ctx context.Context, q *models.Question) (*models.Question, error) {
	links, err := encodeLinks(q.Links)
	if err != nil {
		return nil, err
	}

	cols := []string{"id", "user_id", "folder_id", "title", "description", "notes", "links", "code",
		"attachment_key", "attachment_name", "attachment_size", "attachment_content_type"}
	key, name, size, ctype := attachmentArgs(q.Attachment)
	args := []any{q.ID, q.UserID, q.FolderID, q.Title, q.Description, q.Notes, links, q.Code, key, name, size, ctype}
	if r.terminalOutput && q.TerminalOutput != nil {
		cols = append(cols, "terminal_output")
		args = append(args, q.TerminalOutput)
	}

	query := fmt.Sprintf(`
		INSERT INTO questions (%s)
		VALUES (%s)
		RETURNING created_at, updated_at
	`, strings.Join(cols, ", "), placeholders(1, len(args)))

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if !r.terminalOutput {
		q.TerminalOutput = nil
	}
	return q, nil
}

// Get returns one question or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Question, error) {
	query := `SELECT ` + r.columns() + ` FROM questions WHERE id = $1`
	q, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return q, nil
}

// ListByFolder returns the folder's questions, newest first.
func (r *PostgresRepository) ListByFolder(ctx context.Context, folderID string) ([]*models.Question, error) {
	query := `SELECT ` + r.columns() + ` FROM questions WHERE folder_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	defer rows.Close()

	var result []*models.Question
	for rows.Next() {
		q, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update overwrites the editable fields and the attachment metadata of q.
func (r *PostgresRepository) Update(ctx context.Context, q *models.Question) error {
	links, err := encodeLinks(q.Links)
	if err != nil {
		return err
	}

	key, name, size, ctype := attachmentArgs(q.Attachment)
	sets := []string{"title", "description", "notes", "links", "code",
		"attachment_key", "attachment_name", "attachment_size", "attachment_content_type"}
	args := []any{q.ID, q.Title, q.Description, q.Notes, links, q.Code, key, name, size, ctype}
	if r.terminalOutput {
		sets = append(sets, "terminal_output")
		args = append(args, q.TerminalOutput)
	}

	assignments := make([]string, len(sets))
	for i, col := range sets {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+2)
	}

	query := fmt.Sprintf(`
		UPDATE questions SET %s, updated_at = now()
		WHERE id = $1
	`, strings.Join(assignments, ", "))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Delete removes the question row. The caller owns blob cleanup.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// AttachmentsInFolder lists the attachments of every question in folderID.
func (r *PostgresRepository) AttachmentsInFolder(ctx context.Context, folderID string) ([]*models.Attachment, error) {
	query := `
		SELECT id, attachment_key, attachment_name, attachment_size, attachment_content_type
		FROM questions
		WHERE folder_id = $1 AND attachment_key IS NOT NULL
	`
	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.Attachment
	for rows.Next() {
		var (
			a     models.Attachment
			name  sql.NullString
			size  sql.NullInt64
			ctype sql.NullString
		)
		if err := rows.Scan(&a.RecordID, &a.StorageKey, &name, &size, &ctype); err != nil {
			return nil, err
		}
		a.DisplayName, a.ByteSize, a.ContentType = name.String, size.Int64, ctype.String
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(row scanner) (*models.Question, error) {
	var (
		q                        models.Question
		description, notes, code sql.NullString
		links                    []byte
		attKey, attName, attType sql.NullString
		attSize                  sql.NullInt64
		terminalOutput           sql.NullString
	)
	dest := []any{&q.ID, &q.UserID, &q.FolderID, &q.Title, &description, &notes, &links, &code,
		&attKey, &attName, &attSize, &attType, &q.CreatedAt, &q.UpdatedAt}
	if r.terminalOutput {
		dest = append(dest, &terminalOutput)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	q.Description = nullable(description)
	q.Notes = nullable(notes)
	q.Code = nullable(code)
	q.TerminalOutput = nullable(terminalOutput)
	if len(links) > 0 {
		if err := json.Unmarshal(links, &q.Links); err != nil {
			return nil, fmt.Errorf("decode links: %w", err)
		}
	}
	if attKey.Valid && attKey.String != "" {
		q.Attachment = &models.Attachment{
			RecordID:    q.ID,
			StorageKey:  attKey.String,
			DisplayName: attName.String,
			ByteSize:    attSize.Int64,
			ContentType: attType.String,
		}
	}
	return &q, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// encodeLinks renders links as a JSON array, or SQL NULL when empty.
func encodeLinks(links []string) (any, error) {
	if len(links) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}
	return string(b), nil
}

func attachmentArgs(a *models.Attachment) (key, name, size, ctype any) {
	if a == nil {
		return nil, nil, nil, nil
	}
	return a.StorageKey, a.DisplayName, a.ByteSize, a.ContentType
}

func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ", ")
}
