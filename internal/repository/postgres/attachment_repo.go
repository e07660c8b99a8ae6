package postgres

import (
	"context"
	"errors"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AttachmentRepo implements AttachmentRepository using PostgreSQL.
type AttachmentRepo struct{ db *DB }

// NewAttachmentRepo constructs an attachment repository.
func NewAttachmentRepo(db *DB) *AttachmentRepo { return &AttachmentRepo{db: db} }

const attachmentCols = `id, case_id, filename, original_name, mime_type, size, storage_key,
latitude, longitude, accuracy, uploaded_by, uploaded_at`

// Create inserts a unless the id exists.
func (r *AttachmentRepo) Create(ctx context.Context, a *model.Attachment) (bool, error) {
	const q = `
INSERT INTO attachments (` + attachmentCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q,
		a.ID, a.CaseID, a.Filename, a.OriginalName, a.MimeType, a.Size, a.StorageKey,
		a.Latitude, a.Longitude, a.Accuracy, a.UploadedBy, a.UploadedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Get loads attachment metadata.
func (r *AttachmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Attachment, error) {
	const q = `SELECT ` + attachmentCols + ` FROM attachments WHERE id=$1`
	a, err := scanAttachment(r.db.Pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return a, err
}

// Delete removes metadata.
func (r *AttachmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM attachments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListByCases groups attachments by case, oldest upload first.
func (r *AttachmentRepo) ListByCases(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID][]model.Attachment, error) {
	out := map[uuid.UUID][]model.Attachment{}
	if len(caseIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(caseIDs))
	for i, id := range caseIDs {
		ids[i] = id.String()
	}
	const q = `SELECT ` + attachmentCols + ` FROM attachments WHERE case_id = ANY($1::uuid[]) ORDER BY uploaded_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out[a.CaseID] = append(out[a.CaseID], *a)
	}
	return out, rows.Err()
}

func scanAttachment(row pgx.Row) (*model.Attachment, error) {
	var a model.Attachment
	err := row.Scan(&a.ID, &a.CaseID, &a.Filename, &a.OriginalName, &a.MimeType, &a.Size, &a.StorageKey,
		&a.Latitude, &a.Longitude, &a.Accuracy, &a.UploadedBy, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LocationRepo implements LocationRepository using PostgreSQL.
type LocationRepo struct{ db *DB }

// NewLocationRepo constructs a location repository.
func NewLocationRepo(db *DB) *LocationRepo { return &LocationRepo{db: db} }

// Create inserts p unless the id exists.
func (r *LocationRepo) Create(ctx context.Context, p *model.LocationPoint) (bool, error) {
	const q = `
INSERT INTO locations (id, user_id, case_id, latitude, longitude, accuracy, source, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, p.ID, p.UserID, nullUUID(p.CaseID), p.Latitude, p.Longitude, p.Accuracy, p.Source, p.RecordedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
