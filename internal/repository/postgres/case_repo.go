package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CaseRepo implements CaseRepository using PostgreSQL.
type CaseRepo struct{ db *DB }

// NewCaseRepo constructs a case repository.
func NewCaseRepo(db *DB) *CaseRepo { return &CaseRepo{db: db} }

const caseCols = `c.id, c.title, c.description,
c.customer_name, c.customer_phone, c.customer_email,
c.address_street, c.address_city, c.address_state, c.address_pincode, c.latitude, c.longitude,
c.status, c.priority, c.assigned_to, c.assigned_at,
cl.id, COALESCE(cl.name,''), COALESCE(cl.code,''),
c.notes, c.verification_type, c.verification_outcome, c.form_data,
c.created_by, c.created_at, c.updated_at, c.completed_at`

const caseFrom = ` FROM cases c LEFT JOIN clients cl ON cl.id = c.client_id`

// Get loads a case; a non-nil assignee restricts the lookup.
func (r *CaseRepo) Get(ctx context.Context, id, assignee uuid.UUID) (*model.Case, error) {
	const q = `SELECT ` + caseCols + caseFrom + ` WHERE c.id=$1 AND ($2::uuid IS NULL OR c.assigned_to=$2)`
	c, err := scanCase(r.db.Pool.QueryRow(ctx, q, id, nullUUID(assignee)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return c, err
}

// Create inserts c unless the id exists.
func (r *CaseRepo) Create(ctx context.Context, c *model.Case) (bool, error) {
	const q = `
INSERT INTO cases (id, title, description,
  customer_name, customer_phone, customer_email,
  address_street, address_city, address_state, address_pincode, latitude, longitude,
  status, priority, assigned_to, assigned_at, client_id,
  notes, verification_type, verification_outcome, form_data,
  created_by, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT (id) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q,
		c.ID, c.Title, c.Description,
		c.CustomerName, c.CustomerPhone, c.CustomerEmail,
		c.AddressStreet, c.AddressCity, c.AddressState, c.AddressPincode, c.Latitude, c.Longitude,
		string(c.Status), string(c.Priority), nullUUID(c.AssignedTo), c.AssignedAt, nullUUID(c.Client.ID),
		c.Notes, c.VerificationType, c.VerificationOutcome, nullJSON(c.FormData),
		nullUUID(c.CreatedBy), c.CreatedAt, c.UpdatedAt, c.CompletedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Update writes c if updated_at still equals prevUpdatedAt.
func (r *CaseRepo) Update(ctx context.Context, c *model.Case, prevUpdatedAt time.Time) error {
	return casUpdate(ctx, r.db.Pool, c, prevUpdatedAt)
}

// ListUpdatedSince returns cases with updated_at > f.Since, oldest first.
func (r *CaseRepo) ListUpdatedSince(ctx context.Context, f model.CaseFilter) ([]model.Case, error) {
	const q = `SELECT ` + caseCols + caseFrom + `
WHERE c.updated_at > $1 AND ($2::uuid IS NULL OR c.assigned_to=$2)
ORDER BY c.updated_at ASC, c.id ASC
LIMIT NULLIF($3::int, 0)`
	rows, err := r.db.Pool.Query(ctx, q, f.Since, nullUUID(f.AssignedTo), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func casUpdate(ctx context.Context, ex execer, c *model.Case, prevUpdatedAt time.Time) error {
	const q = `
UPDATE cases SET title=$3, description=$4,
  customer_name=$5, customer_phone=$6, customer_email=$7,
  address_street=$8, address_city=$9, address_state=$10, address_pincode=$11, latitude=$12, longitude=$13,
  status=$14, priority=$15, assigned_to=$16, assigned_at=$17, client_id=$18,
  notes=$19, verification_type=$20, verification_outcome=$21, form_data=$22,
  updated_at=$23, completed_at=$24
WHERE id=$1 AND updated_at=$2`
	tag, err := ex.Exec(ctx, q,
		c.ID, prevUpdatedAt, c.Title, c.Description,
		c.CustomerName, c.CustomerPhone, c.CustomerEmail,
		c.AddressStreet, c.AddressCity, c.AddressState, c.AddressPincode, c.Latitude, c.Longitude,
		string(c.Status), string(c.Priority), nullUUID(c.AssignedTo), c.AssignedAt, nullUUID(c.Client.ID),
		c.Notes, c.VerificationType, c.VerificationOutcome, nullJSON(c.FormData),
		c.UpdatedAt, c.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := ex.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return errs.ErrNotFound
	}
	return errs.ErrVersionConflict
}

func scanCase(row pgx.Row) (*model.Case, error) {
	var (
		c                  model.Case
		status, priority   string
		assignee, clientID uuid.NullUUID
		createdBy          uuid.NullUUID
		formData           []byte
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description,
		&c.CustomerName, &c.CustomerPhone, &c.CustomerEmail,
		&c.AddressStreet, &c.AddressCity, &c.AddressState, &c.AddressPincode, &c.Latitude, &c.Longitude,
		&status, &priority, &assignee, &c.AssignedAt,
		&clientID, &c.Client.Name, &c.Client.Code,
		&c.Notes, &c.VerificationType, &c.VerificationOutcome, &formData,
		&createdBy, &c.CreatedAt, &c.UpdatedAt, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	c.Status = model.CaseStatus(status)
	c.Priority = model.CasePriority(priority)
	c.AssignedTo = assignee.UUID
	c.Client.ID = clientID.UUID
	c.CreatedBy = createdBy.UUID
	if len(formData) > 0 {
		c.FormData = formData
	}
	return &c, nil
}
