package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/and161185/fieldsync/internal/model"
	"github.com/jackc/pgx/v5"
)

// VerificationRepo implements VerificationRepository using PostgreSQL.
type VerificationRepo struct{ db *DB }

// NewVerificationRepo constructs a verification repository.
func NewVerificationRepo(db *DB) *VerificationRepo { return &VerificationRepo{db: db} }

// Complete writes the case (CAS) and inserts the report in one transaction.
func (r *VerificationRepo) Complete(ctx context.Context, c *model.Case, prevUpdatedAt time.Time, rep *model.VerificationReport) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if err := casUpdate(ctx, tx, c, prevUpdatedAt); err != nil {
			return err
		}
		const q = `
INSERT INTO verification_reports (id, case_id, form_type, submitted_by, form_data, photo_count,
  latitude, longitude, outcome, submitted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
		_, err := tx.Exec(ctx, q, rep.ID, rep.CaseID, string(rep.FormType), rep.SubmittedBy, nullJSON(rep.FormData),
			rep.PhotoCount, rep.Latitude, rep.Longitude, rep.Outcome, rep.SubmittedAt)
		return err
	})
}

// AuditRepo implements AuditRepository using PostgreSQL.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Insert appends an event.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditEvent) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return err
		}
	}
	const q = `
INSERT INTO audit_log (action, actor_id, target_type, target_id, metadata, at)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Pool.Exec(ctx, q, e.Action, nullUUID(e.ActorID), e.TargetType, e.TargetID, nullJSON(meta), e.At)
	return err
}
