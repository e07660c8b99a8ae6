package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceCols = `d.id, d.user_id, d.device_id, d.platform, d.model, d.os_version, d.app_version,
COALESCE(d.push_token,''), d.is_approved, COALESCE(d.auth_code,''), d.auth_code_expires_at,
d.approved_at, d.approved_by, d.rejected_at, d.rejected_by, COALESCE(d.rejection_reason,''),
d.is_active, d.last_active_at, d.created_at, d.updated_at`

// Get loads the registration of deviceID for userID.
func (r *DeviceRepo) Get(ctx context.Context, userID uuid.UUID, deviceID string) (*model.Device, error) {
	const q = `SELECT ` + deviceCols + ` FROM devices d WHERE d.user_id=$1 AND d.device_id=$2`
	return oneDevice(r.db.Pool.QueryRow(ctx, q, userID, deviceID))
}

// GetByDeviceID loads the newest registration with deviceID.
func (r *DeviceRepo) GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error) {
	const q = `SELECT ` + deviceCols + ` FROM devices d WHERE d.device_id=$1 ORDER BY d.created_at DESC LIMIT 1`
	return oneDevice(r.db.Pool.QueryRow(ctx, q, deviceID))
}

// Create inserts a new registration.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device) error {
	if d.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		d.ID = id
	}
	const q = `
INSERT INTO devices (id, user_id, device_id, platform, model, os_version, app_version, push_token,
  is_approved, auth_code, auth_code_expires_at, approved_at, approved_by,
  is_active, last_active_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := r.db.Pool.Exec(ctx, q,
		d.ID, d.UserID, d.DeviceID, string(d.Platform), d.Model, d.OSVersion, d.AppVersion, nullString(d.PushToken),
		d.IsApproved, nullString(d.AuthCode), d.AuthCodeExpiresAt, d.ApprovedAt, d.ApprovedBy,
		d.IsActive, d.LastActiveAt, d.CreatedAt, d.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Update overwrites metadata, trust and activity fields.
func (r *DeviceRepo) Update(ctx context.Context, d *model.Device) error {
	const q = `
UPDATE devices SET platform=$2, model=$3, os_version=$4, app_version=$5, push_token=$6,
  is_approved=$7, auth_code=$8, auth_code_expires_at=$9, approved_at=$10, approved_by=$11,
  rejected_at=$12, rejected_by=$13, rejection_reason=$14,
  is_active=$15, last_active_at=$16, updated_at=$17
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		d.ID, string(d.Platform), d.Model, d.OSVersion, d.AppVersion, nullString(d.PushToken),
		d.IsApproved, nullString(d.AuthCode), d.AuthCodeExpiresAt, d.ApprovedAt, d.ApprovedBy,
		d.RejectedAt, d.RejectedBy, nullString(d.RejectionReason),
		d.IsActive, d.LastActiveAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListActiveByUser returns active devices, least recently active first.
func (r *DeviceRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	const q = `SELECT ` + deviceCols + ` FROM devices d WHERE d.user_id=$1 AND d.is_active ORDER BY d.last_active_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListPending returns unapproved, unrejected devices holding an auth code, newest first.
func (r *DeviceRepo) ListPending(ctx context.Context) ([]model.PendingDevice, error) {
	const q = `SELECT ` + deviceCols + `, u.username, u.name, u.email
FROM devices d JOIN users u ON u.id = d.user_id
WHERE NOT d.is_approved AND d.auth_code IS NOT NULL AND d.rejected_at IS NULL
ORDER BY d.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingDevice
	for rows.Next() {
		var (
			pd model.PendingDevice
			s  scratch
		)
		dest := append(deviceDest(&pd.Device, &s), &pd.Username, &pd.UserName, &pd.UserEmail)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.apply(&pd.Device)
		out = append(out, pd)
	}
	return out, rows.Err()
}

// Touch sets last_active_at.
func (r *DeviceRepo) Touch(ctx context.Context, userID uuid.UUID, deviceID string, at time.Time) error {
	const q = `UPDATE devices SET last_active_at=$3 WHERE user_id=$1 AND device_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, deviceID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetActive flips is_active.
func (r *DeviceRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	const q = `UPDATE devices SET is_active=$2, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// scratch receives nullable columns that do not map 1:1 onto model fields.
type scratch struct {
	platform   string
	approvedBy uuid.NullUUID
	rejectedBy uuid.NullUUID
}

func (s *scratch) apply(d *model.Device) {
	d.Platform = model.Platform(s.platform)
	if s.approvedBy.Valid {
		id := s.approvedBy.UUID
		d.ApprovedBy = &id
	}
	if s.rejectedBy.Valid {
		id := s.rejectedBy.UUID
		d.RejectedBy = &id
	}
}

// deviceDest returns scan targets for deviceCols.
func deviceDest(d *model.Device, s *scratch) []any {
	return []any{
		&d.ID, &d.UserID, &d.DeviceID, &s.platform, &d.Model, &d.OSVersion, &d.AppVersion,
		&d.PushToken, &d.IsApproved, &d.AuthCode, &d.AuthCodeExpiresAt,
		&d.ApprovedAt, &s.approvedBy, &d.RejectedAt, &s.rejectedBy, &d.RejectionReason,
		&d.IsActive, &d.LastActiveAt, &d.CreatedAt, &d.UpdatedAt,
	}
}

func scanDevice(row pgx.Row) (*model.Device, error) {
	var (
		d model.Device
		s scratch
	)
	if err := row.Scan(deviceDest(&d, &s)...); err != nil {
		return nil, err
	}
	s.apply(&d)
	return &d, nil
}

func oneDevice(row pgx.Row) (*model.Device, error) {
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	return d, err
}
