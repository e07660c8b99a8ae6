// Package repository defines storage interfaces implemented by concrete backends.
// Sync and session logic depend only on these interfaces.
package repository

import (
	"context"
	"time"

	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides read access to accounts plus creation for bootstrapping.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// DeviceRepository stores device registrations. Devices are never hard-deleted.
type DeviceRepository interface {
	// Get loads the registration of deviceID for userID.
	Get(ctx context.Context, userID uuid.UUID, deviceID string) (*model.Device, error)
	// GetByDeviceID loads the most recently created registration with the given device id.
	GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	// Create inserts a new registration.
	Create(ctx context.Context, d *model.Device) error
	// Update overwrites metadata, trust and activity fields of an existing registration.
	Update(ctx context.Context, d *model.Device) error
	// ListActiveByUser returns the user's active devices, least recently active first.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	// ListPending returns unapproved devices holding an auth code, newest first.
	ListPending(ctx context.Context) ([]model.PendingDevice, error)
	// Touch sets last_active_at.
	Touch(ctx context.Context, userID uuid.UUID, deviceID string, at time.Time) error
	// SetActive flips is_active on the registration with surrogate id.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// RefreshTokenRepository persists refresh token hashes bound to (user, device).
type RefreshTokenRepository interface {
	// Save stores a token hash.
	Save(ctx context.Context, t *model.RefreshToken) error
	// Get loads a token by hash.
	Get(ctx context.Context, tokenHash []byte) (*model.RefreshToken, error)
	// DeleteForDevice removes all tokens of (userID, deviceID); zero rows is not an error.
	DeleteForDevice(ctx context.Context, userID uuid.UUID, deviceID string) (int64, error)
}

// CaseRepository provides scoped access to cases.
type CaseRepository interface {
	// Get loads a case; a non-nil assignee restricts the lookup to cases assigned to it.
	Get(ctx context.Context, id, assignee uuid.UUID) (*model.Case, error)
	// Create inserts c unless a case with the same id exists; inserted reports which happened.
	Create(ctx context.Context, c *model.Case) (inserted bool, err error)
	// Update writes c if the stored updated_at still equals prevUpdatedAt, else ErrVersionConflict.
	Update(ctx context.Context, c *model.Case, prevUpdatedAt time.Time) error
	// ListUpdatedSince returns cases with updated_at > f.Since, oldest first, at most f.Limit rows.
	ListUpdatedSince(ctx context.Context, f model.CaseFilter) ([]model.Case, error)
}

// AttachmentRepository stores attachment metadata (binaries live in the blob store).
type AttachmentRepository interface {
	// Create inserts a unless the id exists.
	Create(ctx context.Context, a *model.Attachment) (inserted bool, err error)
	// Get loads attachment metadata.
	Get(ctx context.Context, id uuid.UUID) (*model.Attachment, error)
	// Delete removes metadata; ErrNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByCases groups attachments of the given cases by case id.
	ListByCases(ctx context.Context, caseIDs []uuid.UUID) (map[uuid.UUID][]model.Attachment, error)
}

// LocationRepository appends location telemetry.
type LocationRepository interface {
	// Create inserts p unless the id exists.
	Create(ctx context.Context, p *model.LocationPoint) (inserted bool, err error)
}

// AutoSaveRepository keeps at most one draft per (case, form type).
type AutoSaveRepository interface {
	// Save replaces the draft and returns its new version.
	Save(ctx context.Context, d *model.AutoSaveDraft) (int64, error)
	// Get loads the draft or ErrNotFound.
	Get(ctx context.Context, caseID uuid.UUID, formType model.FormType) (*model.AutoSaveDraft, error)
	// Delete removes the draft; absent drafts are not an error.
	Delete(ctx context.Context, caseID uuid.UUID, formType model.FormType) error
}

// VerificationRepository completes cases atomically.
type VerificationRepository interface {
	// Complete writes c (CAS on prevUpdatedAt) and inserts r in one unit of work.
	Complete(ctx context.Context, c *model.Case, prevUpdatedAt time.Time, r *model.VerificationReport) error
}

// AuditRepository persists audit events.
type AuditRepository interface {
	// Insert appends one event.
	Insert(ctx context.Context, e model.AuditEvent) error
}
