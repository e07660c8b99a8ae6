// Package service contains the device, session, sync and form services.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	pkgcrypto "github.com/and161185/fieldsync/internal/crypto"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// AuthCodeLen is the length of the human-readable device approval code.
const AuthCodeLen = 6

// DeviceConfig tunes registration and quota.
type DeviceConfig struct {
	MaxPerUser    int
	AuthCodeTTL   time.Duration
	ApprovalRoles []model.Role // roles whose devices need admin approval
}

// DeviceService tracks device identity, trust state and per-user quota.
type DeviceService interface {
	// RegisterOrUpdate creates the (user, device) registration or refreshes it on login.
	RegisterOrUpdate(ctx context.Context, u *model.User, deviceID string, info model.DeviceInfo) (*model.Device, error)
	// EnforceQuota deactivates the least recently active device beyond the quota.
	EnforceQuota(ctx context.Context, u *model.User, currentDeviceID string) (*model.Device, error)
	// Approve marks a pending device as trusted.
	Approve(ctx context.Context, deviceID string, adminID uuid.UUID) (*model.Device, error)
	// Reject terminally refuses a device and revokes its sessions.
	Reject(ctx context.Context, deviceID string, adminID uuid.UUID, reason string) (*model.Device, error)
	// ListPending returns devices awaiting approval.
	ListPending(ctx context.Context) ([]model.PendingDevice, error)
	// Get loads the caller's device.
	Get(ctx context.Context, userID uuid.UUID, deviceID string) (*model.Device, error)
	// Touch records activity.
	Touch(ctx context.Context, userID uuid.UUID, deviceID string) error
	// Deactivate marks the device inactive; missing devices are ignored.
	Deactivate(ctx context.Context, userID uuid.UUID, deviceID string) error
	// NeedsApproval reports whether devices of role r start out pending.
	NeedsApproval(r model.Role) bool
}

type DeviceServiceImpl struct {
	devices repository.DeviceRepository
	tokens  repository.RefreshTokenRepository
	audit   audit.Notifier
	cfg     DeviceConfig
	now     func() time.Time
}

// NewDeviceService constructs DeviceService.
func NewDeviceService(devices repository.DeviceRepository, tokens repository.RefreshTokenRepository, n audit.Notifier, cfg DeviceConfig) *DeviceServiceImpl {
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 3
	}
	if cfg.AuthCodeTTL <= 0 {
		cfg.AuthCodeTTL = 24 * time.Hour
	}
	if cfg.ApprovalRoles == nil {
		cfg.ApprovalRoles = []model.Role{model.RoleFieldAgent}
	}
	return &DeviceServiceImpl{devices: devices, tokens: tokens, audit: n, cfg: cfg, now: utcNow}
}

// NeedsApproval reports whether devices of role r start out pending.
func (s *DeviceServiceImpl) NeedsApproval(r model.Role) bool {
	for _, x := range s.cfg.ApprovalRoles {
		if x == r {
			return true
		}
	}
	return false
}

// RegisterOrUpdate creates or refreshes the registration. Rejected devices stay rejected.
func (s *DeviceServiceImpl) RegisterOrUpdate(ctx context.Context, u *model.User, deviceID string, info model.DeviceInfo) (*model.Device, error) {
	now := s.now()
	d, err := s.devices.Get(ctx, u.ID, deviceID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		d, err = s.create(ctx, u, deviceID, info, now)
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return d, err
		}
		// lost a race with a concurrent first login of the same device
		if d, err = s.devices.Get(ctx, u.ID, deviceID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if d.RejectedAt != nil {
		return d, errs.ErrDeviceRejected
	}
	d.Merge(info)
	d.IsActive = true
	d.LastActiveAt = now
	d.UpdatedAt = now
	if !d.IsApproved && !d.AuthCodeLive(now) {
		if err := s.issueCode(d, now); err != nil {
			return nil, err
		}
	}
	if err := s.devices.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DeviceServiceImpl) create(ctx context.Context, u *model.User, deviceID string, info model.DeviceInfo, now time.Time) (*model.Device, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	d := &model.Device{
		ID:           id,
		UserID:       u.ID,
		DeviceID:     deviceID,
		Platform:     model.PlatformUnknown,
		IsActive:     true,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.Merge(info)
	if s.NeedsApproval(u.Role) {
		if err := s.issueCode(d, now); err != nil {
			return nil, err
		}
	} else {
		d.IsApproved = true
		d.ApprovedAt = &now
	}
	if err := s.devices.Create(ctx, d); err != nil {
		return nil, err
	}
	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditDeviceRegistered,
		ActorID:    u.ID,
		TargetType: "device",
		TargetID:   deviceID,
		Metadata:   map[string]string{"platform": string(d.Platform), "model": d.Model, "state": string(d.State())},
	})
	return d, nil
}

func (s *DeviceServiceImpl) issueCode(d *model.Device, now time.Time) error {
	code, err := pkgcrypto.RandomCode(AuthCodeLen)
	if err != nil {
		return err
	}
	exp := now.Add(s.cfg.AuthCodeTTL)
	d.AuthCode = code
	d.AuthCodeExpiresAt = &exp
	return nil
}

// EnforceQuota applies only to roles that need approval. It returns the evicted device, if any.
func (s *DeviceServiceImpl) EnforceQuota(ctx context.Context, u *model.User, currentDeviceID string) (*model.Device, error) {
	if !s.NeedsApproval(u.Role) {
		return nil, nil
	}
	active, err := s.devices.ListActiveByUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if len(active) <= s.cfg.MaxPerUser {
		return nil, nil
	}
	for i := range active {
		victim := active[i]
		if victim.DeviceID == currentDeviceID {
			continue
		}
		if err := s.devices.SetActive(ctx, victim.ID, false); err != nil {
			return nil, err
		}
		victim.IsActive = false
		s.audit.Notify(model.AuditEvent{
			Action:     model.AuditDeviceEvicted,
			ActorID:    u.ID,
			TargetType: "device",
			TargetID:   victim.DeviceID,
			Metadata:   map[string]string{"userId": u.ID.String(), "newDevice": currentDeviceID},
		})
		return &victim, nil
	}
	return nil, nil
}

// Approve trusts the newest registration of deviceID. Approving twice is a no-op.
func (s *DeviceServiceImpl) Approve(ctx context.Context, deviceID string, adminID uuid.UUID) (*model.Device, error) {
	d, err := s.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.RejectedAt != nil {
		return nil, errs.ErrInvalidState
	}
	if d.IsApproved {
		return d, nil
	}
	now := s.now()
	d.IsApproved = true
	d.ApprovedAt = &now
	d.ApprovedBy = &adminID
	d.AuthCode = ""
	d.AuthCodeExpiresAt = nil
	d.UpdatedAt = now
	if err := s.devices.Update(ctx, d); err != nil {
		return nil, err
	}
	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditDeviceApproved,
		ActorID:    adminID,
		TargetType: "device",
		TargetID:   d.DeviceID,
		Metadata:   map[string]string{"userId": d.UserID.String()},
	})
	return d, nil
}

// Reject refuses the device, deactivates it and drops its refresh tokens.
func (s *DeviceServiceImpl) Reject(ctx context.Context, deviceID string, adminID uuid.UUID, reason string) (*model.Device, error) {
	d, err := s.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.RejectedAt != nil {
		return d, nil
	}
	now := s.now()
	d.IsApproved = false
	d.RejectedAt = &now
	d.RejectedBy = &adminID
	d.RejectionReason = reason
	d.AuthCode = ""
	d.AuthCodeExpiresAt = nil
	d.IsActive = false
	d.UpdatedAt = now
	if err := s.devices.Update(ctx, d); err != nil {
		return nil, err
	}
	if _, err := s.tokens.DeleteForDevice(ctx, d.UserID, d.DeviceID); err != nil {
		return nil, err
	}
	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditDeviceRejected,
		ActorID:    adminID,
		TargetType: "device",
		TargetID:   d.DeviceID,
		Metadata: map[string]string{
			"deviceId": d.DeviceID,
			"userId":   d.UserID.String(),
			"platform": string(d.Platform),
			"model":    d.Model,
			"reason":   reason,
		},
	})
	return d, nil
}

// ListPending returns devices awaiting approval, newest first.
func (s *DeviceServiceImpl) ListPending(ctx context.Context) ([]model.PendingDevice, error) {
	return s.devices.ListPending(ctx)
}

// Get loads the caller's device.
func (s *DeviceServiceImpl) Get(ctx context.Context, userID uuid.UUID, deviceID string) (*model.Device, error) {
	return s.devices.Get(ctx, userID, deviceID)
}

// Touch records activity now.
func (s *DeviceServiceImpl) Touch(ctx context.Context, userID uuid.UUID, deviceID string) error {
	return s.devices.Touch(ctx, userID, deviceID, s.now())
}

// Deactivate marks the device inactive.
func (s *DeviceServiceImpl) Deactivate(ctx context.Context, userID uuid.UUID, deviceID string) error {
	d, err := s.devices.Get(ctx, userID, deviceID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !d.IsActive {
		return nil
	}
	return s.devices.SetActive(ctx, d.ID, false)
}

func utcNow() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
