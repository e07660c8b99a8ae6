package memory

import (
	"context"
	"encoding/hex"
	"sort"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// DeviceRepo implements repository.DeviceRepository.
type DeviceRepo struct{ db *DB }

var _ repository.DeviceRepository = DeviceRepo{}

// Get loads the registration of deviceID for userID.
func (r DeviceRepo) Get(_ context.Context, userID uuid.UUID, deviceID string) (*model.Device, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, d := range r.db.devices {
		if d.UserID == userID && d.DeviceID == deviceID {
			c := d
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetByDeviceID returns the newest registration with deviceID.
func (r DeviceRepo) GetByDeviceID(_ context.Context, deviceID string) (*model.Device, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var best *model.Device
	for _, d := range r.db.devices {
		if d.DeviceID != deviceID {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			c := d
			best = &c
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	return best, nil
}

// Create inserts a new registration; (user, device id) is unique.
func (r DeviceRepo) Create(_ context.Context, d *model.Device) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, x := range r.db.devices {
		if x.UserID == d.UserID && x.DeviceID == d.DeviceID {
			return errs.ErrAlreadyExists
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.Must(uuid.NewV4())
	}
	r.db.devices[d.ID] = *d
	return nil
}

// Update overwrites the stored registration.
func (r DeviceRepo) Update(_ context.Context, d *model.Device) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.devices[d.ID]; !ok {
		return errs.ErrNotFound
	}
	r.db.devices[d.ID] = *d
	return nil
}

// ListActiveByUser returns active devices, least recently active first.
func (r DeviceRepo) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]model.Device, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []model.Device
	for _, d := range r.db.devices {
		if d.UserID == userID && d.IsActive {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.Before(out[j].LastActiveAt) })
	return out, nil
}

// ListPending returns unapproved devices holding an auth code, newest first.
func (r DeviceRepo) ListPending(_ context.Context) ([]model.PendingDevice, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []model.PendingDevice
	for _, d := range r.db.devices {
		if d.IsApproved || d.AuthCode == "" || d.RejectedAt != nil {
			continue
		}
		pd := model.PendingDevice{Device: d}
		if u, ok := r.db.users[d.UserID]; ok {
			pd.Username, pd.UserName, pd.UserEmail = u.Username, u.Name, u.Email
		}
		out = append(out, pd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Touch sets last_active_at.
func (r DeviceRepo) Touch(_ context.Context, userID uuid.UUID, deviceID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, d := range r.db.devices {
		if d.UserID == userID && d.DeviceID == deviceID {
			d.LastActiveAt = at
			r.db.devices[id] = d
			return nil
		}
	}
	return errs.ErrNotFound
}

// SetActive flips is_active.
func (r DeviceRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.devices[id]
	if !ok {
		return errs.ErrNotFound
	}
	d.IsActive = active
	d.UpdatedAt = time.Now().UTC()
	r.db.devices[id] = d
	return nil
}

// TokenRepo implements repository.RefreshTokenRepository.
type TokenRepo struct{ db *DB }

var _ repository.RefreshTokenRepository = TokenRepo{}

// Save stores a token hash.
func (r TokenRepo) Save(_ context.Context, t *model.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.tokens[hex.EncodeToString(t.TokenHash)] = *t
	return nil
}

// Get loads a token by hash.
func (r TokenRepo) Get(_ context.Context, tokenHash []byte) (*model.RefreshToken, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.tokens[hex.EncodeToString(tokenHash)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

// DeleteForDevice removes all tokens of (userID, deviceID).
func (r TokenRepo) DeleteForDevice(_ context.Context, userID uuid.UUID, deviceID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for k, t := range r.db.tokens {
		if t.UserID == userID && t.DeviceID == deviceID {
			delete(r.db.tokens, k)
			n++
		}
	}
	return n, nil
}
