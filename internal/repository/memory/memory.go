// Package memory contains in-process implementations of the repository interfaces.
// It backs tests and the `storage.driver=memory` development mode.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// DB is a mutex-guarded set of tables shared by all memory repositories.
type DB struct {
	mu sync.RWMutex

	users       map[uuid.UUID]model.User
	devices     map[uuid.UUID]model.Device
	tokens      map[string]model.RefreshToken
	cases       map[uuid.UUID]model.Case
	clients     map[uuid.UUID]model.ClientRef
	attachments map[uuid.UUID]model.Attachment
	locations   map[uuid.UUID]model.LocationPoint
	reports     map[uuid.UUID]model.VerificationReport
	drafts      map[draftKey]model.AutoSaveDraft
	audit       []model.AuditEvent
}

type draftKey struct {
	caseID   uuid.UUID
	formType model.FormType
}

// New creates an empty database.
func New() *DB {
	return &DB{
		users:       map[uuid.UUID]model.User{},
		devices:     map[uuid.UUID]model.Device{},
		tokens:      map[string]model.RefreshToken{},
		cases:       map[uuid.UUID]model.Case{},
		clients:     map[uuid.UUID]model.ClientRef{},
		attachments: map[uuid.UUID]model.Attachment{},
		locations:   map[uuid.UUID]model.LocationPoint{},
		reports:     map[uuid.UUID]model.VerificationReport{},
		drafts:      map[draftKey]model.AutoSaveDraft{},
	}
}

// Store exposes the database through the repository bundle.
func (db *DB) Store() repository.Store {
	return repository.Store{
		Users:         UserRepo{db},
		Devices:       DeviceRepo{db},
		Tokens:        TokenRepo{db},
		Cases:         CaseRepo{db},
		Attachments:   AttachmentRepo{db},
		Locations:     LocationRepo{db},
		Verifications: VerificationRepo{db},
		Audit:         AuditRepo{db},
		Ping:          func(context.Context) error { return nil },
		Close:         func() {},
	}
}

// PutClient registers a client so case reads can resolve its name and code.
func (db *DB) PutClient(c model.ClientRef) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.clients[c.ID] = c
}

// PutCase stores c as-is, bypassing create semantics. Intended for seeding.
func (db *DB) PutCase(c model.Case) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.cases[c.ID] = cloneCase(c)
}

// Reports returns a snapshot of stored verification reports.
func (db *DB) Reports() []model.VerificationReport {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]model.VerificationReport, 0, len(db.reports))
	for _, r := range db.reports {
		out = append(out, r)
	}
	return out
}

// Locations returns a snapshot of stored location points.
func (db *DB) Locations() []model.LocationPoint {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]model.LocationPoint, 0, len(db.locations))
	for _, p := range db.locations {
		out = append(out, p)
	}
	return out
}

// AuditEvents returns a snapshot of recorded audit events.
func (db *DB) AuditEvents() []model.AuditEvent {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]model.AuditEvent(nil), db.audit...)
}

// --- users ---

// UserRepo implements repository.UserRepository.
type UserRepo struct{ db *DB }

var _ repository.UserRepository = UserRepo{}

// Create inserts a user; usernames are unique.
func (r UserRepo) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, x := range r.db.users {
		if x.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	cpy := *u
	if cpy.CreatedAt.IsZero() {
		cpy.CreatedAt = time.Now().UTC()
	}
	r.db.users[u.ID] = cpy
	return nil
}

// GetByID loads a user by ID.
func (r UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

// GetByUsername loads a user by username.
func (r UserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, u := range r.db.users {
		if u.Username == username {
			c := u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// --- audit ---

// AuditRepo implements repository.AuditRepository.
type AuditRepo struct{ db *DB }

// Insert appends an event.
func (r AuditRepo) Insert(_ context.Context, e model.AuditEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.audit = append(r.db.audit, e)
	return nil
}

func cloneCase(c model.Case) model.Case {
	if c.FormData != nil {
		c.FormData = append(json.RawMessage(nil), c.FormData...)
	}
	if c.Latitude != nil {
		v := *c.Latitude
		c.Latitude = &v
	}
	if c.Longitude != nil {
		v := *c.Longitude
		c.Longitude = &v
	}
	return c
}

func sortCasesByUpdated(cs []model.Case) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].UpdatedAt.Equal(cs[j].UpdatedAt) {
			return bytes.Compare(cs[i].ID.Bytes(), cs[j].ID.Bytes()) < 0
		}
		return cs[i].UpdatedAt.Before(cs[j].UpdatedAt)
	})
}
