package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	pkgcrypto "github.com/and161185/fieldsync/internal/crypto"
	"github.com/and161185/fieldsync/internal/limiter"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/and161185/fieldsync/internal/repository/memory"
	"github.com/and161185/fieldsync/internal/token"
	"github.com/and161185/fieldsync/internal/version"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type recNotifier struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

var _ audit.Notifier = (*recNotifier)(nil)

func (r *recNotifier) Notify(e model.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recNotifier) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func (r *recNotifier) has(action string) bool {
	for _, a := range r.actions() {
		if a == action {
			return true
		}
	}
	return false
}

// fixture wires every service over one in-memory database.
type fixture struct {
	db    *memory.DB
	store repository.Store
	rec   *recNotifier
	lim   *fakeLimiter

	devices *DeviceServiceImpl
	auth    *AuthServiceImpl
	changes *ChangeLog
	detect  *ConflictDetector
	sync    *SyncServiceImpl
	forms   *FormServiceImpl
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New()
	st := db.Store()
	rec := &recNotifier{}
	lim := &fakeLimiter{allowOK: true}
	log := zap.NewNop()

	devs := NewDeviceService(st.Devices, st.Tokens, rec, DeviceConfig{MaxPerUser: 3, AuthCodeTTL: time.Hour})
	iss := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour, 24*time.Hour)
	gate := version.Gate{Latest: "2.0.0", MinSupported: "1.5.0", ForceBelow: "1.0.0"}
	auth := NewAuthService(st.Users, st.Tokens, devs, iss, lim, gate, rec, log)
	cl := NewChangeLog(st.Cases, ChangeLogConfig{DefaultLimit: 100, MaxLimit: 500})
	det := NewConflictDetector(st.Cases, nil)
	sy := NewSyncService(det, cl, st.Cases, st.Attachments, st.Locations, devs, rec, log, SyncConfig{MaxBatch: 10})
	fm := NewFormService(st.Cases, memory.NewAutoSaveRepo(db), st.Verifications, rec, log)

	return &fixture{
		db: db, store: st, rec: rec, lim: lim,
		devices: devs, auth: auth, changes: cl, detect: det, sync: sy, forms: fm,
	}
}

func (f *fixture) addUser(t *testing.T, username, password string, role model.Role) *model.User {
	t.Helper()
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	u := &model.User{
		ID:        uuid.Must(uuid.NewV4()),
		Username:  username,
		Name:      username,
		Role:      role,
		PwdHash:   pkgcrypto.HashPassword([]byte(password), salt),
		SaltAuth:  salt,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) addCase(assignee uuid.UUID, updatedAt time.Time) model.Case {
	c := model.Case{
		ID:         uuid.Must(uuid.NewV4()),
		Title:      "Residence check",
		Status:     model.CaseStatusAssigned,
		Priority:   model.PriorityMedium,
		AssignedTo: assignee,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
	f.db.PutCase(c)
	return c
}

func caller(u *model.User, deviceID string) model.Caller {
	return model.Caller{UserID: u.ID, Username: u.Username, Role: u.Role, DeviceID: deviceID}
}

func payload(t *testing.T, kv map[string]any) model.Payload {
	t.Helper()
	p := model.Payload{}
	for k, v := range kv {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		p[k] = b
	}
	return p
}

func fixedClock(at time.Time) func() time.Time { return func() time.Time { return at } }
