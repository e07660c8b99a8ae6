// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the caller's authorization level.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleAdmin       Role = "ADMIN"
	RoleBackendUser Role = "BACKEND_USER"
	RoleFieldAgent  Role = "FIELD_AGENT"
)

// ParseRole normalizes a role name; ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleBackendUser, RoleFieldAgent:
		return r, true
	}
	return "", false
}

// IsAdmin reports whether the role may administer devices.
func (r Role) IsAdmin() bool { return r == RoleSuperAdmin || r == RoleAdmin }

// IsField reports whether the role is the assignment-scoped field role.
func (r Role) IsField() bool { return r == RoleFieldAgent }

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// User represents an account stored on the server. Passwords are stored as Argon2id hashes only.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	Name      string
	Email     string
	Role      Role
	PwdHash   []byte // Argon2id(password, SaltAuth)
	SaltAuth  []byte // per-user auth salt
	IsActive  bool
	CreatedAt time.Time
}

// Caller is the authenticated identity attached to a request.
type Caller struct {
	UserID   uuid.UUID
	Username string
	Role     Role
	DeviceID string
}

// Assignee returns the assignment filter implied by the caller's role:
// field callers only ever see their own cases.
func (c Caller) Assignee() uuid.UUID {
	if c.Role.IsField() {
		return c.UserID
	}
	return uuid.Nil
}

// RefreshToken is the persisted half of a session. Only the token hash is stored.
type RefreshToken struct {
	TokenHash []byte
	UserID    uuid.UUID
	DeviceID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AuditEvent is a one-way notification about a security or sync relevant action.
type AuditEvent struct {
	Action     string
	ActorID    uuid.UUID
	TargetType string
	TargetID   string
	Metadata   map[string]string
	At         time.Time
}

// Audit actions.
const (
	AuditLoginSuccess       = "LOGIN_SUCCESS"
	AuditLoginFailed        = "LOGIN_FAILED"
	AuditTokenRefreshFailed = "TOKEN_REFRESH_FAILED"
	AuditLogout             = "LOGOUT"
	AuditDeviceRegistered   = "DEVICE_REGISTERED"
	AuditDeviceApproved     = "DEVICE_APPROVED"
	AuditDeviceRejected     = "DEVICE_REJECTED"
	AuditDeviceEvicted      = "DEVICE_EVICTED"
	AuditSyncUpload         = "SYNC_UPLOAD"
	AuditVerificationSubmit = "VERIFICATION_SUBMITTED"
)
