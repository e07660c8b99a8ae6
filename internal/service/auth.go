package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	pkgcrypto "github.com/and161185/fieldsync/internal/crypto"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/limiter"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/and161185/fieldsync/internal/token"
	"github.com/and161185/fieldsync/internal/version"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// LoginRequest carries credentials and the reporting device.
type LoginRequest struct {
	Username string
	Password string
	DeviceID string
	Info     model.DeviceInfo
	IP       string
}

// LoginResult is everything the device needs after a successful login.
type LoginResult struct {
	User             model.User
	Tokens           model.Tokens
	Device           model.Device
	DeviceRegistered bool // the device was known before this login and is approved
	Version          version.Result
}

// AuthService defines session operations.
type AuthService interface {
	// Login applies rate-limiting, authenticates the user and registers the device.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// Refresh exchanges a refresh token for a new access token.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Logout revokes the device's refresh tokens and deactivates it.
	Logout(ctx context.Context, c model.Caller) error
	// Authenticate validates an access token.
	Authenticate(ctx context.Context, accessToken string) (model.Caller, error)
	// CheckVersion compares a client version to the configured gate.
	CheckVersion(current, platform string) version.Result
	// CreateUser bootstraps an account.
	CreateUser(ctx context.Context, username, password, name, email string, role model.Role) (*model.User, error)
}

type AuthServiceImpl struct {
	users   repository.UserRepository
	tokens  repository.RefreshTokenRepository
	devices DeviceService
	issuer  *token.Issuer
	lim     limiter.Limiter
	gate    version.Gate
	audit   audit.Notifier
	log     *zap.Logger
	now     func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	devices DeviceService,
	issuer *token.Issuer,
	lim limiter.Limiter,
	gate version.Gate,
	n audit.Notifier,
	log *zap.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:   users,
		tokens:  tokens,
		devices: devices,
		issuer:  issuer,
		lim:     lim,
		gate:    gate,
		audit:   n,
		log:     log,
		now:     utcNow,
	}
}

// Login authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.Username == "" || req.Password == "" || req.DeviceID == "" {
		return nil, errs.Validation(errs.CodeMissingField, "username, password and deviceId are required", nil)
	}
	ipHash := limiter.HashIP(req.IP)

	allowed, _, err := s.lim.Allow(ctx, req.Username, ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, req.Username)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		// same cost as a real verification so timing does not reveal the username
		pkgcrypto.VerifyDummy([]byte(req.Password))
		return nil, s.loginFailed(ctx, req, uuid.Nil, "unknown user")
	case err != nil:
		return nil, err
	}
	if !pkgcrypto.VerifyPassword([]byte(req.Password), u.SaltAuth, u.PwdHash) {
		return nil, s.loginFailed(ctx, req, u.ID, "bad password")
	}
	if !u.IsActive {
		return nil, s.loginFailed(ctx, req, u.ID, "inactive user")
	}

	_ = s.lim.Success(ctx, req.Username, ipHash)

	_, lookupErr := s.devices.Get(ctx, u.ID, req.DeviceID)
	if lookupErr != nil && !errors.Is(lookupErr, errs.ErrNotFound) {
		return nil, lookupErr
	}
	known := lookupErr == nil

	d, err := s.devices.RegisterOrUpdate(ctx, u, req.DeviceID, req.Info)
	if errors.Is(err, errs.ErrDeviceRejected) {
		s.audit.Notify(model.AuditEvent{
			Action:     model.AuditLoginFailed,
			ActorID:    u.ID,
			TargetType: "device",
			TargetID:   req.DeviceID,
			Metadata:   map[string]string{"reason": "device rejected"},
		})
		return nil, errs.ErrDeviceRejected
	}
	if err != nil {
		return nil, err
	}

	if evicted, err := s.devices.EnforceQuota(ctx, u, req.DeviceID); err != nil {
		s.log.Warn("device quota enforcement failed", zap.String("user_id", u.ID.String()), zap.Error(err))
	} else if evicted != nil {
		s.log.Info("device evicted",
			zap.String("user_id", u.ID.String()),
			zap.String("device_id", evicted.DeviceID),
		)
	}

	toks, err := s.issuer.Issue(u, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, &model.RefreshToken{
		TokenHash: pkgcrypto.HashToken(toks.RefreshToken),
		UserID:    u.ID,
		DeviceID:  req.DeviceID,
		ExpiresAt: toks.RefreshExpiresAt,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, err
	}

	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditLoginSuccess,
		ActorID:    u.ID,
		TargetType: "device",
		TargetID:   req.DeviceID,
		Metadata:   map[string]string{"state": string(d.State()), "appVersion": req.Info.AppVersion},
	})

	out := &LoginResult{
		User:             *u,
		Tokens:           toks,
		Device:           *d,
		DeviceRegistered: known && d.IsApproved,
		Version:          s.gate.Check(d.AppVersion, string(d.Platform)),
	}
	out.User.PwdHash, out.User.SaltAuth = nil, nil
	return out, nil
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, req LoginRequest, actor uuid.UUID, reason string) error {
	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditLoginFailed,
		ActorID:    actor,
		TargetType: "user",
		TargetID:   req.Username,
		Metadata:   map[string]string{"reason": reason, "deviceId": req.DeviceID},
	})
	if blocked, _, ferr := s.lim.Failure(ctx, req.Username, limiter.HashIP(req.IP)); ferr == nil && blocked {
		return errs.ErrRateLimited
	}
	return errs.ErrUnauthorized
}

// Refresh issues a new access token. The refresh token itself is not rotated.
func (s *AuthServiceImpl) Refresh(ctx context.Context, raw string) (model.Tokens, error) {
	claims, uid, err := s.issuer.Parse(raw, token.KindRefresh)
	if err != nil {
		return model.Tokens{}, s.refreshFailed(uuid.Nil, "malformed")
	}
	rec, err := s.tokens.Get(ctx, pkgcrypto.HashToken(raw))
	if errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, s.refreshFailed(uid, "revoked")
	}
	if err != nil {
		return model.Tokens{}, err
	}
	if rec.UserID != uid || rec.DeviceID != claims.DeviceID || !rec.ExpiresAt.After(s.now()) {
		return model.Tokens{}, s.refreshFailed(uid, "mismatch")
	}
	u, err := s.users.GetByID(ctx, uid)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, s.refreshFailed(uid, "unknown user")
	}
	if err != nil {
		return model.Tokens{}, err
	}
	if !u.IsActive {
		return model.Tokens{}, s.refreshFailed(uid, "inactive user")
	}

	access, exp, err := s.issuer.IssueAccess(u, claims.DeviceID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, AccessExpiresAt: exp}, nil
}

func (s *AuthServiceImpl) refreshFailed(uid uuid.UUID, reason string) error {
	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditTokenRefreshFailed,
		ActorID:    uid,
		TargetType: "user",
		TargetID:   uid.String(),
		Metadata:   map[string]string{"reason": reason},
	})
	return errs.ErrInvalidToken
}

// Logout is idempotent: repeating it leaves the same state.
func (s *AuthServiceImpl) Logout(ctx context.Context, c model.Caller) error {
	n, err := s.tokens.DeleteForDevice(ctx, c.UserID, c.DeviceID)
	if err != nil {
		return err
	}
	if err := s.devices.Deactivate(ctx, c.UserID, c.DeviceID); err != nil {
		return err
	}
	if n > 0 {
		s.audit.Notify(model.AuditEvent{
			Action:     model.AuditLogout,
			ActorID:    c.UserID,
			TargetType: "device",
			TargetID:   c.DeviceID,
		})
	}
	return nil
}

// Authenticate maps a valid access token to the caller identity.
func (s *AuthServiceImpl) Authenticate(_ context.Context, raw string) (model.Caller, error) {
	claims, uid, err := s.issuer.Parse(raw, token.KindAccess)
	if err != nil {
		return model.Caller{}, err
	}
	return model.Caller{
		UserID:   uid,
		Username: claims.Username,
		Role:     model.Role(claims.Role),
		DeviceID: claims.DeviceID,
	}, nil
}

// CheckVersion evaluates the version gate.
func (s *AuthServiceImpl) CheckVersion(current, platform string) version.Result {
	return s.gate.Check(current, platform)
}

// CreateUser creates a user record with a per-user salt.
func (s *AuthServiceImpl) CreateUser(ctx context.Context, username, password, name, email string, role model.Role) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errs.Validation(errs.CodeMissingField, "username and password are required", nil)
	}
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, errs.Validation(errs.CodeInvalidPayload, "unknown role", map[string]any{"role": string(role)})
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:        uid,
		Username:  username,
		Name:      name,
		Email:     email,
		Role:      role,
		PwdHash:   pkgcrypto.HashPassword([]byte(password), salt),
		SaltAuth:  salt,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
