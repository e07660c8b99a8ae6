// Package token issues and parses HS256 session tokens bound to a user and device.
package token

import (
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access from refresh tokens so one can never stand in for the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the JWT body.
type Claims struct {
	Kind     Kind       `json:"typ"`
	Username string     `json:"usr,omitempty"`
	Role     model.Role `json:"role,omitempty"`
	DeviceID string     `json:"dev"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(key []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{key: key, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue creates an access/refresh pair for the user on deviceID.
func (i *Issuer) Issue(u *model.User, deviceID string) (model.Tokens, error) {
	now := i.now()
	access, aexp, err := i.sign(KindAccess, u, deviceID, now, i.accessTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, rexp, err := i.sign(KindRefresh, u, deviceID, now, i.refreshTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, AccessExpiresAt: aexp, RefreshExpiresAt: rexp}, nil
}

// IssueAccess creates a new access token only.
func (i *Issuer) IssueAccess(u *model.User, deviceID string) (string, time.Time, error) {
	return i.sign(KindAccess, u, deviceID, i.now(), i.accessTTL)
}

func (i *Issuer) sign(kind Kind, u *model.User, deviceID string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	id, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	claims := Claims{
		Kind:     kind,
		Username: u.Username,
		Role:     u.Role,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.key)
	return signed, exp, err
}

// Parse verifies signature, expiry and kind. Every failure maps to errs.ErrInvalidToken.
func (i *Issuer) Parse(raw string, want Kind) (*Claims, uuid.UUID, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, uuid.Nil, errs.ErrInvalidToken
	}
	if c.Kind != want || c.DeviceID == "" {
		return nil, uuid.Nil, errs.ErrInvalidToken
	}
	uid, err := uuid.FromString(c.Subject)
	if err != nil || uid == uuid.Nil {
		return nil, uuid.Nil, errs.ErrInvalidToken
	}
	return &c, uid, nil
}
