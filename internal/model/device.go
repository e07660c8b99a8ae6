package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Platform is the mobile OS family reported by a device.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
	PlatformUnknown Platform = "UNKNOWN"
)

// ParsePlatform maps a client string to a Platform; anything unrecognized is UNKNOWN.
func ParsePlatform(s string) Platform {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IOS":
		return PlatformIOS
	case "ANDROID":
		return PlatformAndroid
	default:
		return PlatformUnknown
	}
}

// DeviceInfo is the metadata a device reports on login and sync.
type DeviceInfo struct {
	Platform   Platform
	Model      string
	OSVersion  string
	AppVersion string
	PushToken  string
}

// DeviceState is derived from the trust and activity flags.
type DeviceState string

const (
	DeviceUnregistered    DeviceState = "UNREGISTERED"
	DevicePendingApproval DeviceState = "PENDING_APPROVAL"
	DeviceApproved        DeviceState = "APPROVED"
	DeviceRejected        DeviceState = "REJECTED"
	DeviceDeactivated     DeviceState = "DEACTIVATED"
)

// Device is a (user, device id) registration with its trust state.
type Device struct {
	ID       uuid.UUID // surrogate PK
	UserID   uuid.UUID
	DeviceID string // client-generated, stable per install

	Platform   Platform
	Model      string
	OSVersion  string
	AppVersion string
	PushToken  string

	IsApproved        bool
	AuthCode          string // empty unless pending
	AuthCodeExpiresAt *time.Time
	ApprovedAt        *time.Time
	ApprovedBy        *uuid.UUID
	RejectedAt        *time.Time
	RejectedBy        *uuid.UUID
	RejectionReason   string

	IsActive     bool
	LastActiveAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// State reports the device's position in the trust state machine.
func (d *Device) State() DeviceState {
	switch {
	case d == nil:
		return DeviceUnregistered
	case d.RejectedAt != nil:
		return DeviceRejected
	case !d.IsApproved:
		return DevicePendingApproval
	case !d.IsActive:
		return DeviceDeactivated
	default:
		return DeviceApproved
	}
}

// AuthCodeLive reports whether a pending auth code exists and has not expired at now.
func (d *Device) AuthCodeLive(now time.Time) bool {
	return d.AuthCode != "" && d.AuthCodeExpiresAt != nil && d.AuthCodeExpiresAt.After(now)
}

// Merge overwrites metadata with non-empty incoming values only.
func (d *Device) Merge(info DeviceInfo) {
	if info.Platform != "" && info.Platform != PlatformUnknown {
		d.Platform = info.Platform
	}
	if info.Model != "" {
		d.Model = info.Model
	}
	if info.OSVersion != "" {
		d.OSVersion = info.OSVersion
	}
	if info.AppVersion != "" {
		d.AppVersion = info.AppVersion
	}
	if info.PushToken != "" {
		d.PushToken = info.PushToken
	}
}

// PendingDevice is a device awaiting approval together with its owner's display info.
type PendingDevice struct {
	Device
	Username  string
	UserName  string
	UserEmail string
}
