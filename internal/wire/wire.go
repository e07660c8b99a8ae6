// Package wire defines the JSON shapes of the mobile HTTP API.
package wire

import (
	"encoding/json"
	"time"
)

// Success is the uniform success envelope.
type Success struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Failure is the uniform error envelope.
type Failure struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Error   ErrorBody `json:"error"`
}

// ErrorBody carries the machine-readable error code.
type ErrorBody struct {
	Code      string         `json:"code"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// --- auth ---

type DeviceInfo struct {
	Platform   string `json:"platform"`
	Model      string `json:"model,omitempty"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	PushToken  string `json:"pushToken,omitempty"`
}

type LoginRequest struct {
	Username   string      `json:"username"`
	Password   string      `json:"password"`
	DeviceID   string      `json:"deviceId"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
}

type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

type DeviceAuthentication struct {
	IsApproved        bool       `json:"isApproved"`
	NeedsApproval     bool       `json:"needsApproval"`
	AuthCode          string     `json:"authCode,omitempty"`
	AuthCodeExpiresAt *time.Time `json:"authCodeExpiresAt,omitempty"`
}

type LoginResponse struct {
	User                 UserProfile          `json:"user"`
	AccessToken          string               `json:"accessToken"`
	RefreshToken         string               `json:"refreshToken"`
	ExpiresIn            int64                `json:"expiresIn"`
	DeviceRegistered     bool                 `json:"deviceRegistered"`
	ForceUpdate          bool                 `json:"forceUpdate"`
	UpdateRequired       bool                 `json:"updateRequired"`
	DeviceAuthentication DeviceAuthentication `json:"deviceAuthentication"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type LogoutRequest struct {
	DeviceID string `json:"deviceId"`
}

type VersionCheckRequest struct {
	CurrentVersion string `json:"currentVersion"`
	Platform       string `json:"platform"`
}

type VersionCheckResponse struct {
	CurrentVersion  string `json:"currentVersion"`
	LatestVersion   string `json:"latestVersion"`
	UpdateAvailable bool   `json:"updateAvailable"`
	UpdateRequired  bool   `json:"updateRequired"`
	ForceUpdate     bool   `json:"forceUpdate"`
	DownloadURL     string `json:"downloadUrl,omitempty"`
}

// --- devices ---

type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

type Device struct {
	ID                string       `json:"id"`
	DeviceID          string       `json:"deviceId"`
	UserID            string       `json:"userId"`
	Platform          string       `json:"platform"`
	Model             string       `json:"model,omitempty"`
	OSVersion         string       `json:"osVersion,omitempty"`
	AppVersion        string       `json:"appVersion,omitempty"`
	State             string       `json:"state"`
	IsApproved        bool         `json:"isApproved"`
	IsActive          bool         `json:"isActive"`
	AuthCode          string       `json:"authCode,omitempty"`
	AuthCodeExpiresAt *time.Time   `json:"authCodeExpiresAt,omitempty"`
	ApprovedAt        *time.Time   `json:"approvedAt,omitempty"`
	ApprovedBy        string       `json:"approvedBy,omitempty"`
	RejectedAt        *time.Time   `json:"rejectedAt,omitempty"`
	RejectedBy        string       `json:"rejectedBy,omitempty"`
	RejectionReason   string       `json:"rejectionReason,omitempty"`
	LastActiveAt      time.Time    `json:"lastActiveAt"`
	CreatedAt         time.Time    `json:"createdAt"`
	User              *UserSummary `json:"user,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// --- sync ---

// Change is one local mutation; Data is the opaque field map.
type Change struct {
	ID        string                     `json:"id"`
	Action    string                     `json:"action"`
	Data      map[string]json.RawMessage `json:"data"`
	Timestamp time.Time                  `json:"timestamp"`
}

type LocalChanges struct {
	Cases       []Change `json:"cases"`
	Attachments []Change `json:"attachments"`
	Locations   []Change `json:"locations"`
}

type UploadRequest struct {
	LocalChanges      *LocalChanges `json:"localChanges"`
	DeviceInfo        *DeviceInfo   `json:"deviceInfo,omitempty"`
	LastSyncTimestamp *time.Time    `json:"lastSyncTimestamp,omitempty"`
}

type Conflict struct {
	ID             string                     `json:"id"`
	ConflictType   string                     `json:"conflictType"`
	LocalVersion   map[string]json.RawMessage `json:"localVersion"`
	LocalTimestamp time.Time                  `json:"localTimestamp"`
	ServerVersion  Case                       `json:"serverVersion"`
}

type ItemError struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type UploadResults struct {
	ProcessedCases       int         `json:"processedCases"`
	ProcessedAttachments int         `json:"processedAttachments"`
	ProcessedLocations   int         `json:"processedLocations"`
	Conflicts            []Conflict  `json:"conflicts"`
	Errors               []ItemError `json:"errors"`
}

type UploadResponse struct {
	SyncTimestamp time.Time     `json:"syncTimestamp"`
	Results       UploadResults `json:"results"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type GeoLocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   string   `json:"address,omitempty"`
}

type Attachment struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	OriginalName string       `json:"originalName,omitempty"`
	MimeType     string       `json:"mimeType,omitempty"`
	Size         int64        `json:"size"`
	URL          string       `json:"url"`
	ThumbnailURL string       `json:"thumbnailUrl,omitempty"`
	UploadedAt   time.Time    `json:"uploadedAt"`
	GeoLocation  *GeoLocation `json:"geoLocation,omitempty"`
}

// Case is the mobile projection of a case.
type Case struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	Customer            Customer        `json:"customer"`
	Address             Address         `json:"address"`
	Latitude            *float64        `json:"latitude,omitempty"`
	Longitude           *float64        `json:"longitude,omitempty"`
	Status              string          `json:"status"`
	Priority            string          `json:"priority"`
	AssignedAt          *time.Time      `json:"assignedAt,omitempty"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	CompletedAt         *time.Time      `json:"completedAt,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	VerificationType    string          `json:"verificationType,omitempty"`
	VerificationOutcome string          `json:"verificationOutcome,omitempty"`
	Client              *Client         `json:"client,omitempty"`
	Attachments         []Attachment    `json:"attachments"`
	FormData            json.RawMessage `json:"formData,omitempty"`
	SyncStatus          string          `json:"syncStatus"`
}

type DownloadResponse struct {
	Cases          []Case     `json:"cases"`
	DeletedCaseIDs []string   `json:"deletedCaseIds"`
	Conflicts      []Conflict `json:"conflicts"`
	SyncTimestamp  time.Time  `json:"syncTimestamp"`
	HasMore        bool       `json:"hasMore"`
}

type SyncStatus struct {
	DeviceID       string     `json:"deviceId"`
	LastSyncAt     *time.Time `json:"lastSyncAt"`
	IsOnline       bool       `json:"isOnline"`
	PendingChanges int        `json:"pendingChanges"`
}

// --- forms ---

type AutoSaveRequest struct {
	FormType  string          `json:"formType"`
	FormData  json.RawMessage `json:"formData"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

type AutoSaveResponse struct {
	CaseID   string          `json:"caseId"`
	FormType string          `json:"formType"`
	FormData json.RawMessage `json:"formData,omitempty"`
	SavedAt  time.Time       `json:"savedAt"`
	Version  int64           `json:"version"`
}

// PhotoGeo keeps coordinates optional so missing geo-tags can be reported.
type PhotoGeo struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

type Photo struct {
	AttachmentID string     `json:"attachmentId"`
	GeoLocation  *PhotoGeo  `json:"geoLocation"`
	CapturedAt   *time.Time `json:"capturedAt,omitempty"`
}

type VerificationRequest struct {
	FormData            json.RawMessage `json:"formData"`
	AttachmentIDs       []string        `json:"attachmentIds"`
	GeoLocation         *GeoLocation    `json:"geoLocation,omitempty"`
	Photos              []Photo         `json:"photos"`
	VerificationOutcome string          `json:"verificationOutcome,omitempty"`
}

type VerificationResponse struct {
	CaseID      string    `json:"caseId"`
	ReportID    string    `json:"reportId"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completedAt"`
}

// Health is the body of the liveness/readiness probes.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
