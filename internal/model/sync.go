package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Decode re-reads the payload into a typed struct.
func (p Payload) Decode(v any) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// ChangeAction is the mutation kind of a local change.
type ChangeAction string

const (
	ActionCreate ChangeAction = "CREATE"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
)

// EntityType names a sync change stream.
type EntityType string

const (
	EntityCase       EntityType = "case"
	EntityAttachment EntityType = "attachment"
	EntityLocation   EntityType = "location"
)

// Change is one locally recorded mutation. ID is kept as the raw client string so a
// malformed id surfaces as a per-item error instead of failing the batch.
type Change struct {
	ID             string
	Action         ChangeAction
	Payload        Payload
	LocalTimestamp time.Time
}

// LocalChanges is an upload batch; the three streams are processed independently.
type LocalChanges struct {
	Cases       []Change
	Attachments []Change
	Locations   []Change
}

// Len is the total number of items in the batch.
func (l LocalChanges) Len() int { return len(l.Cases) + len(l.Attachments) + len(l.Locations) }

// ConflictType tags why an update was not applied.
type ConflictType string

const (
	ConflictVersion ConflictType = "VERSION_CONFLICT"
	// ConflictData is reserved for field-level merge and is not produced.
	ConflictData ConflictType = "DATA_CONFLICT"
)

// Conflict is a rejected case update returned to the device for reconciliation.
type Conflict struct {
	EntityID       uuid.UUID
	Type           ConflictType
	LocalVersion   Payload
	LocalTimestamp time.Time
	ServerVersion  Case
}

// ItemError reports a single failed batch item.
type ItemError struct {
	Type  EntityType
	ID    string
	Code  string
	Error string
}

// SyncUploadResult aggregates the outcome of an upload batch.
type SyncUploadResult struct {
	SyncTimestamp        time.Time
	ProcessedCases       int
	ProcessedAttachments int
	ProcessedLocations   int
	Conflicts            []Conflict
	Errors               []ItemError
}

// CaseBundle is a case together with its attachment metadata.
type CaseBundle struct {
	Case        Case
	Attachments []Attachment
}

// ChangeSet is what the change log returns for one page.
type ChangeSet struct {
	Cases      []Case
	DeletedIDs []uuid.UUID
	HasMore    bool
	Watermark  time.Time
}

// SyncDownloadResult is the server-to-device half of the protocol.
type SyncDownloadResult struct {
	Cases          []CaseBundle
	DeletedCaseIDs []uuid.UUID
	Conflicts      []Conflict
	SyncTimestamp  time.Time
	HasMore        bool
}

// SyncStatus is a lightweight health view of a device.
type SyncStatus struct {
	DeviceID       string
	LastSyncAt     *time.Time
	IsOnline       bool
	PendingChanges int
}

// Attachment is metadata of a file uploaded through the file endpoint.
type Attachment struct {
	ID           uuid.UUID // client-chosen
	CaseID       uuid.UUID
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	StorageKey   string
	Latitude     *float64
	Longitude    *float64
	Accuracy     *float64
	UploadedBy   uuid.UUID
	UploadedAt   time.Time
}

// LocationPoint is append-only location telemetry.
type LocationPoint struct {
	ID         uuid.UUID // client-chosen
	UserID     uuid.UUID
	CaseID     uuid.UUID // uuid.Nil when not tied to a case
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Source     string
	RecordedAt time.Time
}
