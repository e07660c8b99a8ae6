package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// FormType is the verification form kind.
type FormType string

const (
	FormResidence FormType = "RESIDENCE"
	FormOffice    FormType = "OFFICE"
)

// ParseFormType accepts any casing; ok is false for unknown types.
func ParseFormType(s string) (FormType, bool) {
	ft := FormType(strings.ToUpper(strings.TrimSpace(s)))
	switch ft {
	case FormResidence, FormOffice:
		return ft, true
	}
	return "", false
}

// AutoSaveDraft is the latest in-progress form snapshot for (case, form type).
type AutoSaveDraft struct {
	CaseID   uuid.UUID
	FormType FormType
	FormData json.RawMessage
	SavedAt  time.Time // client-declared
	Version  int64     // increments on every save
}

// GeoLocation is a point with optional accuracy and reverse-geocoded address.
type GeoLocation struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
	Address   string
}

// Photo is a geo-tagged verification photo reference.
type Photo struct {
	AttachmentID uuid.UUID
	Latitude     *float64
	Longitude    *float64
	Accuracy     *float64
	CapturedAt   *time.Time
}

// VerificationSubmission is the final form submission for a case.
type VerificationSubmission struct {
	CaseID        uuid.UUID
	FormType      FormType
	FormData      json.RawMessage
	AttachmentIDs []uuid.UUID
	GeoLocation   *GeoLocation
	Photos        []Photo
	Outcome       string
}

// VerificationReport is the record created when a submission is accepted.
type VerificationReport struct {
	ID          uuid.UUID
	CaseID      uuid.UUID
	FormType    FormType
	SubmittedBy uuid.UUID
	FormData    json.RawMessage
	PhotoCount  int
	Latitude    *float64
	Longitude   *float64
	Outcome     string
	SubmittedAt time.Time
}

// VerificationResult is returned to the device after a successful submission.
type VerificationResult struct {
	CaseID      uuid.UUID
	ReportID    uuid.UUID
	Status      CaseStatus
	CompletedAt time.Time
}
