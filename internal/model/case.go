package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// CaseStatus is the workflow state of a verification case.
type CaseStatus string

const (
	CaseStatusPending    CaseStatus = "PENDING"
	CaseStatusAssigned   CaseStatus = "ASSIGNED"
	CaseStatusInProgress CaseStatus = "IN_PROGRESS"
	CaseStatusCompleted  CaseStatus = "COMPLETED"
	CaseStatusRejected   CaseStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusPending, CaseStatusAssigned, CaseStatusInProgress, CaseStatusCompleted, CaseStatusRejected:
		return true
	}
	return false
}

// CasePriority orders the field agent's worklist.
type CasePriority string

const (
	PriorityLow    CasePriority = "LOW"
	PriorityMedium CasePriority = "MEDIUM"
	PriorityHigh   CasePriority = "HIGH"
	PriorityUrgent CasePriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p CasePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ClientRef is the summary of the bank/client a case belongs to.
type ClientRef struct {
	ID   uuid.UUID
	Name string
	Code string
}

// Case is the server-side record of a field verification case.
type Case struct {
	ID          uuid.UUID // client-chosen for offline-created cases
	Title       string
	Description string

	CustomerName  string
	CustomerPhone string
	CustomerEmail string

	AddressStreet  string
	AddressCity    string
	AddressState   string
	AddressPincode string
	Latitude       *float64
	Longitude      *float64

	Status     CaseStatus
	Priority   CasePriority
	AssignedTo uuid.UUID // uuid.Nil when unassigned
	AssignedAt *time.Time
	Client     ClientRef

	Notes               string
	VerificationType    string
	VerificationOutcome string
	FormData            json.RawMessage

	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// CaseFilter selects cases for the change log.
type CaseFilter struct {
	Since      time.Time
	AssignedTo uuid.UUID // uuid.Nil means any assignee
	Limit      int
}
