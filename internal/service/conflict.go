package service

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// ConflictPolicy decides whether a local change is stale against the server copy.
type ConflictPolicy interface {
	IsStale(localTimestamp, serverUpdatedAt time.Time) bool
}

// TimestampPolicy is last-writer-wins by device clock: the server wins when it is strictly newer.
type TimestampPolicy struct{}

// IsStale reports serverUpdatedAt > localTimestamp.
func (TimestampPolicy) IsStale(local, server time.Time) bool { return server.After(local) }

// ApplyResult is the outcome of one case change.
type ApplyResult struct {
	Applied   bool
	Duplicate bool // CREATE of an id that already exists
	Case      *model.Case
	Conflict  *model.Conflict
}

// ConflictDetector applies case changes atomically against the stored version.
type ConflictDetector struct {
	cases  repository.CaseRepository
	policy ConflictPolicy
	now    func() time.Time
}

// NewConflictDetector constructs a detector; a nil policy means TimestampPolicy.
func NewConflictDetector(cases repository.CaseRepository, p ConflictPolicy) *ConflictDetector {
	if p == nil {
		p = TimestampPolicy{}
	}
	return &ConflictDetector{cases: cases, policy: p, now: utcNow}
}

// TryApplyCaseUpdate merges payload into the stored case unless the server copy is newer.
// The write is a compare-and-set on updated_at, so a concurrent writer surfaces as a conflict.
func (d *ConflictDetector) TryApplyCaseUpdate(ctx context.Context, c model.Caller, id uuid.UUID, payload model.Payload, localTS time.Time) (ApplyResult, error) {
	patch, err := model.ParseCasePatch(payload)
	if err != nil {
		return ApplyResult{}, errs.Validation(errs.CodeInvalidPayload, err.Error(), nil)
	}
	if c.Role.IsField() && patch.TouchesAdminFields() {
		return ApplyResult{}, errs.ErrForbidden
	}

	cur, err := d.cases.Get(ctx, id, c.Assignee())
	if err != nil {
		return ApplyResult{}, err
	}
	if patch.Completes() && cur.Status != model.CaseStatusCompleted {
		return ApplyResult{}, errVerificationNeeded(id)
	}
	if d.policy.IsStale(localTS, cur.UpdatedAt) {
		return ApplyResult{Conflict: conflictFor(id, payload, localTS, *cur)}, nil
	}

	next := *cur
	patch.Apply(&next)
	now := d.now()
	if !now.After(cur.UpdatedAt) {
		now = cur.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = now
	if patch.AssignedTo != nil && *patch.AssignedTo != cur.AssignedTo {
		next.AssignedAt = &now
	}
	if next.Status == model.CaseStatusCompleted && next.CompletedAt == nil {
		next.CompletedAt = &now
	}

	err = d.cases.Update(ctx, &next, cur.UpdatedAt)
	if errors.Is(err, errs.ErrVersionConflict) {
		fresh, gerr := d.cases.Get(ctx, id, c.Assignee())
		if gerr != nil {
			return ApplyResult{}, gerr
		}
		return ApplyResult{Conflict: conflictFor(id, payload, localTS, *fresh)}, nil
	}
	if err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Applied: true, Case: &next}, nil
}

// TryApplyCaseCreate inserts a case under the client-chosen id. Replays of the same id are
// reported as duplicates and leave the stored case untouched.
func (d *ConflictDetector) TryApplyCaseCreate(ctx context.Context, c model.Caller, id uuid.UUID, payload model.Payload) (ApplyResult, error) {
	if c.Role.IsField() {
		return ApplyResult{}, errs.ErrForbidden
	}
	patch, err := model.ParseCasePatch(payload)
	if err != nil {
		return ApplyResult{}, errs.Validation(errs.CodeInvalidPayload, err.Error(), nil)
	}
	if patch.Completes() {
		return ApplyResult{}, errVerificationNeeded(id)
	}
	if patch.Title == nil || *patch.Title == "" {
		return ApplyResult{}, errs.Validation(errs.CodeMissingField, "title is required", map[string]any{"field": "title"})
	}

	now := d.now()
	nc := model.Case{
		ID:        id,
		Status:    model.CaseStatusPending,
		Priority:  model.PriorityMedium,
		CreatedBy: c.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	patch.Apply(&nc)
	if nc.AssignedTo != uuid.Nil {
		nc.AssignedAt = &now
		if patch.Status == nil {
			nc.Status = model.CaseStatusAssigned
		}
	}

	inserted, err := d.cases.Create(ctx, &nc)
	if err != nil {
		return ApplyResult{}, err
	}
	if !inserted {
		return ApplyResult{Duplicate: true}, nil
	}
	return ApplyResult{Applied: true, Case: &nc}, nil
}

// errVerificationNeeded rejects completion outside SubmitVerification, which enforces the photo gate.
func errVerificationNeeded(id uuid.UUID) error {
	return errs.Validation(errs.CodeVerificationNeeded, "cases are completed by submitting a verification",
		map[string]any{"caseId": id.String()})
}

func conflictFor(id uuid.UUID, payload model.Payload, localTS time.Time, server model.Case) *model.Conflict {
	return &model.Conflict{
		EntityID:       id,
		Type:           model.ConflictVersion,
		LocalVersion:   payload,
		LocalTimestamp: localTS,
		ServerVersion:  server,
	}
}
