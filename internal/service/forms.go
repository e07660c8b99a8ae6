package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// MinPhotos is the number of geo-tagged photos a verification needs.
const MinPhotos = 5

// FormService manages form drafts and final verification submission.
type FormService interface {
	// SaveDraft replaces the draft for (case, form type) and returns it with its new version.
	SaveDraft(ctx context.Context, c model.Caller, d model.AutoSaveDraft) (*model.AutoSaveDraft, error)
	// LoadDraft returns the draft or ErrNotFound.
	LoadDraft(ctx context.Context, c model.Caller, caseID uuid.UUID, ft model.FormType) (*model.AutoSaveDraft, error)
	// ClearDraft removes the draft; a missing draft is not an error.
	ClearDraft(ctx context.Context, c model.Caller, caseID uuid.UUID, ft model.FormType) error
	// SubmitVerification completes the case after validating photos.
	SubmitVerification(ctx context.Context, c model.Caller, sub model.VerificationSubmission) (*model.VerificationResult, error)
}

type FormServiceImpl struct {
	cases         repository.CaseRepository
	drafts        repository.AutoSaveRepository
	verifications repository.VerificationRepository
	audit         audit.Notifier
	log           *zap.Logger
	now           func() time.Time
}

// NewFormService constructs FormService.
func NewFormService(
	cases repository.CaseRepository,
	drafts repository.AutoSaveRepository,
	verifications repository.VerificationRepository,
	n audit.Notifier,
	log *zap.Logger,
) *FormServiceImpl {
	return &FormServiceImpl{cases: cases, drafts: drafts, verifications: verifications, audit: n, log: log, now: utcNow}
}

// SaveDraft trusts the client-declared save time.
func (s *FormServiceImpl) SaveDraft(ctx context.Context, c model.Caller, d model.AutoSaveDraft) (*model.AutoSaveDraft, error) {
	if _, ok := model.ParseFormType(string(d.FormType)); !ok {
		return nil, errs.Validation(errs.CodeInvalidPayload, "formType must be RESIDENCE or OFFICE", nil)
	}
	if emptyJSON(d.FormData) {
		return nil, errs.Validation(errs.CodeMissingField, "formData is required", map[string]any{"field": "formData"})
	}
	if _, err := s.cases.Get(ctx, d.CaseID, c.Assignee()); err != nil {
		return nil, err
	}
	if d.SavedAt.IsZero() {
		d.SavedAt = s.now()
	}
	v, err := s.drafts.Save(ctx, &d)
	if err != nil {
		return nil, err
	}
	d.Version = v
	return &d, nil
}

// LoadDraft returns the current draft.
func (s *FormServiceImpl) LoadDraft(ctx context.Context, c model.Caller, caseID uuid.UUID, ft model.FormType) (*model.AutoSaveDraft, error) {
	if _, err := s.cases.Get(ctx, caseID, c.Assignee()); err != nil {
		return nil, err
	}
	return s.drafts.Get(ctx, caseID, ft)
}

// ClearDraft deletes the draft.
func (s *FormServiceImpl) ClearDraft(ctx context.Context, c model.Caller, caseID uuid.UUID, ft model.FormType) error {
	if _, err := s.cases.Get(ctx, caseID, c.Assignee()); err != nil {
		return err
	}
	return s.drafts.Delete(ctx, caseID, ft)
}

// SubmitVerification rejects the whole submission unless every photo rule holds; nothing is written before that.
func (s *FormServiceImpl) SubmitVerification(ctx context.Context, c model.Caller, sub model.VerificationSubmission) (*model.VerificationResult, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	cur, err := s.cases.Get(ctx, sub.CaseID, c.Assignee())
	if err != nil {
		return nil, err
	}
	if cur.Status == model.CaseStatusCompleted {
		return nil, errs.ErrInvalidState
	}

	now := s.now()
	if !now.After(cur.UpdatedAt) {
		now = cur.UpdatedAt.Add(time.Microsecond)
	}
	next := *cur
	next.Status = model.CaseStatusCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now
	next.FormData = append(json.RawMessage(nil), sub.FormData...)
	next.VerificationType = string(sub.FormType)
	if sub.Outcome != "" {
		next.VerificationOutcome = sub.Outcome
	}

	reportID, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	rep := &model.VerificationReport{
		ID:          reportID,
		CaseID:      sub.CaseID,
		FormType:    sub.FormType,
		SubmittedBy: c.UserID,
		FormData:    next.FormData,
		PhotoCount:  len(sub.Photos),
		Outcome:     sub.Outcome,
		SubmittedAt: now,
	}
	if g := sub.GeoLocation; g != nil {
		lat, lng := g.Latitude, g.Longitude
		rep.Latitude, rep.Longitude = &lat, &lng
	}

	if err := s.verifications.Complete(ctx, &next, cur.UpdatedAt, rep); err != nil {
		return nil, err
	}

	if err := s.drafts.Delete(ctx, sub.CaseID, sub.FormType); err != nil {
		s.log.Warn("draft cleanup failed",
			zap.String("case_id", sub.CaseID.String()),
			zap.String("form_type", string(sub.FormType)),
			zap.Error(err),
		)
	}

	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditVerificationSubmit,
		ActorID:    c.UserID,
		TargetType: "case",
		TargetID:   sub.CaseID.String(),
		Metadata: map[string]string{
			"formType":   string(sub.FormType),
			"reportId":   reportID.String(),
			"photoCount": strconv.Itoa(len(sub.Photos)),
		},
	})

	return &model.VerificationResult{
		CaseID:      sub.CaseID,
		ReportID:    reportID,
		Status:      model.CaseStatusCompleted,
		CompletedAt: now,
	}, nil
}

func validateSubmission(sub model.VerificationSubmission) error {
	if _, ok := model.ParseFormType(string(sub.FormType)); !ok {
		return errs.Validation(errs.CodeInvalidPayload, "formType must be RESIDENCE or OFFICE", nil)
	}
	if emptyJSON(sub.FormData) {
		return errs.Validation(errs.CodeMissingField, "formData is required", map[string]any{"field": "formData"})
	}
	if len(sub.Photos) < MinPhotos {
		return errs.Validation(errs.CodeInsufficientPhotos, "at least "+strconv.Itoa(MinPhotos)+" photos are required",
			map[string]any{"required": MinPhotos, "provided": len(sub.Photos)})
	}
	for i, p := range sub.Photos {
		if p.Latitude == nil || p.Longitude == nil {
			return errs.Validation(errs.CodeMissingGeoLocation, "every photo must carry latitude and longitude",
				map[string]any{"photoIndex": i})
		}
	}
	return nil
}

func emptyJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("{}"))
}
