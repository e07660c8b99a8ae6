package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Item error codes that are not validation codes.
const (
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
)

// SyncConfig bounds upload batches and the online heuristic.
type SyncConfig struct {
	MaxBatch     int
	OnlineWindow time.Duration
}

// UploadRequest is one device push.
type UploadRequest struct {
	LocalChanges      *model.LocalChanges // nil means the batch shape is malformed
	DeviceInfo        *model.DeviceInfo
	LastSyncTimestamp *time.Time
}

// DownloadRequest is one device pull.
type DownloadRequest struct {
	LastSyncTimestamp *time.Time
	AssignedTo        uuid.UUID // honored for non-field callers only
	Limit             int
}

// SyncService runs the device synchronization protocol.
type SyncService interface {
	// Upload applies a batch of local changes item by item.
	Upload(ctx context.Context, c model.Caller, req UploadRequest) (*model.SyncUploadResult, error)
	// Download returns cases changed since the device watermark.
	Download(ctx context.Context, c model.Caller, req DownloadRequest) (*model.SyncDownloadResult, error)
	// Status reports the device's last sync time and online flag.
	Status(ctx context.Context, c model.Caller, deviceID string) (*model.SyncStatus, error)
}

type SyncServiceImpl struct {
	detector    *ConflictDetector
	changes     *ChangeLog
	cases       repository.CaseRepository
	attachments repository.AttachmentRepository
	locations   repository.LocationRepository
	devices     DeviceService
	audit       audit.Notifier
	log         *zap.Logger
	cfg         SyncConfig
	now         func() time.Time
}

// NewSyncService constructs SyncService.
func NewSyncService(
	detector *ConflictDetector,
	changes *ChangeLog,
	cases repository.CaseRepository,
	attachments repository.AttachmentRepository,
	locations repository.LocationRepository,
	devices DeviceService,
	n audit.Notifier,
	log *zap.Logger,
	cfg SyncConfig,
) *SyncServiceImpl {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 1000
	}
	if cfg.OnlineWindow <= 0 {
		cfg.OnlineWindow = 5 * time.Minute
	}
	return &SyncServiceImpl{
		detector:    detector,
		changes:     changes,
		cases:       cases,
		attachments: attachments,
		locations:   locations,
		devices:     devices,
		audit:       n,
		log:         log,
		cfg:         cfg,
		now:         utcNow,
	}
}

// Upload processes cases, then attachments, then locations, each in submission order.
// An item failure is recorded and processing continues; only a missing or oversized batch fails the call.
func (s *SyncServiceImpl) Upload(ctx context.Context, c model.Caller, req UploadRequest) (*model.SyncUploadResult, error) {
	if req.LocalChanges == nil {
		return nil, errs.Validation(errs.CodeMissingLocalChanges, "localChanges is required", nil)
	}
	lc := req.LocalChanges
	if n := lc.Len(); n > s.cfg.MaxBatch {
		return nil, errs.Validation(errs.CodeBatchTooLarge, "too many changes in one batch",
			map[string]any{"max": s.cfg.MaxBatch, "provided": n})
	}

	res := &model.SyncUploadResult{Conflicts: []model.Conflict{}, Errors: []model.ItemError{}}

	for _, ch := range lc.Cases {
		conflict, err := s.applyCase(ctx, c, ch)
		switch {
		case err != nil:
			res.Errors = append(res.Errors, s.itemError(model.EntityCase, ch.ID, err))
		case conflict != nil:
			res.Conflicts = append(res.Conflicts, *conflict)
		default:
			res.ProcessedCases++
		}
	}
	for _, ch := range lc.Attachments {
		if err := s.applyAttachment(ctx, c, ch); err != nil {
			res.Errors = append(res.Errors, s.itemError(model.EntityAttachment, ch.ID, err))
			continue
		}
		res.ProcessedAttachments++
	}
	for _, ch := range lc.Locations {
		if err := s.applyLocation(ctx, c, ch); err != nil {
			res.Errors = append(res.Errors, s.itemError(model.EntityLocation, ch.ID, err))
			continue
		}
		res.ProcessedLocations++
	}

	s.touch(ctx, c)
	res.SyncTimestamp = s.now()

	s.audit.Notify(model.AuditEvent{
		Action:     model.AuditSyncUpload,
		ActorID:    c.UserID,
		TargetType: "device",
		TargetID:   c.DeviceID,
		Metadata: map[string]string{
			"processedCases":       strconv.Itoa(res.ProcessedCases),
			"processedAttachments": strconv.Itoa(res.ProcessedAttachments),
			"processedLocations":   strconv.Itoa(res.ProcessedLocations),
			"conflicts":            strconv.Itoa(len(res.Conflicts)),
			"errors":               strconv.Itoa(len(res.Errors)),
		},
	})
	return res, nil
}

func (s *SyncServiceImpl) applyCase(ctx context.Context, c model.Caller, ch model.Change) (*model.Conflict, error) {
	id, err := parseEntityID(ch.ID)
	if err != nil {
		return nil, err
	}
	switch normalizeAction(ch.Action) {
	case model.ActionCreate:
		// a replayed CREATE counts as processed
		_, err := s.detector.TryApplyCaseCreate(ctx, c, id, ch.Payload)
		return nil, err
	case model.ActionUpdate:
		r, err := s.detector.TryApplyCaseUpdate(ctx, c, id, ch.Payload, ch.LocalTimestamp)
		if err != nil {
			return nil, err
		}
		return r.Conflict, nil
	default:
		return nil, invalidAction(ch.Action, model.ActionCreate, model.ActionUpdate)
	}
}

type attachmentPayload struct {
	CaseID       string   `json:"caseId"`
	Filename     string   `json:"filename"`
	OriginalName string   `json:"originalName"`
	MimeType     string   `json:"mimeType"`
	Size         int64    `json:"size"`
	StorageKey   string   `json:"storageKey"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Accuracy     *float64 `json:"accuracy"`
}

func (s *SyncServiceImpl) applyAttachment(ctx context.Context, c model.Caller, ch model.Change) error {
	id, err := parseEntityID(ch.ID)
	if err != nil {
		return err
	}
	switch normalizeAction(ch.Action) {
	case model.ActionCreate:
		var p attachmentPayload
		if err := ch.Payload.Decode(&p); err != nil {
			return errs.Validation(errs.CodeInvalidPayload, err.Error(), nil)
		}
		caseID, err := uuid.FromString(p.CaseID)
		if err != nil {
			return errs.Validation(errs.CodeMissingField, "caseId is required", map[string]any{"field": "caseId"})
		}
		if p.Filename == "" {
			return errs.Validation(errs.CodeMissingField, "filename is required", map[string]any{"field": "filename"})
		}
		if _, err := s.cases.Get(ctx, caseID, c.Assignee()); err != nil {
			return err
		}
		at := ch.LocalTimestamp
		if at.IsZero() {
			at = s.now()
		}
		a := &model.Attachment{
			ID:           id,
			CaseID:       caseID,
			Filename:     p.Filename,
			OriginalName: p.OriginalName,
			MimeType:     p.MimeType,
			Size:         p.Size,
			StorageKey:   p.StorageKey,
			Latitude:     p.Latitude,
			Longitude:    p.Longitude,
			Accuracy:     p.Accuracy,
			UploadedBy:   c.UserID,
			UploadedAt:   at.UTC(),
		}
		if a.StorageKey == "" {
			a.StorageKey = p.Filename
		}
		_, err = s.attachments.Create(ctx, a)
		return err
	case model.ActionDelete:
		a, err := s.attachments.Get(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			return nil // already gone
		}
		if err != nil {
			return err
		}
		if _, err := s.cases.Get(ctx, a.CaseID, c.Assignee()); err != nil {
			return err
		}
		if err := s.attachments.Delete(ctx, id); err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return nil
	default:
		return invalidAction(ch.Action, model.ActionCreate, model.ActionDelete)
	}
}

type locationPayload struct {
	CaseID    string   `json:"caseId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Source    string   `json:"source"`
}

func (s *SyncServiceImpl) applyLocation(ctx context.Context, c model.Caller, ch model.Change) error {
	id, err := parseEntityID(ch.ID)
	if err != nil {
		return err
	}
	if a := normalizeAction(ch.Action); a != "" && a != model.ActionCreate {
		return invalidAction(ch.Action, model.ActionCreate)
	}
	var p locationPayload
	if err := ch.Payload.Decode(&p); err != nil {
		return errs.Validation(errs.CodeInvalidPayload, err.Error(), nil)
	}
	if p.Latitude == nil || p.Longitude == nil {
		return errs.Validation(errs.CodeMissingField, "latitude and longitude are required", nil)
	}
	pt := &model.LocationPoint{
		ID:         id,
		UserID:     c.UserID,
		Latitude:   *p.Latitude,
		Longitude:  *p.Longitude,
		Accuracy:   p.Accuracy,
		Source:     p.Source,
		RecordedAt: ch.LocalTimestamp.UTC(),
	}
	if p.CaseID != "" {
		if pt.CaseID, err = uuid.FromString(p.CaseID); err != nil {
			return errs.Validation(errs.CodeInvalidPayload, "caseId is not a uuid", map[string]any{"field": "caseId"})
		}
		if _, err := s.cases.Get(ctx, pt.CaseID, c.Assignee()); err != nil {
			return err
		}
	}
	if pt.RecordedAt.IsZero() {
		pt.RecordedAt = s.now()
	}
	_, err = s.locations.Create(ctx, pt)
	return err
}

func (s *SyncServiceImpl) itemError(t model.EntityType, id string, err error) model.ItemError {
	ie := model.ItemError{Type: t, ID: id}
	if ve, ok := errs.AsValidation(err); ok {
		ie.Code, ie.Error = ve.Code, ve.Message
		return ie
	}
	switch {
	case errors.Is(err, errs.ErrForbidden):
		ie.Code, ie.Error = CodeForbidden, "not allowed for this role"
	case errors.Is(err, errs.ErrNotFound):
		ie.Code, ie.Error = CodeNotFound, "not found"
	default:
		s.log.Error("sync item failed",
			zap.String("type", string(t)),
			zap.String("id", id),
			zap.Error(err),
		)
		ie.Code, ie.Error = CodeInternalError, "internal error"
	}
	return ie
}

func (s *SyncServiceImpl) touch(ctx context.Context, c model.Caller) {
	if c.DeviceID == "" {
		return
	}
	if err := s.devices.Touch(ctx, c.UserID, c.DeviceID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		s.log.Warn("device touch failed", zap.String("device_id", c.DeviceID), zap.Error(err))
	}
}

// Download reads one change log page and attaches attachment metadata.
func (s *SyncServiceImpl) Download(ctx context.Context, c model.Caller, req DownloadRequest) (*model.SyncDownloadResult, error) {
	cs, err := s.changes.ChangesSince(ctx, c, req.LastSyncTimestamp, req.AssignedTo, req.Limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(cs.Cases))
	for i := range cs.Cases {
		ids[i] = cs.Cases[i].ID
	}
	byCase, err := s.attachments.ListByCases(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := &model.SyncDownloadResult{
		Cases:          make([]model.CaseBundle, len(cs.Cases)),
		DeletedCaseIDs: cs.DeletedIDs,
		Conflicts:      []model.Conflict{},
		SyncTimestamp:  cs.Watermark,
		HasMore:        cs.HasMore,
	}
	for i, cc := range cs.Cases {
		atts := byCase[cc.ID]
		if atts == nil {
			atts = []model.Attachment{}
		}
		out.Cases[i] = model.CaseBundle{Case: cc, Attachments: atts}
	}
	s.touch(ctx, c)
	return out, nil
}

// Status reads the device row. PendingChanges is always 0; pending work is tracked on the device.
func (s *SyncServiceImpl) Status(ctx context.Context, c model.Caller, deviceID string) (*model.SyncStatus, error) {
	if deviceID == "" {
		deviceID = c.DeviceID
	}
	d, err := s.devices.Get(ctx, c.UserID, deviceID)
	if err != nil {
		return nil, err
	}
	last := d.LastActiveAt
	return &model.SyncStatus{
		DeviceID:   d.DeviceID,
		LastSyncAt: &last,
		IsOnline:   d.IsActive && s.now().Sub(last) < s.cfg.OnlineWindow,
	}, nil
}

func parseEntityID(raw string) (uuid.UUID, error) {
	id, err := uuid.FromString(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errs.Validation(errs.CodeInvalidPayload, "id must be a uuid", map[string]any{"field": "id"})
	}
	return id, nil
}

func normalizeAction(a model.ChangeAction) model.ChangeAction {
	return model.ChangeAction(strings.ToUpper(strings.TrimSpace(string(a))))
}

func invalidAction(got model.ChangeAction, allowed ...model.ChangeAction) error {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return errs.Validation(errs.CodeInvalidAction, "unsupported action "+strconv.Quote(string(got)),
		map[string]any{"allowed": names})
}
