// Package convert maps domain types to the JSON wire shapes and back.
package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/service"
	"github.com/and161185/fieldsync/internal/version"
	"github.com/and161185/fieldsync/internal/wire"
	u "github.com/gofrs/uuid/v5"
)

// SyncStatusSynced marks server-side case copies.
const SyncStatusSynced = "SYNCED"

// --- helpers ---

func idOrEmpty(id u.UUID) string {
	if id == u.Nil {
		return ""
	}
	return id.String()
}

func ptrIDOrEmpty(id *u.UUID) string {
	if id == nil {
		return ""
	}
	return idOrEmpty(*id)
}

func secondsUntil(t, now time.Time) int64 {
	d := t.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// --- auth ---

// FromWireDeviceInfo converts reported device metadata; nil gives zero info.
func FromWireDeviceInfo(in *wire.DeviceInfo) model.DeviceInfo {
	if in == nil {
		return model.DeviceInfo{}
	}
	return model.DeviceInfo{
		Platform:   model.ParsePlatform(in.Platform),
		Model:      strings.TrimSpace(in.Model),
		OSVersion:  strings.TrimSpace(in.OSVersion),
		AppVersion: strings.TrimSpace(in.AppVersion),
		PushToken:  strings.TrimSpace(in.PushToken),
	}
}

// ToWireUser converts a user to its public profile.
func ToWireUser(usr model.User) wire.UserProfile {
	return wire.UserProfile{
		ID:       usr.ID.String(),
		Username: usr.Username,
		Name:     usr.Name,
		Email:    usr.Email,
		Role:     string(usr.Role),
	}
}

// ToWireLogin converts a login result. The auth code is exposed only while the device is pending.
func ToWireLogin(res *service.LoginResult, now time.Time) wire.LoginResponse {
	d := res.Device
	da := wire.DeviceAuthentication{
		IsApproved:    d.IsApproved,
		NeedsApproval: !d.IsApproved,
	}
	if !d.IsApproved && d.AuthCodeLive(now) {
		da.AuthCode = d.AuthCode
		da.AuthCodeExpiresAt = d.AuthCodeExpiresAt
	}
	return wire.LoginResponse{
		User:                 ToWireUser(res.User),
		AccessToken:          res.Tokens.AccessToken,
		RefreshToken:         res.Tokens.RefreshToken,
		ExpiresIn:            secondsUntil(res.Tokens.AccessExpiresAt, now),
		DeviceRegistered:     res.DeviceRegistered,
		ForceUpdate:          res.Version.ForceUpdate,
		UpdateRequired:       res.Version.UpdateRequired,
		DeviceAuthentication: da,
	}
}

// ToWireRefresh converts a refreshed access token.
func ToWireRefresh(t model.Tokens, now time.Time) wire.RefreshResponse {
	return wire.RefreshResponse{AccessToken: t.AccessToken, ExpiresIn: secondsUntil(t.AccessExpiresAt, now)}
}

// ToWireVersion converts a version gate result.
func ToWireVersion(r version.Result) wire.VersionCheckResponse {
	return wire.VersionCheckResponse{
		CurrentVersion:  r.CurrentVersion,
		LatestVersion:   r.LatestVersion,
		UpdateAvailable: r.UpdateAvailable,
		UpdateRequired:  r.UpdateRequired,
		ForceUpdate:     r.ForceUpdate,
		DownloadURL:     r.DownloadURL,
	}
}

// --- devices ---

// ToWireDevice converts a device registration for admin views.
func ToWireDevice(d model.Device) wire.Device {
	return wire.Device{
		ID:                d.ID.String(),
		DeviceID:          d.DeviceID,
		UserID:            d.UserID.String(),
		Platform:          string(d.Platform),
		Model:             d.Model,
		OSVersion:         d.OSVersion,
		AppVersion:        d.AppVersion,
		State:             string(d.State()),
		IsApproved:        d.IsApproved,
		IsActive:          d.IsActive,
		AuthCode:          d.AuthCode,
		AuthCodeExpiresAt: d.AuthCodeExpiresAt,
		ApprovedAt:        d.ApprovedAt,
		ApprovedBy:        ptrIDOrEmpty(d.ApprovedBy),
		RejectedAt:        d.RejectedAt,
		RejectedBy:        ptrIDOrEmpty(d.RejectedBy),
		RejectionReason:   d.RejectionReason,
		LastActiveAt:      d.LastActiveAt,
		CreatedAt:         d.CreatedAt,
	}
}

// ToWirePendingDevices converts the approval queue.
func ToWirePendingDevices(ds []model.PendingDevice) []wire.Device {
	out := make([]wire.Device, 0, len(ds))
	for _, pd := range ds {
		w := ToWireDevice(pd.Device)
		w.User = &wire.UserSummary{
			ID:       pd.UserID.String(),
			Username: pd.Username,
			Name:     pd.UserName,
			Email:    pd.UserEmail,
		}
		out = append(out, w)
	}
	return out
}

// --- sync (device -> server) ---

// FromWireChanges converts one change stream. IDs stay raw so bad ids fail per item.
func FromWireChanges(in []wire.Change) []model.Change {
	out := make([]model.Change, 0, len(in))
	for _, c := range in {
		p := model.Payload(c.Data)
		if p == nil {
			p = model.Payload{}
		}
		out = append(out, model.Change{
			ID:             c.ID,
			Action:         model.ChangeAction(c.Action),
			Payload:        p,
			LocalTimestamp: c.Timestamp.UTC(),
		})
	}
	return out
}

// FromWireUpload converts an upload body. A missing localChanges stays nil.
func FromWireUpload(in wire.UploadRequest) service.UploadRequest {
	out := service.UploadRequest{LastSyncTimestamp: in.LastSyncTimestamp}
	if in.LocalChanges != nil {
		out.LocalChanges = &model.LocalChanges{
			Cases:       FromWireChanges(in.LocalChanges.Cases),
			Attachments: FromWireChanges(in.LocalChanges.Attachments),
			Locations:   FromWireChanges(in.LocalChanges.Locations),
		}
	}
	if in.DeviceInfo != nil {
		info := FromWireDeviceInfo(in.DeviceInfo)
		out.DeviceInfo = &info
	}
	return out
}

// --- sync (server -> device) ---

// Files builds download links for stored attachments.
type Files struct {
	BaseURL string
}

// URL returns the download link of a storage key.
func (f Files) URL(key string) string {
	return strings.TrimRight(f.BaseURL, "/") + "/files/" + key
}

// ThumbnailURL returns the thumbnail link of a storage key.
func (f Files) ThumbnailURL(key string) string {
	return f.URL(key) + "?thumbnail=1"
}

// ToWireAttachment converts attachment metadata.
func (f Files) ToWireAttachment(a model.Attachment) wire.Attachment {
	w := wire.Attachment{
		ID:           a.ID.String(),
		Filename:     a.Filename,
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		Size:         a.Size,
		URL:          f.URL(a.StorageKey),
		UploadedAt:   a.UploadedAt,
	}
	if strings.HasPrefix(a.MimeType, "image/") {
		w.ThumbnailURL = f.ThumbnailURL(a.StorageKey)
	}
	if a.Latitude != nil && a.Longitude != nil {
		w.GeoLocation = &wire.GeoLocation{Latitude: *a.Latitude, Longitude: *a.Longitude, Accuracy: a.Accuracy}
	}
	return w
}

// ToWireCase converts a case and its attachments to the mobile projection.
func (f Files) ToWireCase(c model.Case, atts []model.Attachment) wire.Case {
	w := wire.Case{
		ID:          c.ID.String(),
		Title:       c.Title,
		Description: c.Description,
		Customer:    wire.Customer{Name: c.CustomerName, Phone: c.CustomerPhone, Email: c.CustomerEmail},
		Address: wire.Address{
			Street:  c.AddressStreet,
			City:    c.AddressCity,
			State:   c.AddressState,
			Pincode: c.AddressPincode,
		},
		Latitude:            c.Latitude,
		Longitude:           c.Longitude,
		Status:              string(c.Status),
		Priority:            string(c.Priority),
		AssignedAt:          c.AssignedAt,
		UpdatedAt:           c.UpdatedAt,
		CompletedAt:         c.CompletedAt,
		Notes:               c.Notes,
		VerificationType:    c.VerificationType,
		VerificationOutcome: c.VerificationOutcome,
		FormData:            c.FormData,
		Attachments:         make([]wire.Attachment, 0, len(atts)),
		SyncStatus:          SyncStatusSynced,
	}
	if c.Client.ID != u.Nil {
		w.Client = &wire.Client{ID: c.Client.ID.String(), Name: c.Client.Name, Code: c.Client.Code}
	}
	for _, a := range atts {
		w.Attachments = append(w.Attachments, f.ToWireAttachment(a))
	}
	return w
}

// ToWireConflicts converts conflicts; the server copy is sent without attachments.
func (f Files) ToWireConflicts(cs []model.Conflict) []wire.Conflict {
	out := make([]wire.Conflict, 0, len(cs))
	for _, c := range cs {
		out = append(out, wire.Conflict{
			ID:             c.EntityID.String(),
			ConflictType:   string(c.Type),
			LocalVersion:   c.LocalVersion,
			LocalTimestamp: c.LocalTimestamp,
			ServerVersion:  f.ToWireCase(c.ServerVersion, nil),
		})
	}
	return out
}

// ToWireUpload converts an upload result.
func (f Files) ToWireUpload(r *model.SyncUploadResult) wire.UploadResponse {
	errsOut := make([]wire.ItemError, 0, len(r.Errors))
	for _, e := range r.Errors {
		errsOut = append(errsOut, wire.ItemError{Type: string(e.Type), ID: e.ID, Code: e.Code, Error: e.Error})
	}
	return wire.UploadResponse{
		SyncTimestamp: r.SyncTimestamp,
		Results: wire.UploadResults{
			ProcessedCases:       r.ProcessedCases,
			ProcessedAttachments: r.ProcessedAttachments,
			ProcessedLocations:   r.ProcessedLocations,
			Conflicts:            f.ToWireConflicts(r.Conflicts),
			Errors:               errsOut,
		},
	}
}

// ToWireDownload converts a download page.
func (f Files) ToWireDownload(r *model.SyncDownloadResult) wire.DownloadResponse {
	out := wire.DownloadResponse{
		Cases:          make([]wire.Case, 0, len(r.Cases)),
		DeletedCaseIDs: make([]string, 0, len(r.DeletedCaseIDs)),
		Conflicts:      f.ToWireConflicts(r.Conflicts),
		SyncTimestamp:  r.SyncTimestamp,
		HasMore:        r.HasMore,
	}
	for _, b := range r.Cases {
		out.Cases = append(out.Cases, f.ToWireCase(b.Case, b.Attachments))
	}
	for _, id := range r.DeletedCaseIDs {
		out.DeletedCaseIDs = append(out.DeletedCaseIDs, id.String())
	}
	return out
}

// ToWireSyncStatus converts a device sync status.
func ToWireSyncStatus(s *model.SyncStatus) wire.SyncStatus {
	return wire.SyncStatus{
		DeviceID:       s.DeviceID,
		LastSyncAt:     s.LastSyncAt,
		IsOnline:       s.IsOnline,
		PendingChanges: s.PendingChanges,
	}
}

// --- forms ---

// FromWireAutoSave converts a draft save body.
func FromWireAutoSave(caseID u.UUID, in wire.AutoSaveRequest) (model.AutoSaveDraft, error) {
	ft, ok := model.ParseFormType(in.FormType)
	if !ok {
		return model.AutoSaveDraft{}, errs.Validation(errs.CodeInvalidPayload, "formType must be RESIDENCE or OFFICE",
			map[string]any{"formType": in.FormType})
	}
	d := model.AutoSaveDraft{CaseID: caseID, FormType: ft, FormData: in.FormData}
	if in.Timestamp != nil {
		d.SavedAt = in.Timestamp.UTC()
	}
	return d, nil
}

// ToWireDraft converts a stored draft.
func ToWireDraft(d *model.AutoSaveDraft, withData bool) wire.AutoSaveResponse {
	w := wire.AutoSaveResponse{
		CaseID:   d.CaseID.String(),
		FormType: string(d.FormType),
		SavedAt:  d.SavedAt,
		Version:  d.Version,
	}
	if withData {
		w.FormData = d.FormData
	}
	return w
}

// FromWireVerification converts a final submission body.
func FromWireVerification(caseID u.UUID, ft model.FormType, in wire.VerificationRequest) (model.VerificationSubmission, error) {
	sub := model.VerificationSubmission{
		CaseID:        caseID,
		FormType:      ft,
		FormData:      in.FormData,
		AttachmentIDs: make([]u.UUID, 0, len(in.AttachmentIDs)),
		Photos:        make([]model.Photo, 0, len(in.Photos)),
		Outcome:       strings.TrimSpace(in.VerificationOutcome),
	}
	for i, s := range in.AttachmentIDs {
		id, err := u.FromString(s)
		if err != nil {
			return model.VerificationSubmission{}, errs.Validation(errs.CodeInvalidPayload,
				fmt.Sprintf("attachmentIds[%d] is not a uuid", i), map[string]any{"index": i})
		}
		sub.AttachmentIDs = append(sub.AttachmentIDs, id)
	}
	for i, p := range in.Photos {
		ph := model.Photo{CapturedAt: p.CapturedAt}
		if p.AttachmentID != "" {
			id, err := u.FromString(p.AttachmentID)
			if err != nil {
				return model.VerificationSubmission{}, errs.Validation(errs.CodeInvalidPayload,
					fmt.Sprintf("photos[%d].attachmentId is not a uuid", i), map[string]any{"photoIndex": i})
			}
			ph.AttachmentID = id
		}
		if g := p.GeoLocation; g != nil {
			ph.Latitude, ph.Longitude, ph.Accuracy = g.Latitude, g.Longitude, g.Accuracy
		}
		sub.Photos = append(sub.Photos, ph)
	}
	if g := in.GeoLocation; g != nil {
		sub.GeoLocation = &model.GeoLocation{Latitude: g.Latitude, Longitude: g.Longitude, Accuracy: g.Accuracy, Address: g.Address}
	}
	return sub, nil
}

// ToWireVerification converts the submission outcome.
func ToWireVerification(r *model.VerificationResult) wire.VerificationResponse {
	return wire.VerificationResponse{
		CaseID:      r.CaseID.String(),
		ReportID:    r.ReportID.String(),
		Status:      string(r.Status),
		CompletedAt: r.CompletedAt,
	}
}
