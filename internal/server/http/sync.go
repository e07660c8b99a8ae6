package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/fieldsync/internal/convert"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/service"
	"github.com/and161185/fieldsync/internal/wire"
	"github.com/gofrs/uuid/v5"
)

// SyncUpload applies a batch of local changes.
func (h *Handlers) SyncUpload(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	var req wire.UploadRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	res, err := h.svc.Sync.Upload(r.Context(), c, convert.FromWireUpload(req))
	if err != nil {
		h.writeError(w, r, err, "SYNC_UPLOAD_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "sync upload processed", h.files.ToWireUpload(res))
}

func parseDownload(r *http.Request) (service.DownloadRequest, error) {
	q := r.URL.Query()
	var req service.DownloadRequest
	if s := strings.TrimSpace(q.Get("lastSyncTimestamp")); s != "" {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return req, errs.Validation(errs.CodeInvalidPayload, "lastSyncTimestamp must be RFC 3339",
				map[string]any{"lastSyncTimestamp": s})
		}
		ts = ts.UTC()
		req.LastSyncTimestamp = &ts
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return req, errs.Validation(errs.CodeInvalidPayload, "limit must be a non-negative integer",
				map[string]any{"limit": s})
		}
		req.Limit = n
	}
	if s := strings.TrimSpace(q.Get("assignedTo")); s != "" {
		id, err := uuid.FromString(s)
		if err != nil {
			return req, errs.Validation(errs.CodeInvalidPayload, "assignedTo must be a uuid",
				map[string]any{"assignedTo": s})
		}
		req.AssignedTo = id
	}
	return req, nil
}

// SyncDownload returns cases changed after the caller's watermark.
func (h *Handlers) SyncDownload(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	req, err := parseDownload(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	res, err := h.svc.Sync.Download(r.Context(), c, req)
	if err != nil {
		h.writeError(w, r, err, "SYNC_DOWNLOAD_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "", h.files.ToWireDownload(res))
}

// SyncStatus reports sync health of the device named by X-Device-ID.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	st, err := h.svc.Sync.Status(r.Context(), c, strings.TrimSpace(r.Header.Get(HeaderDeviceID)))
	if err != nil {
		h.writeError(w, r, err, "SYNC_STATUS_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "", convert.ToWireSyncStatus(st))
}
