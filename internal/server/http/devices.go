package httpapi

import (
	"net/http"
	"strings"

	"github.com/and161185/fieldsync/internal/convert"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/wire"
	"github.com/go-chi/chi/v5"
)

// ListPendingDevices returns the approval queue.
func (h *Handlers) ListPendingDevices(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Devices.ListPending(r.Context())
	if err != nil {
		h.writeError(w, r, err, "DEVICE_LIST_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "", convert.ToWirePendingDevices(ds))
}

// ApproveDevice marks a pending device approved.
func (h *Handlers) ApproveDevice(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	d, err := h.svc.Devices.Approve(r.Context(), chi.URLParam(r, "deviceId"), c.UserID)
	if err != nil {
		h.writeError(w, r, err, "DEVICE_APPROVAL_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "device approved", convert.ToWireDevice(*d))
}

// RejectDevice rejects a device and revokes its sessions.
func (h *Handlers) RejectDevice(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	var req wire.RejectRequest
	if err := decode(r, &req, true); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		h.writeError(w, r, errs.Validation(errs.CodeMissingField, "reason is required", nil), "")
		return
	}
	d, err := h.svc.Devices.Reject(r.Context(), chi.URLParam(r, "deviceId"), c.UserID, reason)
	if err != nil {
		h.writeError(w, r, err, "DEVICE_REJECTION_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "device rejected", convert.ToWireDevice(*d))
}
