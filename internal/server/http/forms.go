package httpapi

import (
	"net/http"

	"github.com/and161185/fieldsync/internal/convert"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/wire"
	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
)

// caseID parses {caseId}. A malformed id cannot name any case, so it is a 404.
func caseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "caseId"))
	if err != nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

func formType(r *http.Request) (model.FormType, error) {
	raw := chi.URLParam(r, "formType")
	ft, ok := model.ParseFormType(raw)
	if !ok {
		return "", errs.Validation(errs.CodeInvalidPayload, "formType must be RESIDENCE or OFFICE",
			map[string]any{"formType": raw})
	}
	return ft, nil
}

// SaveDraft stores the latest draft of a form.
func (h *Handlers) SaveDraft(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	id, err := caseID(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	var req wire.AutoSaveRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	draft, err := convert.FromWireAutoSave(id, req)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	d, err := h.svc.Forms.SaveDraft(r.Context(), c, draft)
	if err != nil {
		h.writeError(w, r, err, "AUTO_SAVE_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "draft saved", convert.ToWireDraft(d, false))
}

// LoadDraft returns the latest draft of a form.
func (h *Handlers) LoadDraft(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	id, err := caseID(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	ft, err := formType(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	d, err := h.svc.Forms.LoadDraft(r.Context(), c, id, ft)
	if err != nil {
		h.writeError(w, r, err, "AUTO_SAVE_LOAD_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "", convert.ToWireDraft(d, true))
}

// ClearDraft discards a draft. Missing drafts are fine.
func (h *Handlers) ClearDraft(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	id, err := caseID(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	ft, err := formType(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	if err := h.svc.Forms.ClearDraft(r.Context(), c, id, ft); err != nil {
		h.writeError(w, r, err, "AUTO_SAVE_DELETE_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "draft cleared", nil)
}

// SubmitResidence completes a case with a residence verification.
func (h *Handlers) SubmitResidence(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, model.FormResidence)
}

// SubmitOffice completes a case with an office verification.
func (h *Handlers) SubmitOffice(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, model.FormOffice)
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, ft model.FormType) {
	c, _ := CallerFromCtx(r.Context())
	id, err := caseID(r)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	var req wire.VerificationRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	sub, err := convert.FromWireVerification(id, ft, req)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	res, err := h.svc.Forms.SubmitVerification(r.Context(), c, sub)
	if err != nil {
		h.writeError(w, r, err, "VERIFICATION_SUBMISSION_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "verification submitted", convert.ToWireVerification(res))
}
