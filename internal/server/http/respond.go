package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/wire"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies. Sync batches are the largest.
const maxBodyBytes = 8 << 20

// CodeInternalError is the fallback code of 5xx responses.
const CodeInternalError = "INTERNAL_ERROR"

type statusEntry struct {
	err     error
	status  int
	code    string
	message string
}

// errorStatusMap maps sentinels to HTTP responses. Order matters: first errors.Is match wins.
var errorStatusMap = []statusEntry{
	{errs.ErrUnauthorized, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password"},
	{errs.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token"},
	{errs.ErrDeviceRejected, http.StatusForbidden, "DEVICE_REJECTED", "device has been rejected"},
	{errs.ErrDeviceNotApproved, http.StatusForbidden, "DEVICE_NOT_APPROVED", "device is waiting for approval"},
	{errs.ErrDeviceInactive, http.StatusForbidden, "DEVICE_INACTIVE", "device is not active"},
	{errs.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "not allowed"},
	{errs.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later"},
	{errs.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
	{errs.ErrVersionConflict, http.StatusConflict, "VERSION_CONFLICT", "entity changed on the server"},
	{errs.ErrInvalidState, http.StatusConflict, "INVALID_STATE", "operation not allowed in current state"},
	{errs.ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "already exists"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, wire.Success{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, wire.Failure{
		Message: message,
		Error: wire.ErrorBody{
			Code:      code,
			Details:   details,
			Timestamp: time.Now().UTC(),
		},
	})
}

// writeError maps err once; unknown errors become a 500 carrying failCode and no internals.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error, failCode string) {
	if ve, ok := errs.AsValidation(err); ok {
		fail(w, http.StatusBadRequest, ve.Code, ve.Message, ve.Details)
		return
	}
	for _, e := range errorStatusMap {
		if errors.Is(err, e.err) {
			fail(w, e.status, e.code, e.message, nil)
			return
		}
	}
	h.log.Error("request failed",
		zap.String("requestId", RequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	if failCode == "" {
		failCode = CodeInternalError
	}
	fail(w, http.StatusInternalServerError, failCode, "internal error", nil)
}

// decode reads a JSON body into v. An empty body is an error unless allowEmpty.
func decode(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return errs.Validation(errs.CodeInvalidPayload, "invalid json body", nil)
	}
	return nil
}
