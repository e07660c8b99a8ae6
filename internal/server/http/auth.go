package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/and161185/fieldsync/internal/convert"
	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/service"
	"github.com/and161185/fieldsync/internal/wire"
)

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Login authenticates a user on a device.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req wire.LoginRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	res, err := h.svc.Auth.Login(r.Context(), service.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		DeviceID: req.DeviceID,
		Info:     convert.FromWireDeviceInfo(req.DeviceInfo),
		IP:       remoteIP(r),
	})
	if err != nil {
		h.writeError(w, r, err, "LOGIN_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "login successful", convert.ToWireLogin(res, h.now()))
}

// Refresh exchanges a refresh token for a new access token.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req wire.RefreshRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		h.writeError(w, r, errs.Validation(errs.CodeMissingField, "refreshToken is required", nil), "")
		return
	}
	t, err := h.svc.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err, "TOKEN_REFRESH_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "", convert.ToWireRefresh(t, h.now()))
}

// Logout revokes the device session. The body's deviceId may only name one of the caller's devices.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	c, _ := CallerFromCtx(r.Context())
	var req wire.LogoutRequest
	if err := decode(r, &req, true); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	if id := strings.TrimSpace(req.DeviceID); id != "" {
		c.DeviceID = id
	}
	if err := h.svc.Auth.Logout(r.Context(), c); err != nil {
		h.writeError(w, r, err, "LOGOUT_FAILED")
		return
	}
	writeOK(w, http.StatusOK, "logged out", nil)
}

// VersionCheck evaluates the app update gate.
func (h *Handlers) VersionCheck(w http.ResponseWriter, r *http.Request) {
	var req wire.VersionCheckRequest
	if err := decode(r, &req, false); err != nil {
		h.writeError(w, r, err, "")
		return
	}
	if strings.TrimSpace(req.CurrentVersion) == "" {
		h.writeError(w, r, errs.Validation(errs.CodeMissingField, "currentVersion is required", nil), "")
		return
	}
	writeOK(w, http.StatusOK, "", convert.ToWireVersion(h.svc.Auth.CheckVersion(req.CurrentVersion, req.Platform)))
}
