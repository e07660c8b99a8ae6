package httpapi

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderRequestID echoes the request id to the client.
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware tags each request with a fresh id, reusing a sane client-supplied one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(rid); err != nil {
			rid = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), rid)))
	})
}

// RequestLogger writes one line per request. Bodies and headers are never logged.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
				zap.String("requestId", RequestID(r.Context())),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

// Recoverer turns a handler panic into a 500 envelope and logs the stack.
func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
						zap.String("requestId", RequestID(r.Context())),
					)
					fail(w, http.StatusInternalServerError, CodeInternalError, "internal error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

// Authn requires a valid access token and stores the caller in context.
func (h *Handlers) Authn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		c, err := h.svc.Auth.Authenticate(r.Context(), raw)
		if err != nil {
			h.writeError(w, r, errs.ErrInvalidToken, "")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), c)))
	})
}

// AdminOnly rejects callers without an administrative role.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFromCtx(r.Context())
		if !ok || !c.Role.IsAdmin() {
			fail(w, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ApprovedDevice blocks field callers whose device is not approved and active.
func (h *Handlers) ApprovedDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFromCtx(r.Context())
		if !ok {
			fail(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		if !h.svc.Devices.NeedsApproval(c.Role) {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.svc.Devices.Get(r.Context(), c.UserID, c.DeviceID)
		if errors.Is(err, errs.ErrNotFound) {
			err = errs.ErrDeviceInactive
		}
		if err == nil {
			err = deviceGate(d)
		}
		if err != nil {
			h.writeError(w, r, err, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deviceGate(d *model.Device) error {
	switch d.State() {
	case model.DeviceApproved:
		return nil
	case model.DeviceRejected:
		return errs.ErrDeviceRejected
	case model.DevicePendingApproval:
		return errs.ErrDeviceNotApproved
	default:
		return errs.ErrDeviceInactive
	}
}
