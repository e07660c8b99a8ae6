// Package httpapi exposes the mobile sync/auth API over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/and161185/fieldsync/internal/convert"
	"github.com/and161185/fieldsync/internal/service"
	"github.com/and161185/fieldsync/internal/wire"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// HeaderDeviceID selects the device in /sync/status.
const HeaderDeviceID = "X-Device-ID"

// Services are the use cases behind the API.
type Services struct {
	Auth    service.AuthService
	Devices service.DeviceService
	Sync    service.SyncService
	Forms   service.FormService
}

// Options tune the router.
type Options struct {
	CORSOrigins  []string
	FilesBaseURL string
	Version      string
	// Ready probes backing storage; nil means always ready.
	Ready func(ctx context.Context) error
}

// Handlers wires services into HTTP handlers.
type Handlers struct {
	svc   Services
	files convert.Files
	opt   Options
	log   *zap.Logger
	now   func() time.Time
}

// NewRouter builds the full HTTP surface.
func NewRouter(svc Services, opt Options, log *zap.Logger) http.Handler {
	h := &Handlers{
		svc:   svc,
		files: convert.Files{BaseURL: opt.FilesBaseURL},
		opt:   opt,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	r.Use(Recoverer(log))
	if len(opt.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opt.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", HeaderDeviceID, HeaderRequestID},
			ExposedHeaders: []string{HeaderRequestID},
			MaxAge:         300,
		}))
	}

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.Post("/version-check", h.VersionCheck)
		r.With(h.Authn).Post("/logout", h.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.Authn)

		r.Route("/devices", func(r chi.Router) {
			r.Use(AdminOnly)
			r.Get("/pending", h.ListPendingDevices)
			r.Post("/{deviceId}/approve", h.ApproveDevice)
			r.Post("/{deviceId}/reject", h.RejectDevice)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.ApprovedDevice)
			r.Post("/sync/upload", h.SyncUpload)
			r.Get("/sync/download", h.SyncDownload)
			r.Get("/sync/status", h.SyncStatus)

			r.Route("/cases/{caseId}", func(r chi.Router) {
				r.Post("/auto-save", h.SaveDraft)
				r.Get("/auto-save/{formType}", h.LoadDraft)
				r.Delete("/auto-save/{formType}", h.ClearDraft)
				r.Post("/verification/residence", h.SubmitResidence)
				r.Post("/verification/office", h.SubmitOffice)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}

// Live always answers ok while the process runs.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.Health{Status: "ok", Version: h.opt.Version})
}

// Ready reports whether storage answers.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.opt.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opt.Ready(ctx); err != nil {
			h.log.Warn("readiness probe failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, wire.Health{Status: "degraded", Version: h.opt.Version})
			return
		}
	}
	writeJSON(w, http.StatusOK, wire.Health{Status: "ready", Version: h.opt.Version})
}
