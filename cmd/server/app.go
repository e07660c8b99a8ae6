package main

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	"github.com/and161185/fieldsync/internal/config"
	"github.com/and161185/fieldsync/internal/limiter"
	"github.com/and161185/fieldsync/internal/migrate"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/and161185/fieldsync/internal/repository/memory"
	"github.com/and161185/fieldsync/internal/repository/postgres"
	"github.com/and161185/fieldsync/internal/repository/redisstore"
	httpapi "github.com/and161185/fieldsync/internal/server/http"
	"github.com/and161185/fieldsync/internal/service"
	"github.com/and161185/fieldsync/internal/token"
	"github.com/and161185/fieldsync/internal/version"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired storage and services of one process.
type app struct {
	store    repository.Store
	services httpapi.Services
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// buildApp opens storage per cfg and wires every service.
func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	lcfg := limiter.Config{
		Window:      cfg.Auth.LoginWindow,
		MaxFailures: cfg.Auth.LoginMaxFailures,
		BlockFor:    cfg.Auth.LoginBlockFor,
	}

	var (
		lim    limiter.Limiter
		drafts repository.AutoSaveRepository
	)
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Storage.Migrate {
			if err := migrate.Run(ctx, cfg.Storage.DSN, migrate.Up); err != nil {
				return nil, fmt.Errorf("migrate up: %w", err)
			}
		}
		db, err := postgres.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.store = db.Store()
		a.closers = append(a.closers, a.store.Close)
		lim = limiter.NewPG(db.Pool, lcfg)
	default:
		mem := memory.New()
		a.store = mem.Store()
		lim = limiter.NewMemory(lcfg)
		drafts = memory.NewAutoSaveRepo(mem)
		log.Warn("using in-memory storage; data is lost on restart")
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		drafts = redisstore.NewAutoSaveRepo(rdb, cfg.AutoSave.TTL)
	} else if drafts == nil {
		log.Warn("redis.addr not set; auto-save drafts kept in process memory")
		drafts = memory.NewAutoSaveRepo(memory.New())
	}

	notifier := audit.NewSink(a.store.Audit, log)
	a.closers = append(a.closers, notifier.Close)

	roles := make([]model.Role, 0, len(cfg.Devices.ApprovalRoles))
	for _, s := range cfg.Devices.ApprovalRoles {
		r, ok := model.ParseRole(s)
		if !ok {
			a.Close()
			return nil, fmt.Errorf("devices.approval_roles: unknown role %q", s)
		}
		roles = append(roles, r)
	}
	devices := service.NewDeviceService(a.store.Devices, a.store.Tokens, notifier, service.DeviceConfig{
		MaxPerUser:    cfg.Devices.MaxPerUser,
		AuthCodeTTL:   cfg.Devices.AuthCodeTTL,
		ApprovalRoles: roles,
	})

	issuer := token.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	gate := version.Gate{
		Latest:       cfg.App.LatestVersion,
		MinSupported: cfg.App.MinSupportedVersion,
		ForceBelow:   cfg.App.ForceUpdateVersion,
		DownloadURLs: cfg.App.DownloadURLs(),
	}
	auth := service.NewAuthService(a.store.Users, a.store.Tokens, devices, issuer, lim, gate, notifier, log)

	changes := service.NewChangeLog(a.store.Cases, service.ChangeLogConfig{
		DefaultLookback: cfg.Sync.DefaultLookback,
		DefaultLimit:    cfg.Sync.DefaultLimit,
		MaxLimit:        cfg.Sync.MaxLimit,
	})
	detector := service.NewConflictDetector(a.store.Cases, service.TimestampPolicy{})
	sync := service.NewSyncService(detector, changes, a.store.Cases, a.store.Attachments, a.store.Locations,
		devices, notifier, log, service.SyncConfig{MaxBatch: cfg.Sync.MaxBatch, OnlineWindow: cfg.Sync.OnlineWindow})
	forms := service.NewFormService(a.store.Cases, drafts, a.store.Verifications, notifier, log)

	a.services = httpapi.Services{Auth: auth, Devices: devices, Sync: sync, Forms: forms}
	return a, nil
}
