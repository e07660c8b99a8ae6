package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("FIELDSYNC_AUTH_JWT_SECRET", secret)
	t.Setenv("FIELDSYNC_STORAGE_DRIVER", "memory")
	t.Setenv("FIELDSYNC_SYNC_MAX_BATCH", "50")
	t.Setenv("FIELDSYNC_DEVICES_APPROVAL_ROLES", "FIELD_AGENT,BACKEND_USER")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, "memory", cfg.Storage.Driver)
	require.Equal(t, 50, cfg.Sync.MaxBatch)
	require.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL)
	require.Equal(t, 720*time.Hour, cfg.Sync.DefaultLookback)
	require.Equal(t, 5*time.Minute, cfg.Sync.OnlineWindow)
	require.Equal(t, 3, cfg.Devices.MaxPerUser)
	require.Equal(t, []string{"FIELD_AGENT", "BACKEND_USER"}, cfg.Devices.ApprovalRoles)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	body := `
storage:
  driver: memory
auth:
  jwt_secret: "` + secret + `"
  access_ttl: 1h
app:
  latest_version: 2.1.0
  download_url_android: https://play.example/app
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	require.Equal(t, "2.1.0", cfg.App.LatestVersion)
	require.Equal(t, map[string]string{"ANDROID": "https://play.example/app"}, cfg.App.DownloadURLs())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := Config{
		Storage: Storage{Driver: "postgres", DSN: "postgres://x"},
		Auth:    Auth{JWTSecret: secret, AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Sync:    Sync{DefaultLimit: 100, MaxLimit: 500, MaxBatch: 1000},
		Devices: Devices{MaxPerUser: 3},
	}
	require.NoError(t, ok.Validate())

	cases := map[string]func(c *Config){
		"short secret":     func(c *Config) { c.Auth.JWTSecret = "short" },
		"unknown driver":   func(c *Config) { c.Storage.Driver = "sqlite" },
		"missing dsn":      func(c *Config) { c.Storage.DSN = "" },
		"refresh < access": func(c *Config) { c.Auth.RefreshTTL = time.Minute },
		"limit above max":  func(c *Config) { c.Sync.DefaultLimit = 1000 },
		"zero batch":       func(c *Config) { c.Sync.MaxBatch = 0 },
		"zero quota":       func(c *Config) { c.Devices.MaxPerUser = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c := ok
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
