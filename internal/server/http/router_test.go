package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/fieldsync/internal/audit"
	pkgcrypto "github.com/and161185/fieldsync/internal/crypto"
	"github.com/and161185/fieldsync/internal/limiter"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository/memory"
	"github.com/and161185/fieldsync/internal/service"
	"github.com/and161185/fieldsync/internal/token"
	"github.com/and161185/fieldsync/internal/version"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	t   *testing.T
	db  *memory.DB
	srv *httptest.Server
	svc Services
}

func newEnv(t *testing.T, ready func(context.Context) error) *env {
	t.Helper()
	db := memory.New()
	st := db.Store()
	log := zap.NewNop()
	n := audit.Nop{}

	devs := service.NewDeviceService(st.Devices, st.Tokens, n, service.DeviceConfig{})
	iss := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour, 24*time.Hour)
	lim := limiter.NewMemory(limiter.Config{Window: time.Minute, MaxFailures: 5, BlockFor: time.Minute})
	gate := version.Gate{Latest: "2.0.0", MinSupported: "1.5.0", ForceBelow: "1.0.0"}
	auth := service.NewAuthService(st.Users, st.Tokens, devs, iss, lim, gate, n, log)
	cl := service.NewChangeLog(st.Cases, service.ChangeLogConfig{})
	det := service.NewConflictDetector(st.Cases, nil)
	sy := service.NewSyncService(det, cl, st.Cases, st.Attachments, st.Locations, devs, n, log, service.SyncConfig{MaxBatch: 5})
	fm := service.NewFormService(st.Cases, memory.NewAutoSaveRepo(db), st.Verifications, n, log)

	svc := Services{Auth: auth, Devices: devs, Sync: sy, Forms: fm}
	srv := httptest.NewServer(NewRouter(svc, Options{FilesBaseURL: "https://files.test", Version: "test", Ready: ready}, log))
	t.Cleanup(srv.Close)
	return &env{t: t, db: db, srv: srv, svc: svc}
}

func (e *env) addUser(username string, role model.Role) *model.User {
	e.t.Helper()
	salt, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	require.NoError(e.t, err)
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: username,
		Role:     role,
		PwdHash:  pkgcrypto.HashPassword([]byte("pw"), salt),
		SaltAuth: salt,
		IsActive: true,
	}
	require.NoError(e.t, e.db.Store().Users.Create(context.Background(), u))
	return u
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (e *env) do(method, path, tok string, body any, hdr ...string) (int, envelope) {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

type loginData struct {
	AccessToken          string `json:"accessToken"`
	RefreshToken         string `json:"refreshToken"`
	DeviceRegistered     bool   `json:"deviceRegistered"`
	ForceUpdate          bool   `json:"forceUpdate"`
	DeviceAuthentication struct {
		IsApproved    bool   `json:"isApproved"`
		NeedsApproval bool   `json:"needsApproval"`
		AuthCode      string `json:"authCode"`
	} `json:"deviceAuthentication"`
}

func (e *env) login(username, deviceID string) loginData {
	e.t.Helper()
	st, env := e.do(http.MethodPost, "/auth/login", "", map[string]any{
		"username": username, "password": "pw", "deviceId": deviceID,
		"deviceInfo": map[string]any{"platform": "android", "appVersion": "2.0.0"},
	})
	require.Equal(e.t, http.StatusOK, st, env.Error.Code)
	var ld loginData
	require.NoError(e.t, json.Unmarshal(env.Data, &ld))
	return ld
}

func photos(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"attachmentId": uuid.Must(uuid.NewV4()).String(),
			"geoLocation":  map[string]any{"latitude": 12.9, "longitude": 77.6},
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	resp, err := e.srv.Client().Get(e.srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	down := newEnv(t, func(context.Context) error { return errors.New("db down") })
	resp, err = down.srv.Client().Get(down.srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)

	st, env := e.do(http.MethodGet, "/sync/download", "", nil)
	require.Equal(t, http.StatusUnauthorized, st)
	require.False(t, env.Success)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	st, env = e.do(http.MethodGet, "/sync/download", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, st)
	require.Equal(t, "INVALID_TOKEN", env.Error.Code)

	e.addUser("agent", model.RoleFieldAgent)
	ld := e.login("agent", "dev-1")
	st, env = e.do(http.MethodGet, "/devices/pending", ld.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, st)
	require.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestLogin_BadCredentialsAndValidation(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.addUser("agent", model.RoleFieldAgent)

	st, env := e.do(http.MethodPost, "/auth/login", "", map[string]any{"username": "agent", "password": "nope", "deviceId": "d"})
	require.Equal(t, http.StatusUnauthorized, st)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	st, env = e.do(http.MethodPost, "/auth/login", "", map[string]any{"username": "agent"})
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, "MISSING_REQUIRED_FIELD", env.Error.Code)

	st, env = e.do(http.MethodPost, "/auth/version-check", "", map[string]any{"currentVersion": "0.9.0", "platform": "IOS"})
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(env.Data), `"forceUpdate":true`)
}

// Device D logs in pending, gets approved, then downloads its assigned cases.
func TestDeviceApprovalThenSync(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	agent := e.addUser("agent", model.RoleFieldAgent)
	e.addUser("admin", model.RoleAdmin)

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		e.db.PutCase(model.Case{
			ID: uuid.Must(uuid.NewV4()), Title: "c", Status: model.CaseStatusAssigned,
			Priority: model.PriorityMedium, AssignedTo: agent.ID, UpdatedAt: now.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	e.db.PutCase(model.Case{ID: uuid.Must(uuid.NewV4()), Title: "other", UpdatedAt: now.Add(-time.Hour)})

	ld := e.login("agent", "dev-1")
	require.False(t, ld.DeviceRegistered)
	require.True(t, ld.DeviceAuthentication.NeedsApproval)
	require.Len(t, ld.DeviceAuthentication.AuthCode, service.AuthCodeLen)

	st, env := e.do(http.MethodGet, "/sync/download", ld.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, st)
	require.Equal(t, "DEVICE_NOT_APPROVED", env.Error.Code)

	adm := e.login("admin", "admin-pc")
	require.True(t, adm.DeviceAuthentication.IsApproved)
	st, env = e.do(http.MethodGet, "/devices/pending", adm.AccessToken, nil)
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(env.Data), `"deviceId":"dev-1"`)

	st, env = e.do(http.MethodPost, "/devices/dev-1/approve", adm.AccessToken, nil)
	require.Equal(t, http.StatusOK, st, env.Error.Code)
	require.Contains(t, string(env.Data), `"isApproved":true`)

	again := e.login("agent", "dev-1")
	require.True(t, again.DeviceRegistered)
	require.False(t, again.DeviceAuthentication.NeedsApproval)
	require.Empty(t, again.DeviceAuthentication.AuthCode)

	since := now.Add(-30 * 24 * time.Hour).Format(time.RFC3339)
	st, env = e.do(http.MethodGet, "/sync/download?lastSyncTimestamp="+since, ld.AccessToken, nil)
	require.Equal(t, http.StatusOK, st, env.Error.Code)
	var dl struct {
		Cases          []map[string]any `json:"cases"`
		DeletedCaseIDs []string         `json:"deletedCaseIds"`
		SyncTimestamp  time.Time        `json:"syncTimestamp"`
		HasMore        bool             `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &dl))
	require.Len(t, dl.Cases, 2)
	require.NotNil(t, dl.DeletedCaseIDs)
	require.False(t, dl.HasMore)
	require.Equal(t, "SYNCED", dl.Cases[0]["syncStatus"])

	// Watermark round trip yields nothing new.
	st, env = e.do(http.MethodGet, "/sync/download?lastSyncTimestamp="+dl.SyncTimestamp.Format(time.RFC3339Nano), ld.AccessToken, nil)
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(env.Data), `"cases":[]`)

	st, env = e.do(http.MethodGet, "/sync/download?limit=abc", ld.AccessToken, nil)
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, "INVALID_PAYLOAD", env.Error.Code)

	st, env = e.do(http.MethodGet, "/sync/status", ld.AccessToken, nil, HeaderDeviceID, "dev-1")
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(env.Data), `"isOnline":true`)

	st, env = e.do(http.MethodPost, "/devices/dev-1/reject", adm.AccessToken, map[string]any{"reason": ""})
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, "MISSING_REQUIRED_FIELD", env.Error.Code)
}

func TestSyncUploadAndVerification(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.addUser("boss", model.RoleBackendUser)
	c := model.Case{
		ID: uuid.Must(uuid.NewV4()), Title: "c", Status: model.CaseStatusAssigned,
		Priority: model.PriorityMedium, UpdatedAt: time.Now().UTC().Add(-time.Hour),
	}
	e.db.PutCase(c)
	ld := e.login("boss", "web-1")

	st, env := e.do(http.MethodPost, "/sync/upload", ld.AccessToken, map[string]any{})
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, "MISSING_LOCAL_CHANGES", env.Error.Code)

	tooMany := make([]map[string]any, 6)
	for i := range tooMany {
		tooMany[i] = map[string]any{"id": uuid.Must(uuid.NewV4()).String(), "action": "CREATE", "data": map[string]any{}}
	}
	st, env = e.do(http.MethodPost, "/sync/upload", ld.AccessToken, map[string]any{"localChanges": map[string]any{"locations": tooMany}})
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, "BATCH_TOO_LARGE", env.Error.Code)
	require.EqualValues(t, 6, env.Error.Details["provided"])

	up := map[string]any{"localChanges": map[string]any{"cases": []map[string]any{
		{"id": c.ID.String(), "action": "UPDATE", "data": map[string]any{"notes": "n"}, "timestamp": time.Now().UTC()},
		{"id": uuid.Must(uuid.NewV4()).String(), "action": "UPDATE", "data": map[string]any{"notes": "x"}, "timestamp": time.Now().UTC()},
		{"id": c.ID.String(), "action": "UPDATE", "data": map[string]any{"notes": "old"}, "timestamp": time.Now().UTC().Add(-24 * time.Hour)},
	}}}
	st, env = e.do(http.MethodPost, "/sync/upload", ld.AccessToken, up)
	require.Equal(t, http.StatusOK, st, env.Error.Code)
	var res struct {
		Results struct {
			ProcessedCases int              `json:"processedCases"`
			Conflicts      []map[string]any `json:"conflicts"`
			Errors         []map[string]any `json:"errors"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Equal(t, 1, res.Results.ProcessedCases)
	require.Len(t, res.Results.Errors, 1)
	require.Equal(t, "NOT_FOUND", res.Results.Errors[0]["code"])
	require.Len(t, res.Results.Conflicts, 1)
	require.Equal(t, "VERSION_CONFLICT", res.Results.Conflicts[0]["conflictType"])

	path := "/cases/" + c.ID.String()
	st, env = e.do(http.MethodPost, path+"/auto-save", ld.AccessToken, map[string]any{"formType": "RESIDENCE", "formData": map[string]any{"a": 1}})
	require.Equal(t, http.StatusOK, st, env.Error.Code)
	require.Contains(t, string(env.Data), `"version":1`)

	st, env = e.do(http.MethodGet, path+"/auto-save/residence", ld.AccessToken, nil)
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(env.Data), `"formData":{"a":1}`)

	st, env = e.do(http.MethodGet, path+"/auto-save/garage", ld.AccessToken, nil)
	require.Equal(t, http.StatusBadRequest, st)

	st, env = e.do(http.MethodPost, path+"/verification/residence", ld.AccessToken, map[string]any{"formData": map[string]any{"ok": true}, "photos": photos(4)})
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, "INSUFFICIENT_PHOTOS", env.Error.Code)
	require.EqualValues(t, 5, env.Error.Details["required"])
	require.EqualValues(t, 4, env.Error.Details["provided"])

	st, env = e.do(http.MethodPost, path+"/verification/residence", ld.AccessToken, map[string]any{"formData": map[string]any{"ok": true}, "photos": photos(5)})
	require.Equal(t, http.StatusOK, st, env.Error.Code)
	require.Contains(t, string(env.Data), `"status":"COMPLETED"`)

	st, env = e.do(http.MethodGet, path+"/auto-save/residence", ld.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, st)

	st, env = e.do(http.MethodPost, path+"/verification/residence", ld.AccessToken, map[string]any{"formData": map[string]any{"ok": true}, "photos": photos(5)})
	require.Equal(t, http.StatusConflict, st)
	require.Equal(t, "INVALID_STATE", env.Error.Code)

	st, _ = e.do(http.MethodPost, "/cases/not-a-uuid/auto-save", ld.AccessToken, map[string]any{"formType": "OFFICE"})
	require.Equal(t, http.StatusNotFound, st)
}

func TestRefreshRevokedAfterLogout(t *testing.T) {
	t.Parallel()
	e := newEnv(t, nil)
	e.addUser("boss", model.RoleAdmin)
	ld := e.login("boss", "web-1")

	st, env := e.do(http.MethodPost, "/auth/refresh", "", map[string]any{"refreshToken": ld.RefreshToken})
	require.Equal(t, http.StatusOK, st, env.Error.Code)
	require.Contains(t, string(env.Data), `"accessToken"`)

	st, _ = e.do(http.MethodPost, "/auth/logout", ld.AccessToken, map[string]any{"deviceId": "web-1"})
	require.Equal(t, http.StatusOK, st)

	st, env = e.do(http.MethodPost, "/auth/refresh", "", map[string]any{"refreshToken": ld.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, st)
	require.Equal(t, "INVALID_TOKEN", env.Error.Code)
}

type brokenSync struct{ panics bool }

var _ service.SyncService = (*brokenSync)(nil)

func (b *brokenSync) Upload(context.Context, model.Caller, service.UploadRequest) (*model.SyncUploadResult, error) {
	if b.panics {
		panic("boom")
	}
	return nil, errors.New("pq: connection refused to 10.0.0.7")
}
func (b *brokenSync) Download(context.Context, model.Caller, service.DownloadRequest) (*model.SyncDownloadResult, error) {
	return nil, errors.New("pq: connection refused to 10.0.0.7")
}
func (b *brokenSync) Status(context.Context, model.Caller, string) (*model.SyncStatus, error) {
	return nil, errors.New("boom")
}

func TestInternalErrorsHideDetails(t *testing.T) {
	t.Parallel()

	for _, panics := range []bool{false, true} {
		e := newEnv(t, nil)
		e.addUser("boss", model.RoleAdmin)
		ld := e.login("boss", "web-1")

		svc := e.svc
		svc.Sync = &brokenSync{panics: panics}
		srv := httptest.NewServer(NewRouter(svc, Options{}, zap.NewNop()))
		t.Cleanup(srv.Close)

		req, err := http.NewRequest(http.MethodPost, srv.URL+"/sync/upload", strings.NewReader(`{"localChanges":{}}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+ld.AccessToken)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		resp.Body.Close()

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, "internal error", env.Message)
		if panics {
			require.Equal(t, CodeInternalError, env.Error.Code)
		} else {
			require.Equal(t, "SYNC_UPLOAD_FAILED", env.Error.Code)
		}
	}
}
