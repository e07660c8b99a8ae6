package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{
		ID:       uuid.Must(uuid.NewV4()),
		Username: "agent1",
		Name:     "Agent One",
		Email:    "a1@example.com",
		Role:     model.RoleFieldAgent,
		PwdHash:  []byte("h"),
		SaltAuth: []byte("s"),
		IsActive: true,
	}

	mock.ExpectExec(`INSERT INTO users \(id, username, name, email, role, pwd_hash, salt_auth, is_active\)`).
		WithArgs(u.ID, u.Username, u.Name, u.Email, "FIELD_AGENT", u.PwdHash, u.SaltAuth, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Username, u.Name, u.Email, "FIELD_AGENT", u.PwdHash, u.SaltAuth, true).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, username, name, email, role, pwd_hash, salt_auth, is_active, created_at FROM users WHERE username=\$1`).
		WithArgs("admin").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "name", "email", "role", "pwd_hash", "salt_auth", "is_active", "created_at"}).
			AddRow(id, "admin", "Admin", "admin@example.com", "ADMIN", []byte("h"), []byte("s"), true, now))
	u, err := r.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, model.RoleAdmin, u.Role)
	require.True(t, u.IsActive)

	mock.ExpectQuery(`FROM users WHERE username=\$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByUsername(ctx, "ghost")
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM users WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(errors.New("conn reset"))
	_, err = r.GetByID(ctx, id)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestTokenRepo_SaveGetDelete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	exp := time.Now().Add(time.Hour).UTC()
	tok := &model.RefreshToken{TokenHash: []byte("hash"), UserID: uid, DeviceID: "dev-1", ExpiresAt: exp}

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(tok.TokenHash, uid, "dev-1", exp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Save(ctx, tok))

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_hash=\$1`).
		WithArgs([]byte("nope")).
		WillReturnError(pgx.ErrNoRows)
	_, err := r.Get(ctx, []byte("nope"))
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE user_id=\$1 AND device_id=\$2`).
		WithArgs(uid, "dev-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	n, err := r.DeleteForDevice(ctx, uid, "dev-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepo_TouchAndSetActive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeviceRepo(db)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE devices SET last_active_at=\$3 WHERE user_id=\$1 AND device_id=\$2`).
		WithArgs(uid, "dev-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Touch(ctx, uid, "dev-1", at))

	mock.ExpectExec(`UPDATE devices SET last_active_at`).
		WithArgs(uid, "dev-x", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Touch(ctx, uid, "dev-x", at), errs.ErrNotFound)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`UPDATE devices SET is_active=\$2`).
		WithArgs(id, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetActive(ctx, id, false))

	mock.ExpectQuery(`FROM devices d WHERE d.user_id=\$1 AND d.device_id=\$2`).
		WithArgs(uid, "dev-y").
		WillReturnError(pgx.ErrNoRows)
	_, err := r.Get(ctx, uid, "dev-y")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func testCase() *model.Case {
	now := time.Now().UTC()
	return &model.Case{
		ID:        uuid.Must(uuid.NewV4()),
		Title:     "Residence check",
		Status:    model.CaseStatusAssigned,
		Priority:  model.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// anyArgs matches n bind parameters; callers pin the ones a test is about.
func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func caseInsertArgs(c *model.Case) []any {
	a := anyArgs(25)
	a[0], a[1] = c.ID, c.Title
	a[12], a[13] = string(c.Status), string(c.Priority)
	a[23] = c.UpdatedAt
	return a
}

func caseUpdateArgs(c *model.Case, prev time.Time) []any {
	a := anyArgs(24)
	a[0], a[1], a[2] = c.ID, prev, c.Title
	a[13], a[14] = string(c.Status), string(c.Priority)
	a[22] = c.UpdatedAt
	return a
}

func TestCaseRepo_Create_InsertIfAbsent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCaseRepo(db)
	ctx := context.Background()
	c := testCase()

	mock.ExpectExec(`INSERT INTO cases .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(caseInsertArgs(c)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	inserted, err := r.Create(ctx, c)
	require.NoError(t, err)
	require.True(t, inserted)

	mock.ExpectExec(`INSERT INTO cases .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(caseInsertArgs(c)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	inserted, err = r.Create(ctx, c)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCaseRepo_Update_CompareAndSwap(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewCaseRepo(db)
	ctx := context.Background()
	c := testCase()
	prev := c.UpdatedAt.Add(-time.Minute)

	mock.ExpectExec(`UPDATE cases SET .* WHERE id=\$1 AND updated_at=\$2`).
		WithArgs(caseUpdateArgs(c, prev)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(ctx, c, prev))

	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(caseUpdateArgs(c, prev)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM cases WHERE id=\$1\)`).
		WithArgs(c.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	require.ErrorIs(t, r.Update(ctx, c, prev), errs.ErrVersionConflict)

	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(caseUpdateArgs(c, prev)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(c.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	require.ErrorIs(t, r.Update(ctx, c, prev), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerificationRepo_Complete_Tx(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVerificationRepo(db)
	ctx := context.Background()
	c := testCase()
	prev := c.UpdatedAt.Add(-time.Minute)
	rep := &model.VerificationReport{
		ID: uuid.Must(uuid.NewV4()), CaseID: c.ID, FormType: model.FormResidence,
		SubmittedBy: uuid.Must(uuid.NewV4()), PhotoCount: 5, SubmittedAt: c.UpdatedAt,
	}

	reportArgs := anyArgs(10)
	reportArgs[0], reportArgs[1], reportArgs[2], reportArgs[3] = rep.ID, c.ID, "RESIDENCE", rep.SubmittedBy
	reportArgs[5] = 5

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(caseUpdateArgs(c, prev)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO verification_reports`).
		WithArgs(reportArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Complete(ctx, c, prev, rep))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE cases SET`).
		WithArgs(caseUpdateArgs(c, prev)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(c.ID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()
	require.ErrorIs(t, r.Complete(ctx, c, prev, rep), errs.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachmentAndLocationRepos(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	ctx := context.Background()
	ar := NewAttachmentRepo(db)
	lr := NewLocationRepo(db)

	got, err := ar.ListByCases(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, got)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`DELETE FROM attachments WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, ar.Delete(ctx, id), errs.ErrNotFound)

	att := &model.Attachment{ID: id, CaseID: uuid.Must(uuid.NewV4()), Filename: "a.jpg"}
	attArgs := anyArgs(12)
	attArgs[0], attArgs[1], attArgs[2] = att.ID, att.CaseID, "a.jpg"
	mock.ExpectExec(`INSERT INTO attachments .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(attArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	inserted, err := ar.Create(ctx, att)
	require.NoError(t, err)
	require.False(t, inserted)

	pt := &model.LocationPoint{ID: id, UserID: uuid.Must(uuid.NewV4()), Latitude: 12.9, Longitude: 77.6, RecordedAt: time.Now().UTC()}
	locArgs := anyArgs(8)
	locArgs[0], locArgs[1], locArgs[3], locArgs[4], locArgs[7] = pt.ID, pt.UserID, 12.9, 77.6, pt.RecordedAt
	mock.ExpectExec(`INSERT INTO locations .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(locArgs...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	inserted, err = lr.Create(ctx, pt)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Insert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuditRepo(db)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("LOGIN_FAILED", nil, "user", "agent1", []byte(`{"reason":"bad password"}`), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	err := r.Insert(context.Background(), model.AuditEvent{
		Action: model.AuditLoginFailed, TargetType: "user", TargetID: "agent1",
		Metadata: map[string]string{"reason": "bad password"}, At: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
