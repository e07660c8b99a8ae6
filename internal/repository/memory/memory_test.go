package memory

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestUsers_UniqueUsername(t *testing.T) {
	t.Parallel()
	st := New().Store()
	ctx := context.Background()

	u := &model.User{ID: uuid.Must(uuid.NewV4()), Username: "alice", Role: model.RoleAdmin}
	require.NoError(t, st.Users.Create(ctx, u))
	require.ErrorIs(t, st.Users.Create(ctx, &model.User{ID: uuid.Must(uuid.NewV4()), Username: "alice"}), errs.ErrAlreadyExists)

	got, err := st.Users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.False(t, got.CreatedAt.IsZero())

	_, err = st.Users.GetByID(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCases_CASAndInsertIfAbsent(t *testing.T) {
	t.Parallel()
	db := New()
	st := db.Store()
	ctx := context.Background()
	agent := uuid.Must(uuid.NewV4())
	client := model.ClientRef{ID: uuid.Must(uuid.NewV4()), Name: "Bank", Code: "BNK"}
	db.PutClient(client)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &model.Case{ID: uuid.Must(uuid.NewV4()), Title: "t", AssignedTo: agent, Client: model.ClientRef{ID: client.ID}, UpdatedAt: at}
	ok, err := st.Cases.Create(ctx, c)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Cases.Create(ctx, &model.Case{ID: c.ID, Title: "other"})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := st.Cases.Get(ctx, c.ID, agent)
	require.NoError(t, err)
	require.Equal(t, "t", got.Title)
	require.Equal(t, "BNK", got.Client.Code)
	_, err = st.Cases.Get(ctx, c.ID, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)

	next := *got
	next.Title = "t2"
	next.UpdatedAt = at.Add(time.Second)
	require.NoError(t, st.Cases.Update(ctx, &next, at))
	require.ErrorIs(t, st.Cases.Update(ctx, &next, at), errs.ErrVersionConflict)

	missing := model.Case{ID: uuid.Must(uuid.NewV4())}
	require.ErrorIs(t, st.Cases.Update(ctx, &missing, at), errs.ErrNotFound)
}

func TestCases_ListUpdatedSinceOrdersAndLimits(t *testing.T) {
	t.Parallel()
	db := New()
	st := db.Store()
	ctx := context.Background()
	agent := uuid.Must(uuid.NewV4())
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 3; i >= 1; i-- {
		db.PutCase(model.Case{ID: uuid.Must(uuid.NewV4()), AssignedTo: agent, UpdatedAt: at.Add(time.Duration(i) * time.Minute)})
	}
	db.PutCase(model.Case{ID: uuid.Must(uuid.NewV4()), UpdatedAt: at.Add(time.Hour)})

	got, err := st.Cases.ListUpdatedSince(ctx, model.CaseFilter{Since: at.Add(time.Minute), AssignedTo: agent})
	require.NoError(t, err)
	require.Len(t, got, 2, "since is exclusive")
	require.True(t, got[0].UpdatedAt.Before(got[1].UpdatedAt))

	got, err = st.Cases.ListUpdatedSince(ctx, model.CaseFilter{Since: at, Limit: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestDevices_Lifecycle(t *testing.T) {
	t.Parallel()
	db := New()
	st := db.Store()
	ctx := context.Background()
	user := &model.User{ID: uuid.Must(uuid.NewV4()), Username: "agent", Name: "Agent", Email: "a@example.com"}
	require.NoError(t, st.Users.Create(ctx, user))

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := at.Add(time.Hour)
	d := &model.Device{UserID: user.ID, DeviceID: "dev", AuthCode: "ABC123", AuthCodeExpiresAt: &exp, IsActive: true, CreatedAt: at, LastActiveAt: at}
	require.NoError(t, st.Devices.Create(ctx, d))
	require.NotEqual(t, uuid.Nil, d.ID)
	require.ErrorIs(t, st.Devices.Create(ctx, &model.Device{UserID: user.ID, DeviceID: "dev"}), errs.ErrAlreadyExists)

	pending, err := st.Devices.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a@example.com", pending[0].UserEmail)

	require.NoError(t, st.Devices.Touch(ctx, user.ID, "dev", at.Add(time.Minute)))
	require.ErrorIs(t, st.Devices.Touch(ctx, user.ID, "nope", at), errs.ErrNotFound)
	got, err := st.Devices.GetByDeviceID(ctx, "dev")
	require.NoError(t, err)
	require.True(t, got.LastActiveAt.Equal(at.Add(time.Minute)))

	require.NoError(t, st.Devices.SetActive(ctx, d.ID, false))
	active, err := st.Devices.ListActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestTokens_DeleteForDevice(t *testing.T) {
	t.Parallel()
	st := New().Store()
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())

	require.NoError(t, st.Tokens.Save(ctx, &model.RefreshToken{TokenHash: []byte{1}, UserID: uid, DeviceID: "a"}))
	require.NoError(t, st.Tokens.Save(ctx, &model.RefreshToken{TokenHash: []byte{2}, UserID: uid, DeviceID: "a"}))
	require.NoError(t, st.Tokens.Save(ctx, &model.RefreshToken{TokenHash: []byte{3}, UserID: uid, DeviceID: "b"}))

	n, err := st.Tokens.DeleteForDevice(ctx, uid, "a")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	_, err = st.Tokens.Get(ctx, []byte{1})
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = st.Tokens.Get(ctx, []byte{3})
	require.NoError(t, err)
}

func TestVerification_CompleteIsAtomic(t *testing.T) {
	t.Parallel()
	db := New()
	st := db.Store()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := model.Case{ID: uuid.Must(uuid.NewV4()), Status: model.CaseStatusAssigned, UpdatedAt: at}
	db.PutCase(c)

	done := c
	done.Status = model.CaseStatusCompleted
	done.UpdatedAt = at.Add(time.Second)
	rep := &model.VerificationReport{ID: uuid.Must(uuid.NewV4()), CaseID: c.ID}

	require.ErrorIs(t, st.Verifications.Complete(ctx, &done, at.Add(-time.Second), rep), errs.ErrVersionConflict)
	require.Empty(t, db.Reports())

	require.NoError(t, st.Verifications.Complete(ctx, &done, at, rep))
	require.Len(t, db.Reports(), 1)
}

func TestAutoSave_VersionsAndDelete(t *testing.T) {
	t.Parallel()
	r := NewAutoSaveRepo(New())
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	for want := int64(1); want <= 2; want++ {
		v, err := r.Save(ctx, &model.AutoSaveDraft{CaseID: id, FormType: model.FormOffice, FormData: []byte(`{}`)})
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
	_, err := r.Get(ctx, id, model.FormResidence)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, r.Delete(ctx, id, model.FormOffice))
	require.NoError(t, r.Delete(ctx, id, model.FormOffice))
	_, err = r.Get(ctx, id, model.FormOffice)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAttachments_ListByCases(t *testing.T) {
	t.Parallel()
	st := New().Store()
	ctx := context.Background()
	c1, c2 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, cid := range []uuid.UUID{c1, c1, c2} {
		ok, err := st.Attachments.Create(ctx, &model.Attachment{ID: uuid.Must(uuid.NewV4()), CaseID: cid, UploadedAt: at.Add(time.Duration(-i) * time.Minute)})
		require.NoError(t, err)
		require.True(t, ok)
	}
	got, err := st.Attachments.ListByCases(ctx, []uuid.UUID{c1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[c1], 2)
	require.True(t, got[c1][0].UploadedAt.Before(got[c1][1].UploadedAt))

	require.ErrorIs(t, st.Attachments.Delete(ctx, uuid.Must(uuid.NewV4())), errs.ErrNotFound)
}
