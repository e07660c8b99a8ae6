package httpapi

import (
	"context"
	"testing"

	"github.com/and161185/fieldsync/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestWithCaller_And_CallerFromCtx(t *testing.T) {
	t.Parallel()

	if c, ok := CallerFromCtx(context.Background()); ok || c.UserID != uuid.Nil {
		t.Fatalf("expected no caller in empty ctx")
	}

	want := model.Caller{UserID: uuid.Must(uuid.NewV4()), Role: model.RoleFieldAgent, DeviceID: "dev-1"}
	ctx := WithCaller(context.Background(), want)

	got, ok := CallerFromCtx(ctx)
	if !ok {
		t.Fatalf("expected caller in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %+v, want %+v", got, want)
	}

	bad := context.WithValue(context.Background(), callerKey, "not-a-caller")
	if c, ok := CallerFromCtx(bad); ok || c.UserID != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	if RequestID(context.Background()) != "" {
		t.Fatalf("expected empty request id")
	}
	if got := RequestID(WithRequestID(context.Background(), "rid")); got != "rid" {
		t.Fatalf("got %q", got)
	}
}
