package limiter

import (
	"context"
	"testing"
	"time"
)

func TestMemory_BlocksAfterMaxFailures(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(Config{Window: 15 * time.Minute, MaxFailures: 3, BlockFor: 10 * time.Minute})
	m.now = func() time.Time { return now }
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, "agent", ip)
		if err != nil || blocked {
			t.Fatalf("failure %d: blocked=%v err=%v", i, blocked, err)
		}
	}
	blocked, dur, err := m.Failure(ctx, "agent", ip)
	if err != nil || !blocked || dur != 10*time.Minute {
		t.Fatalf("third failure: blocked=%v dur=%v err=%v", blocked, dur, err)
	}

	ok, retry, _ := m.Allow(ctx, "agent", ip)
	if ok || retry != 10*time.Minute {
		t.Fatalf("expected block, ok=%v retry=%v", ok, retry)
	}
	if ok, _, _ := m.Allow(ctx, "agent", HashIP("10.0.0.2")); !ok {
		t.Fatalf("other address must not be blocked")
	}

	now = now.Add(11 * time.Minute)
	if ok, _, _ := m.Allow(ctx, "agent", ip); !ok {
		t.Fatalf("block should expire")
	}
}

func TestMemory_WindowResetsAndSuccessClears(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory(Config{Window: time.Minute, MaxFailures: 2, BlockFor: time.Hour})
	m.now = func() time.Time { return now }
	ctx := context.Background()
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, "agent", ip)
	now = now.Add(2 * time.Minute)
	if blocked, _, _ := m.Failure(ctx, "agent", ip); blocked {
		t.Fatalf("stale failure must not count toward the threshold")
	}

	if err := m.Success(ctx, "agent", ip); err != nil {
		t.Fatalf("success: %v", err)
	}
	if blocked, _, _ := m.Failure(ctx, "agent", ip); blocked {
		t.Fatalf("success must reset the counter")
	}
}
