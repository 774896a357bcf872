package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/twnoc/quizgate/internal/localstore"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuard(t *testing.T) (*Guard, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	guard := NewGuard(localstore.NewMemory(), GuardConfig{}, clock.Now)
	return guard, clock
}

func failN(t *testing.T, g *Guard, n int) bool {
	t.Helper()
	var locked bool
	for i := 0; i < n; i++ {
		var err error
		locked, err = g.RecordFailure(context.Background())
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	return locked
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	guard, clock := newTestGuard(t)

	if locked := failN(t, guard, 4); locked {
		t.Fatal("should not lock before threshold")
	}
	if locked := failN(t, guard, 1); !locked {
		t.Fatal("fifth failure must trip lockout")
	}

	status, err := guard.IsBlocked(ctx)
	if err != nil {
		t.Fatalf("IsBlocked failed: %v", err)
	}
	if !status.Blocked || status.Remaining <= 0 {
		t.Fatalf("expected active lockout, got %+v", status)
	}

	clock.advance(15*time.Minute + time.Second)
	status, err = guard.IsBlocked(ctx)
	if err != nil {
		t.Fatalf("IsBlocked failed: %v", err)
	}
	if status.Blocked {
		t.Fatal("lockout must clear after duration elapses")
	}

	// Clearing is a side effect: the counter must be gone too.
	count, _ := guard.Attempts(ctx)
	if count != 0 {
		t.Fatalf("expected cleared counter, got %d", count)
	}
}

func TestWindowResetsCounter(t *testing.T) {
	ctx := context.Background()
	guard, clock := newTestGuard(t)

	failN(t, guard, 3)
	clock.advance(time.Hour + time.Minute)
	failN(t, guard, 1)

	count, err := guard.Attempts(ctx)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count reset to 1 outside window, got %d", count)
	}
}

func TestRecordSuccessClears(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)

	failN(t, guard, 4)
	if err := guard.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess failed: %v", err)
	}

	count, _ := guard.Attempts(ctx)
	if count != 0 {
		t.Fatalf("expected cleared record, got count %d", count)
	}
}

func TestCaptchaBeforeLockout(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)

	failN(t, guard, 3)

	captcha, err := guard.RequiresCaptcha(ctx)
	if err != nil {
		t.Fatalf("RequiresCaptcha failed: %v", err)
	}
	status, _ := guard.IsBlocked(ctx)
	if !captcha || status.Blocked {
		t.Fatalf("captcha must precede lockout: captcha=%v blocked=%v", captcha, status.Blocked)
	}
}

func TestExponentialBackoff(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{1, 0},
		{2, 0},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{8, 30 * time.Second}, // capped
	}

	for _, tc := range cases {
		g, _ := newTestGuard(t)
		failN(t, g, tc.failures)
		delay, err := g.NextDelay(ctx)
		if err != nil {
			t.Fatalf("NextDelay failed: %v", err)
		}
		if delay != tc.want {
			t.Fatalf("after %d failures expected delay %v, got %v", tc.failures, tc.want, delay)
		}
	}
}

func TestCorruptCounterResetsGuard(t *testing.T) {
	ctx := context.Background()
	store := localstore.NewMemory()
	guard := NewGuard(store, GuardConfig{}, nil)

	_ = store.Set(ctx, "qg_login_attempts", "{not json")

	count, err := guard.Attempts(ctx)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("corrupt record must read as empty, got %d", count)
	}
}
