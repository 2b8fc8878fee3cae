package circuit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg *Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.now
	return cb, clock
}

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{Closed: "closed", Open: "open", HalfOpen: "half_open", CircuitState(9): "unknown"}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %s, want %s", got, want)
		}
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(&Config{FailureThreshold: 2})
	if cb.cfg.FailureThreshold != 2 || cb.cfg.RecoveryTimeout != 30*time.Second || cb.cfg.Name != "upstream" {
		t.Fatalf("cfg = %+v", cb.cfg)
	}
	if cb.State() != Closed {
		t.Fatalf("initial state = %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if cb.State() != Open {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) || called {
		t.Fatalf("open breaker must reject without calling fn: err=%v called=%v", err, called)
	}
	if openErr.RetryAfter != 30*time.Second {
		t.Fatalf("RetryAfter = %v", openErr.RetryAfter)
	}
	if cb.Stats().Rejected != 1 {
		t.Fatalf("stats = %+v", cb.Stats())
	}
}

func TestCircuitBreaker_FailuresOutsideWindowDoNotCount(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 2, FailureWindow: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(2 * time.Minute)
	_ = cb.Execute(ctx, fail)
	if cb.State() != Closed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errValidation := errors.New("validation")
	cb, _ := newTestBreaker(&Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errValidation) },
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return errValidation })
	if cb.State() != Closed {
		t.Fatal("filtered errors must not trip the breaker")
	}
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != Open {
		t.Fatal("network style errors must trip the breaker")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 10 * time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(10 * time.Second)
	if cb.State() != HalfOpen {
		t.Fatalf("state = %s, want half_open", cb.State())
	}
	_ = cb.Execute(ctx, succeed)
	if cb.State() != HalfOpen {
		t.Fatalf("one success must not close yet")
	}
	_ = cb.Execute(ctx, succeed)
	if cb.State() != Closed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 1, RecoveryTimeout: 5 * time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(5 * time.Second)
	_ = cb.Execute(ctx, fail)
	if cb.State() != Open {
		t.Fatalf("state = %s, want open", cb.State())
	}
	clock.advance(time.Second)
	if got := cb.Stats().RetryAfter; got != "4s" {
		t.Fatalf("RetryAfter = %s", got)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 1})
	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	if cb.State() != Closed {
		t.Fatalf("state = %s after reset", cb.State())
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(&Config{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(context.Background(), fail)
				return
			}
			_ = cb.Execute(context.Background(), succeed)
		}(i)
	}
	wg.Wait()
	if s := cb.Stats(); s.Requests != 50 || s.Failures != 25 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(&Config{FailureThreshold: 2})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if cb.State() != Closed {
		t.Fatalf("state = %s, cancelled calls must not trip the breaker", cb.State())
	}
	if s := cb.Stats(); s.Failures != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestCircuitBreaker_HalfOpenSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 5 * time.Second})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.advance(5 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) || called {
		t.Fatalf("second half-open call must be rejected: err=%v called=%v", err, called)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if cb.State() != Closed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancelledProbeFreesSlot(t *testing.T) {
	cb, clock := newTestBreaker(&Config{FailureThreshold: 1, SuccessThreshold: 1, RecoveryTimeout: 5 * time.Second})
	_ = cb.Execute(context.Background(), fail)
	clock.advance(5 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if cb.State() != HalfOpen {
		t.Fatalf("state = %s, want half_open", cb.State())
	}
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("next probe err = %v", err)
	}
	if cb.State() != Closed {
		t.Fatalf("state = %s, want closed", cb.State())
	}
}
