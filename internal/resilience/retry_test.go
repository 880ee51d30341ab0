package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps test sleeps negligible.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Microsecond,
		MaxDelay:     time.Millisecond,
		Base:         2,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastRetry(3), "op", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastRetry(3), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	t.Parallel()
	fatal := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastRetry(3), "op", func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want fatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-retryable)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()
	transient := errors.New("still down")
	calls := 0
	err := Do(context.Background(), fastRetry(3), "op", func(context.Context) error {
		calls++
		return Retryable(transient)
	})
	if !errors.Is(err, transient) {
		t.Fatalf("err = %v, want wrapped transient", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoInvokesOnRetryHook(t *testing.T) {
	t.Parallel()
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(name string, attempt int) {
		if name != "llm.complete" {
			t.Errorf("name = %q", name)
		}
		attempts = append(attempts, attempt)
	}

	err := Do(context.Background(), cfg, "llm.complete", func(context.Context) error {
		return Retryable(errors.New("busy"))
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	// Fires once per re-tried attempt; the final failure is not a retry.
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("hook attempts = %v, want [1 2]", attempts)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Base: 2}
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, cfg, "op", func(context.Context) error {
			calls++
			return Retryable(errors.New("transient"))
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffDelayGrowthAndCap(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Base: 2}.withDefaults()

	wants := []time.Duration{
		time.Second,      // after attempt 1
		2 * time.Second,  // after attempt 2
		4 * time.Second,  // after attempt 3
		8 * time.Second,  // after attempt 4
		10 * time.Second, // capped
		10 * time.Second,
	}
	for i, want := range wants {
		if got := backoffDelay(cfg, i+1); got != want {
			t.Errorf("backoffDelay(attempt %d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Base: 2, Jitter: true}.withDefaults()
	for i := 0; i < 200; i++ {
		d := backoffDelay(cfg, 2)
		if d < time.Second || d >= 3*time.Second {
			t.Fatalf("jittered delay %v outside [1s, 3s)", d)
		}
	}
}

func TestRetryableMarking(t *testing.T) {
	t.Parallel()
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
	base := errors.New("timeout")
	marked := Retryable(base)
	if !IsRetryable(marked) {
		t.Error("IsRetryable(marked) = false")
	}
	if !errors.Is(marked, base) {
		t.Error("marked error should unwrap to the original")
	}
	wrapped := errors.Join(errors.New("context"), marked)
	if !IsRetryable(wrapped) {
		t.Error("retryable mark should survive wrapping")
	}
	if IsRetryable(base) {
		t.Error("unmarked error reported retryable")
	}
}
