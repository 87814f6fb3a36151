package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "RentChat/tools/errs"
)

func noSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	ctx := context.Background()
	calls := 0
	op := func(context.Context) error {
		calls++
		if calls < 3 {
			return &errs.ErrNetwork
		}
		return nil
	}

	err := Retry(ctx, op, Policy{
		MaxRetries:     5,
		BaseDelay:      10 * time.Millisecond,
		MaxDelay:       time.Second,
		BackoffFactor:  2,
		RetryableKinds: []errs.Kind{errs.KindNetwork, errs.KindTimeout},
		Sleep:          noSleep(nil),
		Rand:           func() float64 { return 0 },
	})
	if err != nil {
		t.Fatalf("Retry() unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("Retry() calls = %d, want 3", calls)
	}
}

func TestRetry_NeverRetriesValidation(t *testing.T) {
	ctx := context.Background()
	calls := 0
	op := func(context.Context) error {
		calls++
		return errs.ErrWrongCode.WithDetail("otp mismatch")
	}

	err := Retry(ctx, op, Policy{
		MaxRetries:     5,
		BaseDelay:      time.Millisecond,
		RetryableKinds: []errs.Kind{errs.KindNetwork, errs.KindValidation},
		Sleep:          noSleep(nil),
	})
	if err == nil {
		t.Fatal("Retry() expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("Retry() calls = %d, want 1 (validation must not retry)", calls)
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		t.Error("Retry() validation failure must not report as exhausted")
	}
}

func TestRetry_NonRetryableKindPropagatesImmediately(t *testing.T) {
	ctx := context.Background()
	calls := 0
	op := func(context.Context) error {
		calls++
		return &errs.ErrRateLimited
	}

	err := Retry(ctx, op, Policy{
		MaxRetries:     3,
		BaseDelay:      time.Millisecond,
		RetryableKinds: []errs.Kind{errs.KindNetwork},
		Sleep:          noSleep(nil),
	})
	if !errs.ErrRateLimited.Is(err) {
		t.Fatalf("Retry() error = %v, want rate limit passthrough", err)
	}
	if calls != 1 {
		t.Errorf("Retry() calls = %d, want 1", calls)
	}
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	ctx := context.Background()
	calls := 0
	retried := 0
	op := func(context.Context) error {
		calls++
		return &errs.ErrNetwork
	}

	err := Retry(ctx, op, Policy{
		MaxRetries:     3,
		BaseDelay:      10 * time.Millisecond,
		MaxDelay:       40 * time.Millisecond,
		BackoffFactor:  2,
		RetryableKinds: []errs.Kind{errs.KindNetwork},
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			retried = attempt
		},
		Sleep: noSleep(nil),
		Rand:  func() float64 { return 0 },
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("Retry() error = %v, want *ExhaustedError", err)
	}
	if ex.Attempts != 4 {
		t.Errorf("ExhaustedError.Attempts = %d, want 4 (1 initial + 3 retries)", ex.Attempts)
	}
	if calls != 4 {
		t.Errorf("Retry() calls = %d, want 4", calls)
	}
	if retried != 3 {
		t.Errorf("OnRetry last attempt = %d, want 3", retried)
	}
	if !errs.ErrNetwork.Is(ex.Last) {
		t.Errorf("ExhaustedError.Last = %v, want network error", ex.Last)
	}
}

func TestRetry_DelayNonDecreasingAndCapped(t *testing.T) {
	ctx := context.Background()
	var delays []time.Duration
	op := func(context.Context) error { return &errs.ErrTimeout }

	_ = Retry(ctx, op, Policy{
		MaxRetries:     6,
		BaseDelay:      10 * time.Millisecond,
		MaxDelay:       80 * time.Millisecond,
		BackoffFactor:  2,
		RetryableKinds: []errs.Kind{errs.KindTimeout},
		Sleep:          noSleep(&delays),
		Rand:           func() float64 { return 0 },
	})

	if len(delays) != 6 {
		t.Fatalf("delay count = %d, want 6", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Errorf("delay[%d]=%v < delay[%d]=%v, want non-decreasing", i, delays[i], i-1, delays[i-1])
		}
	}
	for i, d := range delays {
		if d > 80*time.Millisecond {
			t.Errorf("delay[%d]=%v exceeds cap", i, d)
		}
	}
	// 10, 20, 40, 80, 80, 80
	if delays[0] != 10*time.Millisecond || delays[3] != 80*time.Millisecond || delays[5] != 80*time.Millisecond {
		t.Errorf("delays = %v, want exponential then capped", delays)
	}
}

func TestRetry_ContextCancelStopsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	op := func(context.Context) error { return &errs.ErrNetwork }
	err := Retry(ctx, op, Policy{
		MaxRetries:     3,
		BaseDelay:      time.Hour, // real sleep: must abort via ctx, not wait
		RetryableKinds: []errs.Kind{errs.KindNetwork},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
}
