package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrs "xqcrawler/pkg/errors"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		if delay := backoff.NextDelay(tt.attempt); delay != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, delay)
		}
	}
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		delay := backoff.NextDelay(2)
		if delay < 140*time.Millisecond || delay > 260*time.Millisecond {
			t.Fatalf("delay %v outside jitter range", delay)
		}
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return xerrs.NewNetwork(errors.New("connection reset"))
		}
		return nil
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	if err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	last := errors.New("still not logged in")
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return last
	}, &Config{MaxAttempts: 120, Backoff: &ConstantBackoff{}, RetryIf: Always})

	if attempts != 120 {
		t.Errorf("expected 120 attempts, got %d", attempts)
	}
	if !errors.Is(err, ErrMaxAttempts) || !errors.Is(err, last) {
		t.Errorf("expected wrapped max-attempts error, got %v", err)
	}
}

func TestDoDoesNotRetryAuthErrors(t *testing.T) {
	attempts := 0
	authErr := xerrs.NewAuthRequired("login expired")
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return authErr
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	if err != authErr {
		t.Errorf("expected auth error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("boom")
	}, &Config{MaxAttempts: 10, Backoff: &ConstantBackoff{Delay: 50 * time.Millisecond}, RetryIf: Always})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestOnRetryCallback(t *testing.T) {
	var delays []time.Duration
	_ = Do(context.Background(), func(context.Context) error {
		return errors.New("x")
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     Always,
		OnRetry:     func(_ int, _ error, d time.Duration) { delays = append(delays, d) },
	})

	if len(delays) != 2 {
		t.Errorf("expected 2 retry callbacks, got %d", len(delays))
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), func(context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("temporary")
		}
		return "token", nil
	}, &Config{MaxAttempts: 3, Backoff: &ConstantBackoff{Delay: time.Millisecond}, RetryIf: Always})

	if err != nil || result != "token" {
		t.Errorf("got (%q, %v)", result, err)
	}
}

func TestWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("zero wait returned %v", err)
	}
}
