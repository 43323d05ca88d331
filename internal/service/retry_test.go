package service

import (
	"context"
	"testing"
	"time"
)

func TestLinearBackoff(t *testing.T) {
	backoff := LinearBackoff(200 * time.Millisecond)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 200 * time.Millisecond},
		{attempt: 2, expected: 400 * time.Millisecond},
		{attempt: 3, expected: 600 * time.Millisecond},
		{attempt: 0, expected: 200 * time.Millisecond},
		{attempt: -5, expected: 200 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.expected {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestWaitWithoutBackoffReturnsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	start := time.Now()
	if err := policy.Wait(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected no waiting, took %v", elapsed)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(time.Hour),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := policy.Wait(ctx, 1)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected cancellation to cut the wait short, took %v", elapsed)
	}
}

func TestWaitReportsCancelledContextWithoutBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := policy.Wait(ctx, 1); err == nil {
		t.Fatal("expected context error")
	}
}
