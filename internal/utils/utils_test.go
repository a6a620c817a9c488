package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForCompletesAfterSleep(t *testing.T) {
	t.Parallel()

	if err := WaitFor(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestWaitForReturnsImmediatelyOnNonPositiveDuration(t *testing.T) {
	t.Parallel()

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected no error for zero duration, got %v", err)
	}

	if err := WaitFor(context.Background(), -time.Second); err != nil {
		t.Fatalf("expected no error for negative duration, got %v", err)
	}
}

func TestWaitForHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitFor(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
