package storage

import (
	"context"
	"errors"
	"testing"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	b := Backoff{Base: 1, Max: 2, MaxRetries: 5}
	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return &TransientErr{Err: errors.New("flaky")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryEscalatesAfterExhaustion(t *testing.T) {
	b := Backoff{Base: 1, Max: 2, MaxRetries: 2}
	attempts := 0
	err := b.Retry(context.Background(), func() error {
		attempts++
		return &TransientErr{Err: errors.New("always flaky")}
	})
	var unavailable *RemoteUnavailableErr
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected RemoteUnavailableErr, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (MaxRetries+1)", attempts)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	b := Backoff{Base: 1, Max: 2, MaxRetries: 5}
	attempts := 0
	wantErr := errors.New("permanent")
	err := b.Retry(context.Background(), func() error {
		attempts++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}
