package storage

import "context"

// retryingBackend wraps a Backend so every mutating call retries
// Transient failures with backoff before giving up, regardless of
// which concrete backend is bound underneath. The calendar backend
// already retries its own HTTP calls internally; wrapping it again is
// harmless since a backend that has already exhausted its own retries
// surfaces RemoteUnavailableErr, which is not itself Transient. This
// is what makes the in-memory backend's injected FailPuts (and any
// future backend that does not retry on its own) actually get retried
// by callers, instead of requiring every caller to remember to wrap
// its own Backend.Put/Update calls individually.
type retryingBackend struct {
	Backend
	backoff Backoff
}

// WithRetry wraps backend so Get/Put/Update/Delete retry Transient
// failures per backoff before surfacing RemoteUnavailableErr.
func WithRetry(backend Backend, backoff Backoff) Backend {
	return &retryingBackend{Backend: backend, backoff: backoff}
}

func (r *retryingBackend) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := r.backoff.Retry(ctx, func() error {
		var err error
		rec, err = r.Backend.Get(ctx, id)
		return err
	})
	return rec, err
}

func (r *retryingBackend) Put(ctx context.Context, role Role, payload []byte, next string, owner, index uint64) (string, error) {
	var id string
	err := r.backoff.Retry(ctx, func() error {
		var err error
		id, err = r.Backend.Put(ctx, role, payload, next, owner, index)
		return err
	})
	return id, err
}

func (r *retryingBackend) Update(ctx context.Context, id string, payload []byte, next string) error {
	return r.backoff.Retry(ctx, func() error {
		return r.Backend.Update(ctx, id, payload, next)
	})
}

func (r *retryingBackend) Delete(ctx context.Context, id string) error {
	return r.backoff.Retry(ctx, func() error {
		return r.Backend.Delete(ctx, id)
	})
}
