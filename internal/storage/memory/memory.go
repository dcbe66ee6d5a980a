// Package memory provides an in-memory fake storage.Backend used by
// the cache and adapter test suites and by the CLI's --backend=memory
// debug mode.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/whenfs/whenfs/internal/storage"
)

// Backend is an in-memory implementation of storage.Backend.
type Backend struct {
	mu       sync.RWMutex
	calendar string
	records  map[string]storage.Record
	nextID   int

	// FailPuts, when > 0, makes the next N Put calls fail with a
	// TransientErr before succeeding, for exercising backoff-retry
	// and transient-failure-masking behavior in tests.
	FailPuts int
}

// NewBackend creates an empty in-memory backend bound to calendar.
func NewBackend(calendar string) *Backend {
	return &Backend{
		calendar: calendar,
		records:  make(map[string]storage.Record),
	}
}

func (b *Backend) CalendarID() string { return b.calendar }

func (b *Backend) Get(ctx context.Context, id string) (storage.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[id]
	if !ok {
		return storage.Record{}, &storage.NotFoundErr{ID: id}
	}
	return cloneRecord(rec), nil
}

func (b *Backend) Put(ctx context.Context, role storage.Role, payload []byte, next string, owner, index uint64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailPuts > 0 {
		b.FailPuts--
		return "", &storage.TransientErr{Err: fmt.Errorf("simulated transient put failure")}
	}

	b.nextID++
	id := fmt.Sprintf("evt-%d", b.nextID)
	b.records[id] = storage.Record{
		ID:      id,
		Role:    role,
		Payload: append([]byte(nil), payload...),
		Next:    next,
		Owner:   owner,
		Index:   index,
	}
	return id, nil
}

func (b *Backend) Update(ctx context.Context, id string, payload []byte, next string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[id]
	if !ok {
		return &storage.NotFoundErr{ID: id}
	}
	rec.Payload = append([]byte(nil), payload...)
	rec.Next = next
	b.records[id] = rec
	return nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, id)
	return nil
}

func (b *Backend) Scan(ctx context.Context) ([]storage.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]storage.Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (b *Backend) RootOf(ctx context.Context, hint string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if hint != "" {
		if _, ok := b.records[hint]; !ok {
			return "", &storage.NotFoundErr{ID: hint}
		}
		return hint, nil
	}
	for _, rec := range b.records {
		if rec.Role == storage.RoleRoot {
			return rec.ID, nil
		}
	}
	return "", &storage.NotFoundErr{ID: "<root>"}
}

func cloneRecord(rec storage.Record) storage.Record {
	out := rec
	out.Payload = append([]byte(nil), rec.Payload...)
	return out
}
