package memory

import (
	"context"
	"testing"

	"github.com/whenfs/whenfs/internal/storage"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewBackend("cal-1")

	id, err := b.Put(ctx, storage.RoleBlock, []byte("payload"), "", 7, 2)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := b.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(rec.Payload) != "payload" || rec.Owner != 7 || rec.Index != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestGetNotFound(t *testing.T) {
	b := NewBackend("cal-1")
	if _, err := b.Get(context.Background(), "missing"); !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundErr, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	b := NewBackend("cal-1")

	id, _ := b.Put(ctx, storage.RoleInodeFile, []byte("a"), "", 1, 0)
	if err := b.Update(ctx, id, []byte("b"), "next-id"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec, _ := b.Get(ctx, id)
	if string(rec.Payload) != "b" || rec.Next != "next-id" {
		t.Fatalf("update did not take effect: %+v", rec)
	}

	if err := b.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, id); !storage.IsNotFound(err) {
		t.Fatalf("expected NotFoundErr after delete, got %v", err)
	}
}

func TestScanAndRootOf(t *testing.T) {
	ctx := context.Background()
	b := NewBackend("cal-1")

	rootID, _ := b.Put(ctx, storage.RoleRoot, []byte("root"), "", 0, 0)
	b.Put(ctx, storage.RoleBlock, []byte("block"), "", 1, 0)

	records, err := b.Scan(ctx)
	if err != nil || len(records) != 2 {
		t.Fatalf("Scan: %v, %d records", err, len(records))
	}

	got, err := b.RootOf(ctx, "")
	if err != nil || got != rootID {
		t.Fatalf("RootOf() = %q, %v, want %q", got, err, rootID)
	}

	got, err = b.RootOf(ctx, rootID)
	if err != nil || got != rootID {
		t.Fatalf("RootOf(hint) = %q, %v, want %q", got, err, rootID)
	}
}

func TestFailPutsThenSucceed(t *testing.T) {
	ctx := context.Background()
	b := NewBackend("cal-1")
	b.FailPuts = 2

	attempts := 0
	err := storage.DefaultBackoff().Retry(ctx, func() error {
		attempts++
		_, err := b.Put(ctx, storage.RoleBlock, []byte("x"), "", 1, 0)
		return err
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}
