package cache

import (
	"bytes"
	"context"
	"testing"

	"github.com/whenfs/whenfs/internal/storage/memory"
)

func newTestCache(t *testing.T, blockSize int) (*Cache, *memory.Backend) {
	t.Helper()
	backend := memory.NewBackend("test-cal")
	c := NewVolume(backend, blockSize)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, backend
}

func TestCreateAndReadBack(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1024)

	in, err := c.Create(RootIno, "hello.txt", 0644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Write(ctx, in.Number, 0, []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("Fsync: %v", err)
	}

	got, err := c.Read(ctx, in.Number, 0, 11)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("Read = %q, want %q", got, "hello world")
	}
	attr, _ := c.GetAttr(in.Number)
	if attr.Attr.Size != 11 {
		t.Fatalf("Size = %d, want 11", attr.Attr.Size)
	}
}

func TestRemountPersistence(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend("test-cal")
	c := NewVolume(backend, 1024)

	in, err := c.Create(RootIno, "hello.txt", 0644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Write(ctx, in.Number, 0, []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	rootID := c.RootRecordID()
	if rootID == "" {
		t.Fatal("expected a root record id after fsync")
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := OpenVolume(ctx, backend, rootID)
	if err != nil {
		t.Fatalf("OpenVolume: %v", err)
	}
	defer c2.Close(ctx)

	childIno, ok := c2.ChildIno(RootIno, "hello.txt")
	if !ok {
		t.Fatal("hello.txt missing after remount")
	}
	got, err := c2.Read(ctx, childIno, 0, 11)
	if err != nil {
		t.Fatalf("Read after remount: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("Read after remount = %q, want %q", got, "hello world")
	}
}

func TestDirectoryOperations(t *testing.T) {
	ctx := context.Background()
	_ = ctx
	c, _ := newTestCache(t, 1024)

	a, err := c.Mkdir(RootIno, "a", 0755, 0, 0)
	if err != nil {
		t.Fatalf("mkdir /a: %v", err)
	}
	b, err := c.Mkdir(a.Number, "b", 0755, 0, 0)
	if err != nil {
		t.Fatalf("mkdir /a/b: %v", err)
	}
	if _, err := c.Create(b.Number, "c", 0644, 0, 0); err != nil {
		t.Fatalf("create /a/b/c: %v", err)
	}

	entries, err := c.ReadDir(b.Number)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	want := []string{".", "..", "c"}
	if len(entries) != len(want) {
		t.Fatalf("ReadDir = %v, want %v", entries, want)
	}
	for i, name := range want {
		if entries[i] != name {
			t.Fatalf("ReadDir[%d] = %q, want %q", i, entries[i], name)
		}
	}

	if err := c.Rmdir(a.Number, "b"); err != ErrNotEmpty {
		t.Fatalf("Rmdir non-empty = %v, want ErrNotEmpty", err)
	}
	if err := c.Unlink(b.Number, "c"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := c.Rmdir(a.Number, "b"); err != nil {
		t.Fatalf("Rmdir after empty: %v", err)
	}
}

func TestMultiBlockFile(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1024)

	in, err := c.Create(RootIno, "big.bin", 0644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	data := make([]byte, 3584)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if _, err := c.Write(ctx, in.Number, 0, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("Fsync: %v", err)
	}

	var got []byte
	for _, n := range []int{1000, 1000, 1584} {
		chunk, err := c.Read(ctx, in.Number, int64(len(got)), n)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("multi-block round trip mismatch")
	}
}

func TestRenameOverwrite(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1024)

	x, err := c.Create(RootIno, "x", 0644, 0, 0)
	if err != nil {
		t.Fatalf("create x: %v", err)
	}
	c.Write(ctx, x.Number, 0, []byte("A"))
	y, err := c.Create(RootIno, "y", 0644, 0, 0)
	if err != nil {
		t.Fatalf("create y: %v", err)
	}
	c.Write(ctx, y.Number, 0, []byte("BB"))

	if err := c.Rename(RootIno, "x", RootIno, "y"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, err := c.Read(ctx, x.Number, 0, 1)
	if err != nil {
		t.Fatalf("read renamed inode: %v", err)
	}
	if string(got) != "A" {
		t.Fatalf("read /y = %q, want %q", got, "A")
	}
	if _, ok := c.ChildIno(RootIno, "x"); ok {
		t.Fatal("/x should no longer exist")
	}
	yIno, ok := c.ChildIno(RootIno, "y")
	if !ok || yIno != x.Number {
		t.Fatalf("/y should now resolve to the renamed inode")
	}
}

func TestTransientFailureMasking(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend("test-cal")
	backend.FailPuts = 2
	c := NewVolume(backend, 1024)
	defer c.Close(ctx)

	in, err := c.Create(RootIno, "f", 0644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Write(ctx, in.Number, 0, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("Fsync should mask transient put failures: %v", err)
	}
}

func TestZeroByteFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1024)

	in, err := c.Create(RootIno, "empty", 0644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("Fsync: %v", err)
	}
	got, err := c.Read(ctx, in.Number, 0, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Read = %v, want empty", got)
	}
}

func TestTruncateZeroExtends(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1024)

	in, err := c.Create(RootIno, "f", 0644, 0, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.Write(ctx, in.Number, 0, []byte("abc"))
	newSize := int64(10)
	if _, err := c.SetAttr(ctx, in.Number, &newSize, nil, nil, nil, nil, nil); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	got, err := c.Read(ctx, in.Number, 0, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := append([]byte("abc"), make([]byte, 7)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("Read = %v, want %v", got, want)
	}
}

func TestMkdirExistingFails(t *testing.T) {
	c, _ := newTestCache(t, 1024)
	if _, err := c.Mkdir(RootIno, "dup", 0755, 0, 0); err != nil {
		t.Fatalf("first mkdir: %v", err)
	}
	if _, err := c.Mkdir(RootIno, "dup", 0755, 0, 0); err != ErrExist {
		t.Fatalf("second mkdir = %v, want ErrExist", err)
	}
}

func TestFsyncCleanInodeIsNoop(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 1024)
	in, _ := c.Create(RootIno, "f", 0644, 0, 0)
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("first fsync: %v", err)
	}
	if err := c.Fsync(ctx, in.Number); err != nil {
		t.Fatalf("repeated fsync on clean inode: %v", err)
	}
}

func TestWriteCrossingBlockBoundary(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 4)

	in, _ := c.Create(RootIno, "f", 0644, 0, 0)
	if _, err := c.Write(ctx, in.Number, 2, []byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := c.Read(ctx, in.Number, 2, 6)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("Read = %q, want %q", got, "abcdef")
	}
}
