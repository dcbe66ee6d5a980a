package fuse

import (
	"syscall"
	"testing"

	"github.com/whenfs/whenfs/internal/cache"
	"github.com/whenfs/whenfs/internal/storage"
)

func TestToErrnoMapsCacheSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{cache.ErrNotExist, syscall.ENOENT},
		{cache.ErrExist, syscall.EEXIST},
		{cache.ErrNotEmpty, syscall.ENOTEMPTY},
		{cache.ErrIsDir, syscall.EISDIR},
		{cache.ErrNotDir, syscall.ENOTDIR},
		{cache.ErrNameTooLong, syscall.ENAMETOOLONG},
		{cache.ErrInvalidName, syscall.EINVAL},
	}
	for _, c := range cases {
		got := toErrno(c.err)
		if got != c.want {
			t.Errorf("toErrno(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestToErrnoMapsStorageErrors(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{&storage.NotFoundErr{ID: "x"}, syscall.EIO},
		{&storage.AuthErr{Err: syscall.EACCES}, syscall.EACCES},
		{&storage.RemoteUnavailableErr{Attempts: 3, Err: syscall.EIO}, syscall.EIO},
		{&storage.CorruptRecordErr{ID: "x", Reason: "bad"}, syscall.EIO},
		{&storage.IncompatibleVolumeErr{Got: 2, Want: 1}, syscall.EIO},
	}
	for _, c := range cases {
		got := toErrno(c.err)
		if got != c.want {
			t.Errorf("toErrno(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestToErrnoNil(t *testing.T) {
	if toErrno(nil) != nil {
		t.Fatal("toErrno(nil) should be nil")
	}
}
