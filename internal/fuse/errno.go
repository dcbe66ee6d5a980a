package fuse

import (
	"errors"
	"syscall"

	"github.com/whenfs/whenfs/internal/cache"
	"github.com/whenfs/whenfs/internal/storage"
)

// toErrno maps the cache/storage error vocabulary onto syscall.Errno,
// the only error type bazil.org/fuse forwards to the kernel verbatim.
func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, cache.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, cache.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, cache.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, cache.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, cache.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, cache.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, cache.ErrInvalidName):
		return syscall.EINVAL
	}

	var notFound *storage.NotFoundErr
	if errors.As(err, &notFound) {
		// A legitimate missing child is already cache.ErrNotExist above;
		// a storage.NotFoundErr reaching here means the in-memory graph
		// believes a record exists but the remote calendar has lost it,
		// an integrity violation, not an ordinary lookup miss.
		return syscall.EIO
	}
	var auth *storage.AuthErr
	if errors.As(err, &auth) {
		return syscall.EACCES
	}
	var unavailable *storage.RemoteUnavailableErr
	if errors.As(err, &unavailable) {
		return syscall.EIO
	}
	var corrupt *storage.CorruptRecordErr
	if errors.As(err, &corrupt) {
		return syscall.EIO
	}
	var incompatible *storage.IncompatibleVolumeErr
	if errors.As(err, &incompatible) {
		return syscall.EIO
	}
	return syscall.EIO
}
