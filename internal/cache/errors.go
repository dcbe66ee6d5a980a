package cache

import "errors"

// Sentinel errors the filesystem adapter maps to syscall.Errno. Kept
// separate from storage's typed errors (AuthErr, TransientErr, ...),
// which signal backend-layer failures rather than filesystem-semantic
// ones.
var (
	ErrNotExist  = errors.New("no such file or directory")
	ErrExist     = errors.New("file exists")
	ErrNotEmpty  = errors.New("directory not empty")
	ErrIsDir     = errors.New("is a directory")
	ErrNotDir    = errors.New("not a directory")
	ErrNameTooLong = errors.New("name too long")
	ErrInvalidName = errors.New("invalid name")
)

// MaxNameLength bounds directory-entry names to a bounded UTF-8 string
// with no "/" and no NUL; 255 matches the conventional POSIX limit
// used by the original prototype (src/fs.rs::MAX_NAME_LENGTH).
const MaxNameLength = 255

func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return ErrInvalidName
		}
	}
	return nil
}
