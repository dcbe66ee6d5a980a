package fuse

import (
	"context"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/whenfs/whenfs/internal/cache"
)

// handleMode tags an open file handle with the capability bits it was
// opened with, reproducing the prototype's new_file_handle read/write
// bit tagging (fs.rs, FILE_HANDLE_READ_BIT / FILE_HANDLE_WRITE_BIT) as
// an explicit struct field instead of bits packed into the numeric
// handle id, since Go handles are typed values, not raw integers
// crossing an FFI boundary.
type handleMode uint8

const (
	modeRead handleMode = 1 << iota
	modeWrite
)

func modeFromFlags(flags fuse.OpenFlags) handleMode {
	switch {
	case flags.IsReadWrite():
		return modeRead | modeWrite
	case flags.IsWriteOnly():
		return modeWrite
	default:
		return modeRead
	}
}

// Handle is an open instance of a File node. Read/write authorization
// is checked per handle, not per node, so two opens of the same file
// with different flags behave independently.
type Handle struct {
	vol  *FS
	ino  cache.Ino
	mode handleMode
}

var _ fs.Handle = (*Handle)(nil)
var _ fs.HandleReader = (*Handle)(nil)
var _ fs.HandleWriter = (*Handle)(nil)
var _ fs.HandleFlusher = (*Handle)(nil)
var _ fs.HandleReleaser = (*Handle)(nil)

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	if h.ino == recoveryIno {
		data := recoveryContents(h.vol.cache)
		resp.Data = sliceAt(data, req.Offset, req.Size)
		return nil
	}
	data, err := h.vol.cache.Read(ctx, h.ino, req.Offset, req.Size)
	if err != nil {
		return toErrno(err)
	}
	resp.Data = data
	return nil
}

func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if h.mode&modeWrite == 0 {
		return syscall.EBADF
	}
	n, err := h.vol.cache.Write(ctx, h.ino, req.Offset, req.Data)
	if err != nil {
		return toErrno(err)
	}
	resp.Size = n
	return nil
}

func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	if h.ino == recoveryIno {
		return nil
	}
	return toErrno(h.vol.cache.Flush(ctx, h.ino))
}

func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	if h.ino != recoveryIno {
		h.vol.cache.Release(h.ino)
	}
	return nil
}

func sliceAt(data []byte, offset int64, size int) []byte {
	if offset >= int64(len(data)) {
		return nil
	}
	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end]
}
