// Package fuse adapts a cache.Cache onto the kernel's FUSE upcall
// protocol via bazil.org/fuse. Nodes are addressed by inode number
// (cache.Ino), not path, because the cache's identity map, rename, and
// lookup all key on the inode, not on any path that currently happens
// to reach it.
package fuse

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/whenfs/whenfs/internal/cache"
	"github.com/whenfs/whenfs/internal/logging"
)

// FS implements fs.FS against one mounted volume.
type FS struct {
	cache *cache.Cache
}

var _ fs.FS = (*FS)(nil)

func (f *FS) Root() (fs.Node, error) {
	return &Dir{vol: f, ino: cache.RootIno}, nil
}

// MountOptions configures a single Mount call.
type MountOptions struct {
	VolumeName     string // macOS Finder display name; ignored elsewhere
	ReadOnlyVolume bool
}

// Mount mounts volume at mountpoint and serves upcalls until the
// filesystem is unmounted or ctx is canceled.
func Mount(ctx context.Context, mountpoint string, volume *cache.Cache) error {
	return MountWithOptions(ctx, mountpoint, volume, MountOptions{})
}

// MountWithOptions is Mount with explicit mount options.
func MountWithOptions(ctx context.Context, mountpoint string, volume *cache.Cache, opts MountOptions) error {
	mountOpts := []fuse.MountOption{
		fuse.FSName("whenfs"),
		fuse.Subtype("whenfs"),
	}
	if opts.VolumeName != "" {
		mountOpts = append(mountOpts, fuse.VolumeName(opts.VolumeName))
	}
	if opts.ReadOnlyVolume {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}

	conn, err := fuse.Mount(mountpoint, mountOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	fsys := &FS{cache: volume}
	logging.Info("mounted whenfs at %s (calendar %s)", mountpoint, volume.CalendarID())

	serveErr := make(chan error, 1)
	go func() { serveErr <- fs.Serve(conn, fsys) }()

	select {
	case <-ctx.Done():
		fuse.Unmount(mountpoint)
		<-serveErr
		return ctx.Err()
	case err := <-serveErr:
		return err
	}
}
