package fuse

import (
	"context"
	"os"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/whenfs/whenfs/internal/cache"
)

func fillAttr(a *fuse.Attr, ino cache.Ino, in *cache.Inode) {
	a.Inode = uint64(ino)
	a.Size = uint64(in.Attr.Size)
	a.Atime = in.Attr.Atime
	a.Mtime = in.Attr.Mtime
	a.Ctime = in.Attr.Ctime
	a.Nlink = in.Attr.Nlink
	a.Uid = in.Attr.Uid
	a.Gid = in.Attr.Gid
	mode := os.FileMode(in.Attr.Mode)
	if in.Kind == cache.KindDir {
		mode |= os.ModeDir
	}
	a.Mode = mode
}

func applySetattr(ctx context.Context, c *cache.Cache, ino cache.Ino, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	var size *int64
	if req.Valid.Size() {
		s := int64(req.Size)
		size = &s
	}
	var mode *uint32
	if req.Valid.Mode() {
		m := uint32(req.Mode.Perm())
		mode = &m
	}
	var uid, gid *uint32
	if req.Valid.Uid() {
		u := req.Uid
		uid = &u
	}
	if req.Valid.Gid() {
		g := req.Gid
		gid = &g
	}
	var atime, mtime *time.Time
	if req.Valid.Atime() {
		t := req.Atime
		atime = &t
	}
	if req.Valid.Mtime() {
		t := req.Mtime
		mtime = &t
	}

	in, err := c.SetAttr(ctx, ino, size, mode, uid, gid, atime, mtime)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&resp.Attr, ino, in)
	return nil
}

// Dir is a directory node, addressed by inode number.
type Dir struct {
	vol *FS
	ino cache.Ino
}

var _ fs.Node = (*Dir)(nil)
var _ fs.NodeStringLookuper = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeSetattrer = (*Dir)(nil)
var _ fs.NodeMkdirer = (*Dir)(nil)
var _ fs.NodeCreater = (*Dir)(nil)
var _ fs.NodeRemover = (*Dir)(nil)
var _ fs.NodeRenamer = (*Dir)(nil)
var _ fs.NodeAccesser = (*Dir)(nil)

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	in, err := d.vol.cache.GetAttr(d.ino)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(a, d.ino, in)
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	if d.ino == cache.RootIno && name == recoveryFileName {
		return &File{vol: d.vol, ino: recoveryIno}, nil
	}
	in, err := d.vol.cache.Lookup(d.ino, name)
	if err != nil {
		return nil, toErrno(err)
	}
	if in.Kind == cache.KindDir {
		return &Dir{vol: d.vol, ino: in.Number}, nil
	}
	return &File{vol: d.vol, ino: in.Number}, nil
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names, err := d.vol.cache.ReadDir(d.ino)
	if err != nil {
		return nil, toErrno(err)
	}

	dirents := make([]fuse.Dirent, 0, len(names)+1)
	for _, name := range names {
		var childIno cache.Ino
		isDir := true
		switch name {
		case ".":
			childIno = d.ino
		case "..":
			self, err := d.vol.cache.GetAttr(d.ino)
			if err != nil {
				return nil, toErrno(err)
			}
			childIno = self.Parent
		default:
			ino, ok := d.vol.cache.ChildIno(d.ino, name)
			if !ok {
				continue
			}
			attr, err := d.vol.cache.GetAttr(ino)
			if err != nil {
				continue
			}
			childIno = ino
			isDir = attr.Kind == cache.KindDir
		}
		typ := fuse.DT_File
		if isDir {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{Inode: uint64(childIno), Name: name, Type: typ})
	}
	if d.ino == cache.RootIno {
		dirents = append(dirents, fuse.Dirent{Inode: uint64(recoveryIno), Name: recoveryFileName, Type: fuse.DT_File})
	}
	return dirents, nil
}

func (d *Dir) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return applySetattr(ctx, d.vol.cache, d.ino, req, resp)
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	in, err := d.vol.cache.Mkdir(d.ino, req.Name, uint32(req.Mode.Perm()), req.Uid, req.Gid)
	if err != nil {
		return nil, toErrno(err)
	}
	return &Dir{vol: d.vol, ino: in.Number}, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	in, err := d.vol.cache.Create(d.ino, req.Name, uint32(req.Mode.Perm()), req.Uid, req.Gid)
	if err != nil {
		return nil, nil, toErrno(err)
	}
	if err := d.vol.cache.Open(in.Number); err != nil {
		return nil, nil, toErrno(err)
	}
	fillAttr(&resp.Attr, in.Number, in)
	file := &File{vol: d.vol, ino: in.Number}
	handle := &Handle{vol: d.vol, ino: in.Number, mode: modeFromFlags(req.Flags)}
	return file, handle, nil
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return toErrno(d.vol.cache.Rmdir(d.ino, req.Name))
	}
	return toErrno(d.vol.cache.Unlink(d.ino, req.Name))
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return syscall.EXDEV
	}
	return toErrno(d.vol.cache.Rename(d.ino, req.OldName, target.ino, req.NewName))
}

func (d *Dir) Access(ctx context.Context, req *fuse.AccessRequest) error {
	in, err := d.vol.cache.GetAttr(d.ino)
	if err != nil {
		return toErrno(err)
	}
	_ = checkAccess(in.Attr.Uid, in.Attr.Gid, in.Attr.Mode, req.Uid, req.Gid, uint32(req.Mask))
	return nil
}

// File is a regular file node, addressed by inode number. recoveryIno
// is the one reserved value identifying the synthetic welcome file.
type File struct {
	vol *FS
	ino cache.Ino
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)
var _ fs.NodeSetattrer = (*File)(nil)
var _ fs.NodeFsyncer = (*File)(nil)
var _ fs.NodeAccesser = (*File)(nil)

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	if f.ino == recoveryIno {
		data := recoveryContents(f.vol.cache)
		now := time.Now()
		a.Inode = uint64(recoveryIno)
		a.Size = uint64(len(data))
		a.Mode = 0o444
		a.Nlink = 1
		a.Atime, a.Mtime, a.Ctime = now, now, now
		return nil
	}
	in, err := f.vol.cache.GetAttr(f.ino)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(a, f.ino, in)
	return nil
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if f.ino == recoveryIno {
		return &Handle{vol: f.vol, ino: recoveryIno, mode: modeRead}, nil
	}
	if err := f.vol.cache.Open(f.ino); err != nil {
		return nil, toErrno(err)
	}
	return &Handle{vol: f.vol, ino: f.ino, mode: modeFromFlags(req.Flags)}, nil
}

func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if f.ino == recoveryIno {
		return f.Attr(ctx, &resp.Attr)
	}
	return applySetattr(ctx, f.vol.cache, f.ino, req, resp)
}

func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	if f.ino == recoveryIno {
		return nil
	}
	return toErrno(f.vol.cache.Fsync(ctx, f.ino))
}

func (f *File) Access(ctx context.Context, req *fuse.AccessRequest) error {
	if f.ino == recoveryIno {
		return nil
	}
	in, err := f.vol.cache.GetAttr(f.ino)
	if err != nil {
		return toErrno(err)
	}
	_ = checkAccess(in.Attr.Uid, in.Attr.Gid, in.Attr.Mode, req.Uid, req.Gid, uint32(req.Mask))
	return nil
}
