package cache

import (
	"context"
	"time"
)

// Lookup resolves a child inode within parent's directory.
func (c *Cache) Lookup(parent Ino, name string) (*Inode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, ok := c.inodes[parent]
	if !ok || dir.Kind != KindDir {
		return nil, ErrNotDir
	}
	childIno, ok := dir.Children[name]
	if !ok {
		return nil, ErrNotExist
	}
	child, ok := c.inodes[childIno]
	if !ok {
		return nil, ErrNotExist
	}
	return snapshotInode(child), nil
}

// GetAttr returns a snapshot of the inode's current attributes.
func (c *Cache) GetAttr(ino Ino) (*Inode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok {
		return nil, ErrNotExist
	}
	return snapshotInode(in), nil
}

// snapshotInode copies the fields the adapter is allowed to read
// without holding the cache lock.
func snapshotInode(in *Inode) *Inode {
	cp := &Inode{Number: in.Number, Kind: in.Kind, Attr: in.Attr, RecordID: in.RecordID, Parent: in.Parent}
	if in.Kind == KindDir {
		cp.order = append([]string(nil), in.order...)
	}
	return cp
}

// SetAttr updates mutable attributes. A size change truncates or
// zero-extends the file's blocks.
func (c *Cache) SetAttr(ctx context.Context, ino Ino, size *int64, mode, uid, gid *uint32, atime, mtime *time.Time) (*Inode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok {
		return nil, ErrNotExist
	}
	if size != nil {
		c.resizeLocked(in, *size)
	}
	if mode != nil {
		in.Attr.Mode = *mode
	}
	if uid != nil {
		in.Attr.Uid = *uid
	}
	if gid != nil {
		in.Attr.Gid = *gid
	}
	if atime != nil {
		in.Attr.Atime = *atime
	}
	if mtime != nil {
		in.Attr.Mtime = *mtime
	}
	in.Attr.Ctime = time.Now()
	c.markDirty(ino)
	return snapshotInode(in), nil
}

func (c *Cache) resizeLocked(in *Inode, newSize int64) {
	oldSpan := blockSpan(in.Attr.Size, c.blockSize)
	newSpan := blockSpan(newSize, c.blockSize)

	if newSize < in.Attr.Size {
		// Truncate: drop whole blocks beyond the new span, trim the
		// new last block. Already-flushed block records are enqueued
		// for deletion so the remote store doesn't accumulate orphans.
		for idx, blk := range in.Blocks {
			if idx >= newSpan {
				if blk.RecordID != "" {
					c.pendingDeletes = append(c.pendingDeletes, blk.RecordID)
				}
				delete(in.Blocks, idx)
			}
		}
		if newSpan > 0 {
			lastIdx := newSpan - 1
			if blk, ok := in.Blocks[lastIdx]; ok && blk.Loaded {
				keep := int(newSize - int64(lastIdx)*int64(c.blockSize))
				if keep < len(blk.Data) {
					blk.Data = blk.Data[:keep]
					blk.Dirty = true
					blk.version++
				}
			}
		}
	} else if newSize > in.Attr.Size {
		// Zero-extend: the last pre-existing block grows with zeros;
		// blocks entirely beyond the old size are left absent and
		// synthesized as zero on read.
		if oldSpan > 0 {
			lastIdx := oldSpan - 1
			if blk, ok := in.Blocks[lastIdx]; ok && blk.Loaded {
				want := c.blockSize
				if lastIdx == newSpan-1 {
					want = int(newSize - int64(lastIdx)*int64(c.blockSize))
				}
				if want > len(blk.Data) {
					grown := make([]byte, want)
					copy(grown, blk.Data)
					blk.Data = grown
					blk.Dirty = true
					blk.version++
				}
			}
		}
	}
	in.Attr.Size = newSize
}

// ReadDir returns ".", "..", then entries in insertion order.
func (c *Cache) ReadDir(ino Ino) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, ok := c.inodes[ino]
	if !ok || in.Kind != KindDir {
		return nil, ErrNotDir
	}
	entries := []string{".", ".."}
	for _, name := range in.order {
		if name == "." {
			continue
		}
		entries = append(entries, name)
	}
	return entries, nil
}

// ChildIno looks up a child's inode number without a full snapshot (adapter convenience).
func (c *Cache) ChildIno(parent Ino, name string) (Ino, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir, ok := c.inodes[parent]
	if !ok || dir.Kind != KindDir {
		return 0, false
	}
	ino, ok := dir.Children[name]
	return ino, ok
}

// Create allocates a file inode and links it into parent.
func (c *Cache) Create(parent Ino, name string, mode uint32, uid, gid uint32) (*Inode, error) {
	return c.createChild(parent, name, KindFile, mode, uid, gid)
}

// Mkdir allocates a directory inode and links it into parent.
func (c *Cache) Mkdir(parent Ino, name string, mode uint32, uid, gid uint32) (*Inode, error) {
	return c.createChild(parent, name, KindDir, mode, uid, gid)
}

func (c *Cache) createChild(parent Ino, name string, kind Kind, mode uint32, uid, gid uint32) (*Inode, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, ok := c.inodes[parent]
	if !ok || dir.Kind != KindDir {
		return nil, ErrNotDir
	}
	if _, exists := dir.Children[name]; exists {
		return nil, ErrExist
	}

	ino := c.allocateIno()
	now := time.Now()
	child := newInode(ino, kind, mode, now)
	child.Attr.Uid = uid
	child.Attr.Gid = gid
	child.Parent = parent
	c.inodes[ino] = child

	dir.addChild(name, ino)
	dir.Attr.Mtime = now
	dir.Attr.Ctime = now

	c.markDirty(ino)
	c.markDirty(parent)
	c.rootDirty = true

	return snapshotInode(child), nil
}

// Unlink removes a name from parent's directory; when the target's
// link count reaches zero and it has no open handles, the inode is
// destroyed and its records enqueued for deletion.
func (c *Cache) Unlink(parent Ino, name string) error {
	return c.removeChild(parent, name, false)
}

// Rmdir removes an empty child directory.
func (c *Cache) Rmdir(parent Ino, name string) error {
	return c.removeChild(parent, name, true)
}

func (c *Cache) removeChild(parent Ino, name string, wantDir bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, ok := c.inodes[parent]
	if !ok || dir.Kind != KindDir {
		return ErrNotDir
	}
	childIno, ok := dir.Children[name]
	if !ok {
		return ErrNotExist
	}
	child, ok := c.inodes[childIno]
	if !ok {
		return ErrNotExist
	}
	if wantDir && child.Kind != KindDir {
		return ErrNotDir
	}
	if !wantDir && child.Kind == KindDir {
		return ErrIsDir
	}
	if wantDir && len(child.Children) > 0 {
		return ErrNotEmpty
	}

	dir.removeChild(name)
	now := time.Now()
	dir.Attr.Mtime = now
	dir.Attr.Ctime = now
	c.markDirty(parent)
	c.rootDirty = true

	child.Attr.Nlink--
	if child.Attr.Nlink == 0 && child.handles == 0 {
		c.destroyLocked(child)
	}
	return nil
}

// destroyLocked removes an inode from the table and enqueues its
// backing records (and any block records) for deletion on the next
// flush pass.
func (c *Cache) destroyLocked(in *Inode) {
	delete(c.inodes, in.Number)
	delete(c.dirtyInodes, in.Number)
	c.pendingDeletes = append(c.pendingDeletes, in.chain...)
	for _, blk := range in.Blocks {
		if blk.RecordID != "" {
			c.pendingDeletes = append(c.pendingDeletes, blk.RecordID)
		}
	}
	c.rootDirty = true
}

// Rename detaches (p,n) and re-attaches at (p',n'), overwriting an
// existing file target.
func (c *Cache) Rename(oldParent Ino, oldName string, newParent Ino, newName string) error {
	if err := validateName(newName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	srcDir, ok := c.inodes[oldParent]
	if !ok || srcDir.Kind != KindDir {
		return ErrNotDir
	}
	dstDir, ok := c.inodes[newParent]
	if !ok || dstDir.Kind != KindDir {
		return ErrNotDir
	}
	srcIno, ok := srcDir.Children[oldName]
	if !ok {
		return ErrNotExist
	}
	srcNode := c.inodes[srcIno]

	if dstIno, exists := dstDir.Children[newName]; exists {
		dstNode := c.inodes[dstIno]
		if dstNode != nil {
			if dstNode.Kind == KindDir {
				return ErrIsDir
			}
			dstNode.Attr.Nlink--
			if dstNode.Attr.Nlink == 0 && dstNode.handles == 0 {
				c.destroyLocked(dstNode)
			}
		}
	}

	srcDir.removeChild(oldName)
	dstDir.addChild(newName, srcIno)
	now := time.Now()
	srcDir.Attr.Mtime, srcDir.Attr.Ctime = now, now
	dstDir.Attr.Mtime, dstDir.Attr.Ctime = now, now
	if srcNode != nil {
		srcNode.Attr.Ctime = now
		srcNode.Parent = newParent
		if srcNode.Kind == KindDir {
			c.markDirty(srcNode.Number)
		}
	}

	c.markDirty(oldParent)
	c.markDirty(newParent)
	return nil
}

// Open registers an open handle against ino (handle count participates in deletion).
func (c *Cache) Open(ino Ino) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.inodes[ino]
	if !ok {
		return ErrNotExist
	}
	in.handles++
	return nil
}

// Release drops an open handle; if the inode's link count is already
// zero, it is destroyed now that the last handle is gone.
func (c *Cache) Release(ino Ino) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.inodes[ino]
	if !ok {
		return
	}
	in.handles--
	if in.handles <= 0 && in.Attr.Nlink == 0 {
		c.destroyLocked(in)
	}
}
