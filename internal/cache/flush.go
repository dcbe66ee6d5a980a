package cache

import (
	"context"
	"time"

	"github.com/whenfs/whenfs/internal/codec"
	"github.com/whenfs/whenfs/internal/logging"
	"github.com/whenfs/whenfs/internal/storage"
)

func (c *Cache) startFlusher() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.flushAllBestEffort(ctx)
			case <-c.wakeCh:
				c.flushAllBestEffort(ctx)
			}
		}
	}()
}

func (c *Cache) flushAllBestEffort(ctx context.Context) {
	if err := c.flushAll(ctx); err != nil {
		logging.Warn("background flush: %v", err)
	}
}

// Fsync blocks until every dirty object owned by ino (its blocks, its
// own document, and — if structural changes are pending — the parent
// chain up to the root) has drained, or a terminal error surfaces.
// A clean inode's Fsync is a no-op that returns success: repeated
// fsyncs on an already-flushed file must not error.
func (c *Cache) Fsync(ctx context.Context, ino Ino) error {
	c.mu.Lock()
	_, dirty := c.dirtyInodes[ino]
	c.mu.Unlock()
	if !dirty {
		return nil
	}
	return c.flushChain(ctx, ino)
}

// flushChain flushes ino, then climbs its Parent pointer flushing each
// dirty ancestor directory in turn, and finally the root table if any
// inode along the way changed record id. A freshly created file is
// otherwise invisible to OpenVolume after a crash: its own record
// exists, but neither its parent directory's Entries nor the root
// table's record-id-per-inode list would point at it.
func (c *Cache) flushChain(ctx context.Context, ino Ino) error {
	seen := make(map[Ino]bool)
	for !seen[ino] {
		seen[ino] = true

		c.mu.Lock()
		_, dirty := c.dirtyInodes[ino]
		in, ok := c.inodes[ino]
		c.mu.Unlock()
		if !ok {
			break
		}
		if dirty {
			if err := c.flushInode(ctx, ino); err != nil {
				return err
			}
		}
		if ino == RootIno {
			break
		}

		c.mu.Lock()
		parent := in.Parent
		c.mu.Unlock()
		ino = parent
	}

	c.mu.Lock()
	needRoot := c.rootDirty
	c.mu.Unlock()
	if needRoot {
		return c.flushRoot(ctx)
	}
	return nil
}

// Flush is an alias for Fsync, matching the adapter's flush upcall,
// which shares the same drain contract.
func (c *Cache) Flush(ctx context.Context, ino Ino) error {
	return c.Fsync(ctx, ino)
}

// flushAll drains every dirty inode and, if the inode-number→record
// topology changed, the root table, in this order: new blocks before
// their owning inode, directory children before their parent, root
// last.
func (c *Cache) flushAll(ctx context.Context) error {
	c.mu.Lock()
	dirty := make([]Ino, 0, len(c.dirtyInodes))
	for ino := range c.dirtyInodes {
		dirty = append(dirty, ino)
	}
	toDelete := c.pendingDeletes
	c.pendingDeletes = nil
	c.mu.Unlock()

	for _, id := range toDelete {
		if err := c.backend.Delete(ctx, id); err != nil {
			logging.Warn("flush: delete %s: %v", id, err)
		}
	}

	// Flush files first (and any dirty blocks they own), then
	// directories in children-before-parent order.
	var dirs []Ino
	for _, ino := range dirty {
		c.mu.Lock()
		in, ok := c.inodes[ino]
		c.mu.Unlock()
		if !ok {
			continue
		}
		if in.Kind == KindDir {
			dirs = append(dirs, ino)
			continue
		}
		if err := c.flushInode(ctx, ino); err != nil {
			return err
		}
	}

	remaining := make(map[Ino]bool, len(dirs))
	for _, ino := range dirs {
		remaining[ino] = true
	}
	for len(remaining) > 0 {
		progressed := false
		for ino := range remaining {
			c.mu.Lock()
			in, ok := c.inodes[ino]
			blocked := false
			if ok {
				for _, childIno := range in.Children {
					if remaining[childIno] {
						blocked = true
						break
					}
				}
			}
			c.mu.Unlock()
			if blocked {
				continue
			}
			if ok {
				if err := c.flushInode(ctx, ino); err != nil {
					return err
				}
			}
			delete(remaining, ino)
			progressed = true
		}
		if !progressed {
			// Cycle guard: shouldn't happen over a tree, flush whatever is left anyway.
			for ino := range remaining {
				c.flushInode(ctx, ino)
				delete(remaining, ino)
			}
		}
	}

	c.mu.Lock()
	needRoot := c.rootDirty
	c.mu.Unlock()
	if needRoot {
		return c.flushRoot(ctx)
	}
	return nil
}

// flushInode flushes one inode's dirty blocks, then its own document.
func (c *Cache) flushInode(ctx context.Context, ino Ino) error {
	for {
		c.mu.Lock()
		in, ok := c.inodes[ino]
		if !ok {
			c.mu.Unlock()
			return nil
		}
		var idx uint64
		var blk *Block
		found := false
		if in.Kind == KindFile {
			for i, b := range in.Blocks {
				if b.Dirty {
					idx, blk = i, b
					found = true
					break
				}
			}
		}
		if !found {
			c.mu.Unlock()
			break
		}
		data := append([]byte(nil), blk.Data...)
		recordID := blk.RecordID
		ver := blk.version
		c.mu.Unlock()

		var newID string
		var err error
		if recordID == "" {
			newID, err = c.backend.Put(ctx, storage.RoleBlock, data, "", uint64(ino), idx)
		} else {
			err = c.backend.Update(ctx, recordID, data, "")
			newID = recordID
		}
		if err != nil {
			return err
		}

		c.mu.Lock()
		if in, ok := c.inodes[ino]; ok {
			if blk, ok := in.Blocks[idx]; ok && blk.version == ver {
				blk.RecordID = newID
				blk.Dirty = false
			}
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	wasUnflushed := in.RecordID == ""
	kind := in.Kind
	var data []byte
	var err error
	if kind == KindDir {
		data, err = encodeDirDocument(in)
	} else {
		data, err = encodeFileDocument(in)
	}
	oldChain := append([]string(nil), in.chain...)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	newChain, err := c.writeChain(ctx, roleFor(kind), data, oldChain, uint64(ino))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if in, ok := c.inodes[ino]; ok {
		in.chain = newChain
		in.RecordID = newChain[0]
		delete(c.dirtyInodes, ino)
	}
	if wasUnflushed {
		c.rootDirty = true
	}
	return nil
}

// writeChain reconciles a document's chunks against its previous
// record chain: reusing/updating the head and any interior records
// that still exist (an inode's head record id never changes once
// assigned), creating new trailing records as needed, and deleting any
// that are no longer needed. Creation proceeds tail-first so each
// record's next pointer is known before it is created (see DESIGN.md
// Open Question #3).
func (c *Cache) writeChain(ctx context.Context, role storage.Role, data []byte, oldChain []string, owner uint64) ([]string, error) {
	chunks := codec.Split(data, c.blockSize)
	newChain := make([]string, len(chunks))

	for i := len(chunks) - 1; i >= 0; i-- {
		next := ""
		if i+1 < len(newChain) {
			next = newChain[i+1]
		}
		if i < len(oldChain) {
			if err := c.backend.Update(ctx, oldChain[i], chunks[i], next); err != nil {
				return nil, err
			}
			newChain[i] = oldChain[i]
		} else {
			id, err := c.backend.Put(ctx, role, chunks[i], next, owner, 0)
			if err != nil {
				return nil, err
			}
			newChain[i] = id
		}
	}

	for i := len(chunks); i < len(oldChain); i++ {
		if err := c.backend.Delete(ctx, oldChain[i]); err != nil {
			logging.Warn("flush: delete trailing chain record %s: %v", oldChain[i], err)
		}
	}
	return newChain, nil
}

func (c *Cache) flushRoot(ctx context.Context) error {
	c.mu.Lock()
	entries := make([]rootTableEntry, 0, len(c.inodes))
	for ino, in := range c.inodes {
		if in.RecordID == "" {
			continue // not yet flushed; root table will pick it up next pass
		}
		entries = append(entries, rootTableEntry{Ino: uint64(ino), RecordID: in.RecordID, IsDir: in.Kind == KindDir})
	}
	doc := rootDocument{Version: FormatVersion, BlockSize: c.blockSize, RootIno: uint64(RootIno), Entries: entries}
	oldChain := append([]string(nil), c.rootChain...)
	c.mu.Unlock()

	data, err := marshalJSON(doc)
	if err != nil {
		return err
	}
	newChain, err := c.writeChain(ctx, storage.RoleRoot, data, oldChain, 0)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.rootChain = newChain
	c.rootDirty = false
	c.mu.Unlock()
	return nil
}

// Close drains outstanding dirty objects with a bounded timeout, then
// stops the background flusher and joins it.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := c.flushAll(drainCtx)

	close(c.stopCh)
	c.wg.Wait()
	return err
}
