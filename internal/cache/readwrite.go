package cache

import (
	"context"
	"time"

	"github.com/whenfs/whenfs/internal/storage"
)

// Read locates resident blocks, fetches and decodes any missing ones
// from storage, then splices the requested range, zero-filling past
// the end of resident data up to size.
func (c *Cache) Read(ctx context.Context, ino Ino, off int64, size int) ([]byte, error) {
	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return nil, ErrNotExist
	}
	if in.Kind != KindFile {
		c.mu.Unlock()
		return nil, ErrIsDir
	}
	fileSize := in.Attr.Size
	if off >= fileSize {
		c.mu.Unlock()
		return nil, nil
	}
	if int64(size) > fileSize-off {
		size = int(fileSize - off)
	}
	firstIdx := uint64(off) / uint64(c.blockSize)
	lastIdx := uint64(off+int64(size)-1) / uint64(c.blockSize)

	// Identify blocks needing a fetch from storage.
	var toFetch []uint64
	for idx := firstIdx; idx <= lastIdx; idx++ {
		blk, exists := in.Blocks[idx]
		if !exists || !blk.Loaded {
			toFetch = append(toFetch, idx)
		}
	}
	c.mu.Unlock()

	for _, idx := range toFetch {
		if err := c.fetchBlock(ctx, ino, idx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok = c.inodes[ino]
	if !ok {
		return nil, ErrNotExist
	}
	out := make([]byte, size)
	for i := 0; i < size; {
		off64 := off + int64(i)
		idx := uint64(off64) / uint64(c.blockSize)
		within := int(off64 % int64(c.blockSize))
		blk := in.Blocks[idx]
		n := size - i
		if n > c.blockSize-within {
			n = c.blockSize - within
		}
		if blk != nil && blk.Loaded {
			avail := len(blk.Data) - within
			if avail > 0 {
				cp := n
				if cp > avail {
					cp = avail
				}
				copy(out[i:i+cp], blk.Data[within:within+cp])
			}
		}
		// Bytes beyond resident block data stay zero (already zeroed by make).
		i += n
	}
	in.Attr.Atime = time.Now()
	return out, nil
}

// fetchBlock retrieves and decodes a single block record, installing
// it under lock. If the range was invalidated meanwhile (block
// removed by a concurrent truncate, or already loaded by another
// reader), the fetched data is simply discarded.
func (c *Cache) fetchBlock(ctx context.Context, ino Ino, idx uint64) error {
	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return ErrNotExist
	}
	blk, exists := in.Blocks[idx]
	if !exists || blk.RecordID == "" {
		c.mu.Unlock()
		return nil // no backing record yet: reads as zero
	}
	recordID := blk.RecordID
	c.mu.Unlock()

	rec, err := c.backend.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.Role != storage.RoleBlock {
		return &storage.CorruptRecordErr{ID: recordID, Reason: "expected block record"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok = c.inodes[ino]
	if !ok {
		return nil
	}
	blk, exists = in.Blocks[idx]
	if !exists || blk.RecordID != recordID || blk.Loaded {
		return nil // invalidated or already installed meanwhile
	}
	blk.Data = rec.Payload
	blk.Loaded = true
	return nil
}

// Write ensures target blocks are resident (read-modify-write at range
// edges), overwrites the affected bytes, marks them dirty, extends
// size, and enqueues the inode for flush.
func (c *Cache) Write(ctx context.Context, ino Ino, off int64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	firstIdx := uint64(off) / uint64(c.blockSize)
	lastIdx := uint64(off+int64(len(buf))-1) / uint64(c.blockSize)

	c.mu.Lock()
	in, ok := c.inodes[ino]
	if !ok {
		c.mu.Unlock()
		return 0, ErrNotExist
	}
	if in.Kind != KindFile {
		c.mu.Unlock()
		return 0, ErrIsDir
	}

	// Partial edge blocks need a read-modify-write; full-range interior
	// blocks can be overwritten without fetching first.
	var toFetch []uint64
	for idx := firstIdx; idx <= lastIdx; idx++ {
		blk, exists := in.Blocks[idx]
		needsFetch := exists && !blk.Loaded && blk.RecordID != ""
		isEdge := idx == firstIdx || idx == lastIdx
		blockStart := int64(idx) * int64(c.blockSize)
		fullyCovered := off <= blockStart && off+int64(len(buf)) >= blockStart+int64(c.blockSize)
		if needsFetch && (isEdge && !fullyCovered) {
			toFetch = append(toFetch, idx)
		}
	}
	c.mu.Unlock()

	for _, idx := range toFetch {
		if err := c.fetchBlock(ctx, ino, idx); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok = c.inodes[ino]
	if !ok {
		return 0, ErrNotExist
	}

	written := 0
	for written < len(buf) {
		off64 := off + int64(written)
		idx := uint64(off64) / uint64(c.blockSize)
		within := int(off64 % int64(c.blockSize))
		n := len(buf) - written
		if n > c.blockSize-within {
			n = c.blockSize - within
		}

		blk, exists := in.Blocks[idx]
		if !exists {
			blk = &Block{Index: idx, Loaded: true}
			in.Blocks[idx] = blk
		}
		need := within + n
		if need > len(blk.Data) {
			grown := make([]byte, need)
			copy(grown, blk.Data)
			blk.Data = grown
		}
		copy(blk.Data[within:within+n], buf[written:written+n])
		blk.Dirty = true
		blk.Loaded = true
		blk.version++
		written += n
	}

	now := time.Now()
	if end := off + int64(written); end > in.Attr.Size {
		in.Attr.Size = end
	}
	in.Attr.Mtime = now
	in.Attr.Ctime = now

	c.markDirty(ino)
	return written, nil
}
