package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/whenfs/whenfs/internal/logging"
	"github.com/whenfs/whenfs/internal/storage"
)

// FormatVersion is the root-record format version this build emits
// and the newest version it accepts.
const FormatVersion uint8 = 1

// DefaultBlockSize is 2800 bytes of raw payload per block record,
// derived from the original prototype's 4096-byte calendar description
// limit after accounting for base64 expansion and the frame header
// (see DESIGN.md).
const DefaultBlockSize = 2800

const DefaultMode = 0644
const DefaultDirMode = 0755

// Cache is the write-through object cache: the live filesystem graph,
// one coarse lock, and a background flusher draining writes to a
// storage.Backend.
type Cache struct {
	backend   storage.Backend
	blockSize int

	mu           sync.Mutex
	inodes       map[Ino]*Inode
	nextIno      uint64
	rootChain      []string
	rootDirty      bool
	dirtyInodes    map[Ino]bool
	pendingDeletes []string

	flushInterval time.Duration
	stopCh        chan struct{}
	wakeCh        chan struct{}
	wg            sync.WaitGroup
	closed        bool
}

func newCache(backend storage.Backend, blockSize int) *Cache {
	return &Cache{
		backend:       storage.WithRetry(backend, storage.DefaultBackoff()),
		blockSize:     blockSize,
		inodes:        make(map[Ino]*Inode),
		dirtyInodes:   make(map[Ino]bool),
		flushInterval: 2 * time.Second,
		stopCh:        make(chan struct{}),
		wakeCh:        make(chan struct{}, 1),
	}
}

// NewVolume bootstraps a brand-new WhenFS volume with an empty root
// directory (inode 1). The welcome/recovery file is not stored in the
// cache; the fuse adapter synthesizes it at the root (see SPEC_FULL.md
// "Supplemented from original_source"). Nothing is flushed to the
// backend until the first explicit Fsync or background flush pass.
func NewVolume(backend storage.Backend, blockSize int) *Cache {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	c := newCache(backend, blockSize)
	c.nextIno = uint64(RootIno) + 1

	now := time.Now()
	root := newInode(RootIno, KindDir, DefaultDirMode, now)
	root.Parent = RootIno
	c.inodes[RootIno] = root
	c.dirtyInodes[RootIno] = true
	c.rootDirty = true

	c.startFlusher()
	return c
}

// OpenVolume recovers an existing volume: resolves the root record
// (using rootHint, typically --root-event), walks the root document
// chain to rebuild the inode table, then reconstructs each inode from
// its own record chain, attaching block placeholders (fetched lazily
// on read) by following each file's block-id list. The backend is not
// scanned: records that the root table does not reach are never read
// and are not reported. An inode whose chain fails to load is logged
// and skipped.
func OpenVolume(ctx context.Context, backend storage.Backend, rootHint string) (*Cache, error) {
	rootID, err := backend.RootOf(ctx, rootHint)
	if err != nil {
		return nil, err
	}

	chain, data, err := readChain(ctx, backend, rootID, storage.RoleRoot)
	if err != nil {
		return nil, err
	}
	var doc rootDocument
	if err := unmarshalJSON(data, &doc); err != nil {
		return nil, &storage.CorruptRecordErr{ID: rootID, Reason: err.Error()}
	}
	if doc.Version > FormatVersion {
		return nil, &storage.IncompatibleVolumeErr{Got: doc.Version, Want: FormatVersion}
	}

	c := newCache(backend, doc.BlockSize)
	c.rootChain = chain
	c.nextIno = uint64(RootIno) + 1

	for _, entry := range doc.Entries {
		ino := Ino(entry.Ino)
		in, err := c.loadInode(ctx, ino, entry.RecordID, entry.IsDir)
		if err != nil {
			logging.Warn("mount recovery: skipping inode %d (%s): %v", ino, entry.RecordID, err)
			continue
		}
		c.inodes[ino] = in
		if uint64(ino)+1 > c.nextIno {
			c.nextIno = uint64(ino) + 1
		}
	}
	if _, ok := c.inodes[RootIno]; !ok {
		return nil, &storage.CorruptRecordErr{ID: rootID, Reason: "root inode missing from inode table"}
	}

	// Directory documents persist their own Parent, but files don't;
	// backfill each file's Parent from its containing directory's
	// Children map so a later Fsync can still climb to the root.
	for _, in := range c.inodes {
		if in.Kind != KindDir {
			continue
		}
		for _, childIno := range in.Children {
			if child, ok := c.inodes[childIno]; ok && child.Kind == KindFile {
				child.Parent = in.Number
			}
		}
	}

	c.startFlusher()
	return c, nil
}

func (c *Cache) loadInode(ctx context.Context, ino Ino, headID string, isDir bool) (*Inode, error) {
	role := storage.RoleInodeFile
	if isDir {
		role = storage.RoleInodeDir
	}
	chain, data, err := readChain(ctx, c.backend, headID, role)
	if err != nil {
		return nil, err
	}

	if isDir {
		doc, err := decodeDirDocument(data)
		if err != nil {
			return nil, &storage.CorruptRecordErr{ID: headID, Reason: err.Error()}
		}
		in := &Inode{
			Number:   ino,
			Kind:     KindDir,
			Attr:     attrFromUnix(doc.Atime, doc.Mtime, doc.Ctime, doc.Mode, doc.Nlink, doc.Uid, doc.Gid),
			RecordID: headID,
			chain:    chain,
			Children: make(map[string]Ino),
			Parent:   Ino(doc.Parent),
		}
		for _, e := range doc.Entries {
			in.addChild(e.Name, Ino(e.Ino))
		}
		return in, nil
	}

	doc, err := decodeFileDocument(data)
	if err != nil {
		return nil, &storage.CorruptRecordErr{ID: headID, Reason: err.Error()}
	}
	in := &Inode{
		Number:   ino,
		Kind:     KindFile,
		Attr:     attrFromUnix(doc.Atime, doc.Mtime, doc.Ctime, doc.Mode, doc.Nlink, doc.Uid, doc.Gid),
		RecordID: headID,
		chain:    chain,
		Blocks:   make(map[uint64]*Block),
	}
	in.Attr.Size = doc.Size
	for idx, recID := range doc.Blocks {
		if recID == "" {
			continue
		}
		in.Blocks[uint64(idx)] = &Block{Index: uint64(idx), RecordID: recID, Loaded: false}
	}
	return in, nil
}

// readChain walks a forward next-pointer chain starting at headID,
// concatenating each record's payload as returned by the backend.
// The decoder stops at the first record whose Next is absent.
func readChain(ctx context.Context, backend storage.Backend, headID string, wantRole storage.Role) ([]string, []byte, error) {
	var chunks [][]byte
	var ids []string
	id := headID
	for {
		rec, err := backend.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if rec.Role != wantRole {
			return nil, nil, &storage.CorruptRecordErr{ID: id, Reason: fmt.Sprintf("expected role %v, got %v", wantRole, rec.Role)}
		}
		ids = append(ids, id)
		chunks = append(chunks, rec.Payload)
		if rec.Next == "" {
			break
		}
		id = rec.Next
	}
	return ids, joinBytes(chunks), nil
}

func joinBytes(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// RootRecordID returns the current root record id (stable identity of
// the volume, suitable for --root-event on a future mount).
func (c *Cache) RootRecordID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rootChain) == 0 {
		return ""
	}
	return c.rootChain[0]
}

// CalendarID returns the backing backend's calendar id.
func (c *Cache) CalendarID() string { return c.backend.CalendarID() }

func (c *Cache) allocateIno() Ino {
	ino := Ino(c.nextIno)
	c.nextIno++
	return ino
}

func (c *Cache) markDirty(ino Ino) {
	c.dirtyInodes[ino] = true
	c.wake()
}

func (c *Cache) wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}
