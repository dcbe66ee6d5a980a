// Package cache implements the write-through object cache: the
// in-memory filesystem graph (inode table, per-inode block map, dirty
// queue, identity map) that the filesystem adapter reads and writes,
// and that flushes to a storage.Backend in the background.
package cache

import (
	"time"

	"github.com/whenfs/whenfs/internal/storage"
)

// Ino is a locally assigned, mount-lifetime-stable inode number.
type Ino uint64

// RootIno is the inode number of the volume's root directory.
const RootIno Ino = 1

// Kind distinguishes file inodes from directory inodes.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

// Attr holds the standard POSIX attributes tracked for every inode.
type Attr struct {
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Mode  uint32
	Nlink uint32
	Uid   uint32
	Gid   uint32
}

// Block is a fixed-maximum-size chunk of file content.
type Block struct {
	Index    uint64
	Data     []byte
	Dirty    bool
	Loaded   bool // false when only RecordID is known (mount recovery, not yet read)
	RecordID string // "" until first flush
	version  int    // bumped on every write; detects stale in-flight flushes
}

// Inode is the in-memory representation of a file or directory.
type Inode struct {
	Number   Ino
	Kind     Kind
	Attr     Attr
	RecordID string // "" until first flush; never changes once assigned

	// Files only.
	Blocks map[uint64]*Block

	// Directories only. Children maps name to child inode number;
	// order preserves insertion order for readdir.
	Children map[string]Ino
	order    []string

	// Parent is the containing directory's inode number, maintained
	// for files and directories alike. Directories use it to resolve
	// ".." (the root directory is its own parent); Fsync uses it on
	// every kind to climb the tree and flush dirty ancestors.
	Parent Ino

	dirty   bool
	handles int
	chain   []string // record ids of this inode's document chain, head first
}

func newInode(number Ino, kind Kind, mode uint32, now time.Time) *Inode {
	attr := Attr{
		Atime: now,
		Mtime: now,
		Ctime: now,
		Mode:  mode,
		Nlink: 1,
	}
	in := &Inode{Number: number, Kind: kind, Attr: attr, dirty: true}
	if kind == KindFile {
		in.Blocks = make(map[uint64]*Block)
	} else {
		in.Children = make(map[string]Ino)
		attr.Nlink = 2 // "." and the parent's entry
		in.Attr = attr
	}
	return in
}

func (in *Inode) addChild(name string, child Ino) {
	if _, exists := in.Children[name]; !exists {
		in.order = append(in.order, name)
	}
	in.Children[name] = child
}

func (in *Inode) removeChild(name string) {
	if _, exists := in.Children[name]; !exists {
		return
	}
	delete(in.Children, name)
	for i, n := range in.order {
		if n == name {
			in.order = append(in.order[:i], in.order[i+1:]...)
			break
		}
	}
}

// OrderedChildren returns child names in insertion order.
func (in *Inode) OrderedChildren() []string {
	return append([]string(nil), in.order...)
}

// blockSpan returns the number of blocks that size bytes span; their
// indices are 0 through blockSpan-1.
func blockSpan(size int64, blockSize int) uint64 {
	if size == 0 {
		return 0
	}
	n := (size + int64(blockSize) - 1) / int64(blockSize)
	return uint64(n)
}

func roleFor(kind Kind) storage.Role {
	if kind == KindDir {
		return storage.RoleInodeDir
	}
	return storage.RoleInodeFile
}
