package cache

import (
	"encoding/json"
	"time"
)

// The cache persists inodes, directories, and the root record as JSON
// documents, chunked by codec.Split when they exceed one record's
// payload capacity. No serialization library appears anywhere in the
// retrieval pack (the closest relatives, protobuf/gRPC, arrive only
// as transitive dependencies of the Google API client); encoding/json
// is the stdlib choice every complete repo in the pack reaches for
// when it needs a textual wire format, so it is used here too.

type fileDocument struct {
	Size  int64  `json:"size"`
	Atime int64  `json:"atime"`
	Mtime int64  `json:"mtime"`
	Ctime int64  `json:"ctime"`
	Mode  uint32 `json:"mode"`
	Nlink uint32 `json:"nlink"`
	Uid   uint32 `json:"uid"`
	Gid   uint32 `json:"gid"`
	// Blocks holds one record id per block index, in order; "" marks
	// an index with no block record: a hole below a later block (read
	// back as zeros) or a block that had not flushed when the document
	// was encoded.
	Blocks []string `json:"blocks"`
}

type dirEntryDocument struct {
	Name string `json:"name"`
	Ino  uint64 `json:"ino"`
}

type dirDocument struct {
	Atime   int64              `json:"atime"`
	Mtime   int64              `json:"mtime"`
	Ctime   int64              `json:"ctime"`
	Mode    uint32             `json:"mode"`
	Nlink   uint32             `json:"nlink"`
	Uid     uint32             `json:"uid"`
	Gid     uint32             `json:"gid"`
	Parent  uint64             `json:"parent"`
	Entries []dirEntryDocument `json:"entries"`
}

type rootTableEntry struct {
	Ino      uint64 `json:"ino"`
	RecordID string `json:"id"`
	IsDir    bool   `json:"dir"`
}

type rootDocument struct {
	Version   uint8            `json:"v"`
	BlockSize int              `json:"block_size"`
	RootIno   uint64           `json:"root_ino"`
	Entries   []rootTableEntry `json:"entries"`
}

func encodeFileDocument(in *Inode) ([]byte, error) {
	doc := fileDocument{
		Size:  in.Attr.Size,
		Atime: in.Attr.Atime.Unix(),
		Mtime: in.Attr.Mtime.Unix(),
		Ctime: in.Attr.Ctime.Unix(),
		Mode:  in.Attr.Mode,
		Nlink: in.Attr.Nlink,
		Uid:   in.Attr.Uid,
		Gid:   in.Attr.Gid,
	}
	maxIdx := uint64(0)
	for idx := range in.Blocks {
		if idx+1 > maxIdx {
			maxIdx = idx + 1
		}
	}
	doc.Blocks = make([]string, maxIdx)
	for idx, blk := range in.Blocks {
		doc.Blocks[idx] = blk.RecordID
	}
	return json.Marshal(doc)
}

func decodeFileDocument(data []byte) (fileDocument, error) {
	var doc fileDocument
	err := json.Unmarshal(data, &doc)
	return doc, err
}

func encodeDirDocument(in *Inode) ([]byte, error) {
	doc := dirDocument{
		Atime: in.Attr.Atime.Unix(),
		Mtime: in.Attr.Mtime.Unix(),
		Ctime: in.Attr.Ctime.Unix(),
		Mode:  in.Attr.Mode,
		Nlink: in.Attr.Nlink,
		Uid:   in.Attr.Uid,
		Gid:   in.Attr.Gid,
		Parent: uint64(in.Parent),
	}
	for _, name := range in.order {
		doc.Entries = append(doc.Entries, dirEntryDocument{Name: name, Ino: uint64(in.Children[name])})
	}
	return json.Marshal(doc)
}

func decodeDirDocument(data []byte) (dirDocument, error) {
	var doc dirDocument
	err := json.Unmarshal(data, &doc)
	return doc, err
}

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func attrFromUnix(atime, mtime, ctime int64, mode uint32, nlink, uid, gid uint32) Attr {
	return Attr{
		Atime: time.Unix(atime, 0).UTC(),
		Mtime: time.Unix(mtime, 0).UTC(),
		Ctime: time.Unix(ctime, 0).UTC(),
		Mode:  mode,
		Nlink: nlink,
		Uid:   uid,
		Gid:   gid,
	}
}
