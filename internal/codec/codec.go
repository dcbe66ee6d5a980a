// Package codec frames arbitrary byte strings into the bounded,
// text-safe payload of a single calendar event record, and splits
// logical objects that exceed one record's capacity into an ordered
// sequence of chunks the caller chains together via record ids.
//
// Framing: one-byte format version, one-byte role tag, four-byte
// big-endian payload length, then payload. The frame itself is
// transport-encoded (base64) before a caller hands it to a text-only
// remote field.
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/whenfs/whenfs/internal/storage"
)

// FormatVersion is the only version this build emits or accepts.
const FormatVersion uint8 = 1

// HeaderSize is the framed header length in bytes: version(1) + role(1) + length(4).
const HeaderSize = 6

// Split breaks data into chunks of at most capacity bytes, preserving
// order. An empty input yields a single empty chunk so that zero-byte
// logical objects still round-trip through exactly one record.
func Split(data []byte, capacity int) [][]byte {
	if capacity <= 0 {
		panic("codec: capacity must be positive")
	}
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for off := 0; off < len(data); off += capacity {
		end := off + capacity
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// Join concatenates chunks back into the original byte string.
func Join(chunks [][]byte) []byte {
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

// EncodeFrame wraps a single chunk's payload with the header.
func EncodeFrame(role storage.Role, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = FormatVersion
	frame[1] = byte(role)
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame
}

// DecodeFrame validates and strips the header, returning the role and payload.
func DecodeFrame(frame []byte) (storage.Role, []byte, error) {
	if len(frame) < HeaderSize {
		return 0, nil, &storage.CorruptRecordErr{Reason: "frame shorter than header"}
	}
	version := frame[0]
	if version != FormatVersion {
		return 0, nil, &storage.CorruptRecordErr{Reason: fmt.Sprintf("unknown format version %d", version)}
	}
	role := storage.Role(frame[1])
	switch role {
	case storage.RoleRoot, storage.RoleInodeFile, storage.RoleInodeDir, storage.RoleBlock:
	default:
		return 0, nil, &storage.CorruptRecordErr{Reason: fmt.Sprintf("unrecognized role tag %d", frame[1])}
	}
	declared := binary.BigEndian.Uint32(frame[2:6])
	payload := frame[HeaderSize:]
	if int(declared) != len(payload) {
		return 0, nil, &storage.CorruptRecordErr{Reason: fmt.Sprintf("declared length %d does not match actual %d", declared, len(payload))}
	}
	return role, payload, nil
}

// EncodeText produces the text-safe transport encoding of a frame,
// suitable for an event's description field.
func EncodeText(frame []byte) string {
	return base64.URLEncoding.EncodeToString(frame)
}

// DecodeText inverts EncodeText.
func DecodeText(s string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, &storage.CorruptRecordErr{Reason: fmt.Sprintf("invalid transport encoding: %v", err)}
	}
	return b, nil
}

// EncodeRecordText frames and transport-encodes payload in one step.
func EncodeRecordText(role storage.Role, payload []byte) string {
	return EncodeText(EncodeFrame(role, payload))
}

// DecodeRecordText inverts EncodeRecordText.
func DecodeRecordText(s string) (storage.Role, []byte, error) {
	frame, err := DecodeText(s)
	if err != nil {
		return 0, nil, err
	}
	return DecodeFrame(frame)
}
