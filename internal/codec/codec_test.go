package codec

import (
	"bytes"
	"testing"

	"github.com/whenfs/whenfs/internal/storage"
)

func TestRoundTripFrame(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hello world"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, payload := range cases {
		text := EncodeRecordText(storage.RoleBlock, payload)
		role, got, err := DecodeRecordText(text)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if role != storage.RoleBlock {
			t.Fatalf("role = %v, want RoleBlock", role)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("got %v, want %v", got, payload)
		}
	}
}

func TestSplitJoinRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 3584)
	chunks := Split(data, 1000)
	if len(chunks) != 4 {
		t.Fatalf("len(chunks) = %d, want 4", len(chunks))
	}
	if got := Join(chunks); !bytes.Equal(got, data) {
		t.Fatalf("join mismatch")
	}
}

func TestSplitEmpty(t *testing.T) {
	chunks := Split(nil, 100)
	if len(chunks) != 1 || len(chunks[0]) != 0 {
		t.Fatalf("Split(nil) = %v, want one empty chunk", chunks)
	}
}

func TestDecodeFrameCorruptVersion(t *testing.T) {
	frame := EncodeFrame(storage.RoleBlock, []byte("data"))
	frame[0] = 0xFF
	if _, _, err := DecodeFrame(frame); err == nil {
		t.Fatal("expected error for unknown version")
	}
}

func TestDecodeFrameCorruptLength(t *testing.T) {
	frame := EncodeFrame(storage.RoleBlock, []byte("data"))
	frame = append(frame, 'x') // payload now longer than declared length
	if _, _, err := DecodeFrame(frame); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestDecodeFrameUnrecognizedRole(t *testing.T) {
	frame := EncodeFrame(storage.RoleBlock, []byte("data"))
	frame[1] = 0xEE
	if _, _, err := DecodeFrame(frame); err == nil {
		t.Fatal("expected error for unrecognized role")
	}
}

func TestDecodeTextInvalidTransport(t *testing.T) {
	if _, _, err := DecodeRecordText("not valid base64!!"); err == nil {
		t.Fatal("expected error for invalid transport encoding")
	}
}
