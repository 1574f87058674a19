package reader

import (
	"io"
	"sync"
	"testing"
)

type memHandle []byte

func (m memHandle) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m)) {
		return 0, io.EOF
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestReadWithinWindow(t *testing.T) {
	data := memHandle{1, 2, 3, 4, 5, 6, 7, 8}
	var mu sync.Mutex

	r, err := New(data, &mu, 2, 4, 8) // window [2,6): bytes 3,4,5,6
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b, err := r.ReadByte()
	if err != nil || b != 3 {
		t.Fatalf("expected 3, got %d err=%v", b, err)
	}

	var buf [2]byte
	if err := r.Read(buf[:], 2); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if buf[0] != 4 || buf[1] != 5 {
		t.Fatalf("expected [4,5], got %v", buf)
	}
}

func TestReadPastWindowIsOutOfRange(t *testing.T) {
	data := memHandle{1, 2, 3, 4, 5, 6, 7, 8}
	var mu sync.Mutex

	r, err := New(data, &mu, 2, 4, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.SkipBytes(4); err != nil {
		t.Fatalf("SkipBytes to end of window: %v", err)
	}
	if _, err := r.ReadByte(); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestOversizedReadRejected(t *testing.T) {
	data := memHandle{1, 2, 3, 4}
	var mu sync.Mutex

	r, err := New(data, &mu, 0, 4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var buf [3]byte
	if err := r.Read(buf[:], 3); err != ErrOversizedRead {
		t.Fatalf("expected ErrOversizedRead, got %v", err)
	}
}

func TestSeekTriggersRefillAcrossWindowBoundary(t *testing.T) {
	data := make(memHandle, 20)
	for i := range data {
		data[i] = byte(i)
	}
	var mu sync.Mutex

	// Small buffer forces a refill when seeking past the first window.
	r, err := New(data, &mu, 0, 20, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.Seek(10, OriginStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	b, err := r.ReadByte()
	if err != nil || b != 10 {
		t.Fatalf("expected byte 10 after seek, got %d err=%v", b, err)
	}
}

func TestSeekWithinWindowDoesNotRefill(t *testing.T) {
	data := make(memHandle, 20)
	for i := range data {
		data[i] = byte(i)
	}
	var mu sync.Mutex

	r, err := New(data, &mu, 0, 20, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.Seek(3, OriginStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	b, err := r.ReadByte()
	if err != nil || b != 3 {
		t.Fatalf("expected byte 3, got %d err=%v", b, err)
	}
}

func TestReadUint32BE(t *testing.T) {
	data := memHandle{0x00, 0x00, 0x01, 0x00, 0xFF}
	var mu sync.Mutex

	r, err := New(data, &mu, 0, 5, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	v, err := r.ReadUint32BE()
	if err != nil {
		t.Fatalf("ReadUint32BE: %v", err)
	}
	if v != 256 {
		t.Fatalf("expected 256, got %d", v)
	}
}
