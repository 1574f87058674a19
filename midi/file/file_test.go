package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func buildSMF(t *testing.T, format uint16, ppq uint16, trackChunks ...[]byte) string {
	t.Helper()

	buf := make([]byte, 0, 64)
	putU32 := func(v uint32) {
		buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	putU16 := func(v uint16) {
		buf = append(buf, byte(v>>8), byte(v))
	}

	putU32(mthdMagic)
	putU32(6)
	putU16(format)
	putU16(uint16(len(trackChunks)))
	putU16(ppq)

	for _, chunk := range trackChunks {
		putU32(mtrkMagic)
		putU32(uint32(len(chunk)))
		buf = append(buf, chunk...)
	}

	path := filepath.Join(t.TempDir(), "test.mid")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func endOfTrack() []byte { return []byte{0x00, 0xFF, 0x2F, 0x00} }

func TestSingleNoteFile(t *testing.T) {
	track1 := append([]byte{
		0x00, 0x90, 0x3C, 0x64, // NoteOn key60
		0x60, 0x80, 0x3C, 0x00, // NoteOff key60 after 96 ticks
	}, endOfTrack()...)

	path := buildSMF(t, 0, 96, track1)

	f, err := Open(path, true, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if f.PPQ != 96 || f.TrackCount != 1 {
		t.Fatalf("unexpected header: ppq=%d tracks=%d", f.PPQ, f.TrackCount)
	}

	if err := f.ParseAll(context.Background()); err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	if len(f.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(f.Events))
	}
	if len(f.Notes[60]) != 1 {
		t.Fatalf("expected 1 note at key 60, got %d", len(f.Notes[60]))
	}
	if f.Notes[60][0].End != 96 {
		t.Errorf("expected end=96 ticks, got %d", f.Notes[60][0].End)
	}
}

func TestTwoTrackTempoChangeMerge(t *testing.T) {
	// Track 0 holds a note ending at the tick where track 1 declares a tempo
	// change.
	track0 := append([]byte{
		0x00, 0x90, 0x3C, 0x64, // NoteOn key60 at t=0
		0x60, 0x80, 0x3C, 0x00, // NoteOff 96 ticks later
	}, endOfTrack()...)

	track1 := append([]byte{
		0x60, 0xFF, 0x51, 0x03, 0x03, 0xD0, 0x90, // tempo=250000us/qn at tick 96
	}, endOfTrack()...)

	path := buildSMF(t, 1, 96, track0, track1)

	f, err := Open(path, false, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if err := f.ParseAll(context.Background()); err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	if len(f.TempoEvs) != 1 || f.TempoEvs[0].TempoMicros != 250000 {
		t.Fatalf("expected merged tempo map with one 250000us entry, got %+v", f.TempoEvs)
	}

	notes := f.Notes[60]
	if len(notes) != 1 {
		t.Fatalf("expected 1 note at key 60, got %d", len(notes))
	}
	// The note ends exactly at tick 96, precisely where the tempo change
	// (declared in the other track) takes effect, so its entire duration is
	// billed at the original 500000us/qn tempo.
	if notes[0].End != 500000 {
		t.Errorf("expected end=500000us, got %d", notes[0].End)
	}
}

func TestFormat2Rejected(t *testing.T) {
	path := buildSMF(t, 2, 96, endOfTrack())

	_, err := Open(path, true, nil)
	if err != ErrFormat2 {
		t.Fatalf("expected ErrFormat2, got %v", err)
	}
}

func TestEmptyTrackFile(t *testing.T) {
	path := buildSMF(t, 0, 96, endOfTrack())

	f, err := Open(path, true, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if err := f.ParseAll(context.Background()); err != nil {
		t.Fatalf("ParseAll: %v", err)
	}

	if len(f.Events) != 0 {
		t.Errorf("expected 0 events, got %d", len(f.Events))
	}
	for key := range f.Notes {
		if len(f.Notes[key]) != 0 {
			t.Fatalf("expected no notes, got %d at key %d", len(f.Notes[key]), key)
		}
	}
}
