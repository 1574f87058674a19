package consumer

import (
	"encoding/binary"
	"testing"

	"github.com/MrCHB1/KansoMIDI/playback/limiter"
	"github.com/MrCHB1/KansoMIDI/playback/ring"
	"github.com/MrCHB1/KansoMIDI/playback/timer"
)

func neverResetting() bool { return false }

func newClock(paused bool) *timer.GlobalTimer {
	gt := timer.New()
	if !paused {
		gt.Play()
	}
	return gt
}

func decodeFrame(p []byte, i int) (int16, int16) {
	l := int16(binary.LittleEndian.Uint16(p[i*4:]))
	r := int16(binary.LittleEndian.Uint16(p[i*4+2:]))
	return l, r
}

func TestReadZerosWhilePaused(t *testing.T) {
	rb := ring.New(1, 1000)
	lim := limiter.New(0.01, 0.05, 1000)
	c := New(rb, lim, newClock(true), neverResetting)

	p := make([]byte, 4*10)
	for i := range p {
		p[i] = 0xAA
	}
	n, err := c.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read returned (%d, %v)", n, err)
	}
	for i := 0; i < 10; i++ {
		l, r := decodeFrame(p, i)
		if l != 0 || r != 0 {
			t.Fatalf("frame %d not silent while paused: (%d, %d)", i, l, r)
		}
	}
}

func TestReadZerosWhileResetting(t *testing.T) {
	rb := ring.New(1, 1000)
	lim := limiter.New(0.01, 0.05, 1000)
	c := New(rb, lim, newClock(false), func() bool { return true })

	p := make([]byte, 4*10)
	c.Read(p)
	for i := 0; i < 10; i++ {
		l, r := decodeFrame(p, i)
		if l != 0 || r != 0 {
			t.Fatalf("frame %d not silent while resetting: (%d, %d)", i, l, r)
		}
	}
}

func TestReadCopiesBufferedFramesAndAdvancesReadPos(t *testing.T) {
	rb := ring.New(1, 1000)
	// Prime 5 buffered frames of a constant, easily-recognizable signal.
	rb.WriteWrapped(0, 5, func(dst []float32) {
		for i := 0; i < len(dst); i += 2 {
			dst[i] = 0.5
			dst[i+1] = -0.5
		}
	})
	rb.AdvanceWritePos(5)

	lim := limiter.New(0.01, 0.05, 1000)
	c := New(rb, lim, newClock(false), neverResetting)

	p := make([]byte, 4*5)
	c.Read(p)

	if rb.ReadPos() != 5 {
		t.Fatalf("expected ReadPos to advance by the requested frame count, got %d", rb.ReadPos())
	}
	// Non-silent output is expected; the limiter may attenuate magnitude
	// but must preserve the sign distinction between channels.
	l, r := decodeFrame(p, 0)
	if l <= 0 || r >= 0 {
		t.Fatalf("expected positive left / negative right sample, got (%d, %d)", l, r)
	}
}

func TestReadZeroPadsOnUnderrun(t *testing.T) {
	rb := ring.New(1, 1000)
	rb.WriteWrapped(0, 2, func(dst []float32) {
		for i := range dst {
			dst[i] = 1
		}
	})
	rb.AdvanceWritePos(2)

	lim := limiter.New(0.01, 0.05, 1000)
	c := New(rb, lim, newClock(false), neverResetting)

	p := make([]byte, 4*5) // ask for 5 frames, only 2 are buffered
	c.Read(p)

	for i := 2; i < 5; i++ {
		l, r := decodeFrame(p, i)
		if l != 0 || r != 0 {
			t.Fatalf("frame %d should be zero-padded on underrun, got (%d, %d)", i, l, r)
		}
	}
	if rb.ReadPos() != 5 {
		t.Fatalf("readPos must advance by the requested count even on underrun, got %d", rb.ReadPos())
	}
}
