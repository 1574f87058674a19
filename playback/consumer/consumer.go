// Package consumer implements the audio device side of playback: an
// io.Reader that ebiten/v2/audio can pull PCM bytes from, backed by the
// ring buffer the prerender producer fills.
package consumer

import (
	"encoding/binary"

	"github.com/MrCHB1/KansoMIDI/playback/limiter"
	"github.com/MrCHB1/KansoMIDI/playback/ring"
	"github.com/MrCHB1/KansoMIDI/playback/timer"
)

// Consumer reads rendered frames out of a ring.Buffer, applies a limiter and
// encodes the result as interleaved little-endian 16-bit stereo PCM.
type Consumer struct {
	ring      *ring.Buffer
	limiter   *limiter.Limiter
	clock     *timer.GlobalTimer
	resetting func() bool

	scratch []float32
}

// New builds a Consumer. resetting reports whether the producer currently
// has a reset in flight (the ring contents are not trustworthy while true).
func New(rb *ring.Buffer, lim *limiter.Limiter, clock *timer.GlobalTimer, resetting func() bool) *Consumer {
	return &Consumer{ring: rb, limiter: lim, clock: clock, resetting: resetting}
}

// Read implements io.Reader for an ebiten/v2/audio player source. len(p) must
// be a multiple of 4 (2 channels * 2 bytes); it always fills p completely and
// never returns an error, matching a live device callback rather than a
// finite stream.
func (c *Consumer) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if cap(c.scratch) < frames*2 {
		c.scratch = make([]float32, frames*2)
	}
	buf := c.scratch[:frames*2]

	if c.clock.Paused() || c.resetting() {
		for i := range buf {
			buf[i] = 0
		}
	} else {
		c.fill(buf, int64(frames))
		c.limiter.Apply(buf)
	}

	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(toInt16(buf[i*2])))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(toInt16(buf[i*2+1])))
	}
	return len(p), nil
}

// fill copies as many of the requested frames as are actually buffered,
// zero-padding the remainder on an underrun, then always advances readPos by
// the full frame count so playback position tracks wall-clock time even
// when starved.
func (c *Consumer) fill(buf []float32, frames int64) {
	readPos := c.ring.ReadPos()
	writePos := c.ring.WritePos()

	available := writePos - readPos
	if available < 0 {
		available = 0
	}
	copyFrames := frames
	if available < copyFrames {
		copyFrames = available
	}

	if copyFrames > 0 {
		c.ring.ReadInto(readPos, buf[:copyFrames*2])
	}
	for i := copyFrames * 2; i < int64(len(buf)); i++ {
		buf[i] = 0
	}

	c.ring.AdvanceReadPos(frames)
}

func toInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
