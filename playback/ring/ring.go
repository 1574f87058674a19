// Package ring implements the interleaved-stereo float ring buffer that
// decouples the prerender producer (writer) from the audio device callback
// (reader). Positions are tracked in frames, not bytes, and are never
// allowed to let the writer lap the reader.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity interleaved stereo ring: buf[2*i] and
// buf[2*i+1] are the left/right samples of frame i mod Frames(). readPos and
// writePos are monotonically increasing frame counters (not wrapped); the
// wrap happens only when indexing into buf.
type Buffer struct {
	buf        []float32
	frames     int
	sampleRate int

	readPos  atomic.Int64
	writePos atomic.Int64

	startTime float64 // seconds represented by readPos==0 for the current playback run
}

// New allocates a ring sized to hold seconds of audio at sampleRate.
func New(seconds float64, sampleRate int) *Buffer {
	frames := int(seconds * float64(sampleRate))
	if frames < 1 {
		frames = 1
	}
	return &Buffer{
		buf:        make([]float32, frames*2),
		frames:     frames,
		sampleRate: sampleRate,
	}
}

// Frames returns the ring's capacity in frames.
func (b *Buffer) Frames() int { return b.frames }

// SampleRate returns the configured sample rate.
func (b *Buffer) SampleRate() int { return b.sampleRate }

// ReadPos returns the consumer's current frame position.
func (b *Buffer) ReadPos() int64 { return b.readPos.Load() }

// WritePos returns the producer's current frame position.
func (b *Buffer) WritePos() int64 { return b.writePos.Load() }

// SetReadPos sets the consumer's frame position directly (used for seeking).
func (b *Buffer) SetReadPos(p int64) { b.readPos.Store(p) }

// SetWritePos sets the producer's frame position directly.
func (b *Buffer) SetWritePos(p int64) { b.writePos.Store(p) }

// AdvanceWritePos moves the writer forward by n frames.
func (b *Buffer) AdvanceWritePos(n int64) { b.writePos.Add(n) }

// AdvanceReadPos moves the reader forward by n frames.
func (b *Buffer) AdvanceReadPos(n int64) { b.readPos.Add(n) }

// Reset zeroes both positions and the start time, leaving buffered samples
// in place (they will be overwritten before they're read again).
func (b *Buffer) Reset() {
	b.readPos.Store(0)
	b.writePos.Store(0)
	b.startTime = 0
}

// SetStartTime records the MIDI time that readPos==0 corresponds to for the
// current playback run, so PlayerTime can report an absolute position.
func (b *Buffer) SetStartTime(t float64) { b.startTime = t }

// StartTime returns the MIDI time readPos==0 corresponds to.
func (b *Buffer) StartTime() float64 { return b.startTime }

// BufferedSeconds reports how much audio is queued ahead of the reader.
func (b *Buffer) BufferedSeconds() float64 {
	diff := b.writePos.Load() - b.readPos.Load()
	if diff < 0 {
		diff = 0
	}
	return float64(diff) / float64(b.sampleRate)
}

// PlayerTime reports the absolute MIDI time the consumer is currently
// emitting, derived from the ring's start time and read position.
func (b *Buffer) PlayerTime() float64 {
	return b.startTime + float64(b.readPos.Load())/float64(b.sampleRate)
}

// WriteWrapped calls fill once or twice with sub-slices of the ring's
// backing array, splitting at the wrap boundary so the producer never has
// to reason about wraparound itself. startFrame and frames are both in
// frames (not interleaved samples).
func (b *Buffer) WriteWrapped(startFrame int64, frames int, fill func(dst []float32)) {
	n := len(b.buf)
	start := int(startFrame) * 2 % n
	count := frames * 2
	if start+count > n {
		fill(b.buf[start:n])
		count -= n - start
		fill(b.buf[:count])
	} else {
		fill(b.buf[start : start+count])
	}
}

// ReadInto copies len(dst)/2 frames starting at readFrame (wrapping as
// needed) into dst, which must hold an even number of samples.
func (b *Buffer) ReadInto(readFrame int64, dst []float32) {
	n := len(b.buf)
	start := int(readFrame) * 2 % n
	for i := range dst {
		dst[i] = b.buf[(start+i)%n]
	}
}

// Zero clears the entire backing buffer, used when stopping playback so a
// subsequent start doesn't replay stale samples.
func (b *Buffer) Zero() {
	for i := range b.buf {
		b.buf[i] = 0
	}
}
