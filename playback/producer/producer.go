// Package producer implements the prerender producer: the goroutine that
// paces dispatch of a merged MIDI event stream into a softsynth and pulls
// rendered PCM into the ring buffer ahead of the audio device callback.
package producer

import (
	"sync/atomic"

	"github.com/MrCHB1/KansoMIDI/internal/logging"
	"github.com/MrCHB1/KansoMIDI/midi/track"
	"github.com/MrCHB1/KansoMIDI/playback/ring"
	"github.com/MrCHB1/KansoMIDI/playback/synth"
)

// Producer drives Synth.SendEvent/ReadSamples against a time-ordered event
// stream, writing rendered audio into a ring.Buffer no faster than its
// capacity allows and shedding low-velocity notes under backpressure.
type Producer struct {
	ring  *ring.Buffer
	synth synth.Synth
	log   *logging.Logger

	events    []track.MidiEvent
	transpose int
	audioFPS  float64

	resetRequested atomic.Bool
}

// New builds a Producer over ring, dispatching into synth. events must
// already be time-ordered (the output of midi/file.ParseAll).
func New(rb *ring.Buffer, s synth.Synth, events []track.MidiEvent, log *logging.Logger) *Producer {
	return &Producer{ring: rb, synth: s, events: events, log: log}
}

// SetEvents replaces the event stream a subsequent Run will play.
func (p *Producer) SetEvents(events []track.MidiEvent) { p.events = events }

// SetTranspose sets the semitone shift applied to NoteOn/NoteOff keys.
func (p *Producer) SetTranspose(semitones int) { p.transpose = semitones }

// SetAudioFPS sets the frame-rate event times are quantized to before
// conversion to samples; 0 disables quantization.
func (p *Producer) SetAudioFPS(fps float64) { p.audioFPS = fps }

// RequestReset asks a running Run to stop as soon as it next checks, used
// both to abort a generator thread and to let play_audio force a restart.
func (p *Producer) RequestReset() { p.resetRequested.Store(true) }

// Resetting reports whether a reset is currently in flight. The audio
// consumer checks this to avoid reading stale ring contents while a
// restart is tearing down the previous generator.
func (p *Producer) Resetting() bool { return p.resetRequested.Load() }

// skippingVelocity returns the minimum NoteOn/NoteOff velocity that will
// still be dispatched given the current buffer backlog: as write_pos falls
// behind read_pos (the consumer catching up to an underfilled buffer), the
// threshold rises, shedding quieter notes first to let the producer regain
// headroom without an audible silence gap.
func skippingVelocity(writePos, readPos int64) uint8 {
	diff := 127 + 10 - int((writePos-readPos)/100)
	if diff > 127 {
		diff = 127
	}
	if diff < 0 {
		diff = 0
	}
	return uint8(diff)
}

// Run renders audio until every event has been dispatched and the ring
// stays topped up, looping on silence thereafter until RequestReset is
// called. It is meant to run in its own goroutine; the caller is
// responsible for calling RequestReset and waiting for Run to return before
// starting another Run over the same ring.
func (p *Producer) Run(startTime, speed float64) {
	p.resetRequested.Store(false)

	p.ring.SetReadPos(0)
	p.ring.SetWritePos(0)
	p.ring.SetStartTime(startTime)

	sampleRate := float64(p.ring.SampleRate())
	capacity := int64(p.ring.Frames())

	fill := func(dst []float32) { p.synth.ReadSamples(dst) }

	for _, ev := range p.events {
		isNote := ev.Kind == track.NoteOn || ev.Kind == track.NoteOff
		if isNote && ev.TimeSeconds/speed < startTime {
			continue
		}

		if p.ring.WritePos() < p.ring.ReadPos() {
			p.ring.SetWritePos(p.ring.ReadPos())
		}

		evTime := ev.TimeSeconds / speed
		var offset float64
		if p.audioFPS > 0 {
			offset = floorToFPS(evTime, p.audioFPS)/p.audioFPS - startTime
		} else {
			offset = evTime - startTime
		}

		target := int64(offset*sampleRate) - p.ring.WritePos()
		if target > 0 {
			p.pace(target, capacity, fill)
		}

		switch ev.Kind {
		case track.NoteOn:
			p.dispatchNote(ev, true)
		case track.NoteOff:
			p.dispatchNote(ev, false)
		case track.Control:
			p.synth.SendEvent(synth.ControlEvent(ev.Channel, ev.Data1, ev.Data2))
		case track.PitchBend:
			p.synth.SendEvent(synth.PitchBendEvent(ev.Channel, ev.Data1, ev.Data2))
		}

		if p.resetRequested.Load() {
			break
		}
	}

	p.drain(capacity, fill)
	p.synth.SendEvent(synth.AllNotesKilledEvent())
}

func floorToFPS(t, fps float64) float64 {
	return float64(int64(t*fps))
}

// pace writes `target` frames of audio, splitting the write into chunks so
// the producer never gets more than capacity frames ahead of the consumer.
// It spin-waits, bounded only by resetRequested, whenever the consumer
// hasn't caught up enough to make room.
func (p *Producer) pace(target, capacity int64, fill func([]float32)) {
	samples := target
	for p.ring.WritePos()+samples > p.ring.ReadPos()+capacity {
		spare := p.ring.ReadPos() + capacity - p.ring.WritePos()
		if spare > 0 {
			if spare > samples {
				spare = samples
			}
			if spare != 0 {
				p.ring.WriteWrapped(p.ring.WritePos(), int(spare), fill)
				samples -= spare
				p.ring.AdvanceWritePos(spare)
			}
			if samples == 0 {
				break
			}
		}
		if p.resetRequested.Load() {
			break
		}
	}
	if samples != 0 {
		p.ring.WriteWrapped(p.ring.WritePos(), int(samples), fill)
	}
	p.ring.AdvanceWritePos(samples)
}

func (p *Producer) dispatchNote(ev track.MidiEvent, isOn bool) {
	key := int(ev.Data1) + p.transpose
	if key < 0 || key > 255 {
		return
	}

	vel := ev.Data2
	if vel < skippingVelocity(p.ring.WritePos(), p.ring.ReadPos()) {
		return
	}
	if vel < 15 {
		return
	}

	if isOn {
		p.synth.SendEvent(synth.NoteOnEvent(ev.Channel, uint8(key), vel))
	} else {
		p.synth.SendEvent(synth.NoteOffEvent(ev.Channel, uint8(key)))
	}
}

// drain keeps the ring topped up with rendered audio (release tails,
// silence) after the last event, until a reset is requested.
func (p *Producer) drain(capacity int64, fill func([]float32)) {
	for !p.resetRequested.Load() {
		spare := p.ring.ReadPos() + capacity - p.ring.WritePos()
		if spare > 0 {
			p.ring.WriteWrapped(p.ring.WritePos(), int(spare), fill)
			p.ring.AdvanceWritePos(spare)
		}
	}
}
