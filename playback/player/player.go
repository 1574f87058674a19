// Package player wires the timer, ring buffer, prerender producer, audio
// consumer and softsynth into the playback control surface applications use.
package player

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/MrCHB1/KansoMIDI/internal/logging"
	"github.com/MrCHB1/KansoMIDI/midi/track"
	"github.com/MrCHB1/KansoMIDI/playback/consumer"
	"github.com/MrCHB1/KansoMIDI/playback/limiter"
	"github.com/MrCHB1/KansoMIDI/playback/producer"
	"github.com/MrCHB1/KansoMIDI/playback/ring"
	"github.com/MrCHB1/KansoMIDI/playback/synth"
	"github.com/MrCHB1/KansoMIDI/playback/timer"
)

// syncTolerance is how far the read position may drift from where
// SyncPlayer computed it should be before the drift is worth correcting;
// below it, correcting would itself be audible as a micro-stutter.
const syncTolerance = 0.03

// restartLeadIn/restartLagOut bound how far a requested seek may land from
// the current player time before PlayAudio gives up nudging the existing
// stream and restarts the generator from scratch.
const (
	restartLeadIn = 0.01
	restartLagOut = 0.1
)

// Player is the top-level playback control surface: it owns a softsynth, a
// ring buffer decoupling it from the audio device, the producer goroutine
// that renders into the ring, and the consumer that the audio device reads
// from.
type Player struct {
	log *logging.Logger

	sampleRate int
	synth      synth.Synth

	ring     *ring.Buffer
	limiter  *limiter.Limiter
	clock    *timer.GlobalTimer
	producer *producer.Producer
	consumer *consumer.Consumer

	audioCtx    *audio.Context
	audioPlayer *audio.Player

	producerDone chan struct{}
	running      bool

	startTime float64
}

// New builds a Player rendering at sampleRate with a ring sized to hold
// bufferSeconds of lookahead audio.
func New(audioCtx *audio.Context, sampleRate int, bufferSeconds float64, log *logging.Logger) *Player {
	rb := ring.New(bufferSeconds, sampleRate)
	lim := limiter.New(0.002, 0.1, sampleRate)
	clock := timer.New()
	sy := synth.NewMeltySynth(sampleRate)
	prod := producer.New(rb, sy, nil, log)

	pl := &Player{
		log:        log,
		sampleRate: sampleRate,
		synth:      sy,
		ring:       rb,
		limiter:    lim,
		clock:      clock,
		producer:   prod,
		audioCtx:   audioCtx,
	}
	pl.consumer = consumer.New(rb, lim, clock, prod.Resetting)
	return pl
}

// LoadSoundfonts replaces the active SoundFont list.
func (pl *Player) LoadSoundfonts(paths []string) error {
	return pl.synth.SendEvent(synth.SetSoundfontsEvent(paths))
}

// SetLayerCount changes how many loaded SoundFonts are layered together.
func (pl *Player) SetLayerCount(n int) error {
	return pl.synth.SendEvent(synth.SetLayerCountEvent(n))
}

// SetMidiEvents replaces the time-ordered event stream a subsequent Start
// plays. events must already be merged and sorted (midi/file.ParseAll's
// output).
func (pl *Player) SetMidiEvents(events []track.MidiEvent) {
	pl.producer.SetEvents(events)
}

// SetTranspose sets the semitone shift applied to note keys.
func (pl *Player) SetTranspose(semitones int) {
	pl.producer.SetTranspose(semitones)
}

// SetAudioFPS sets the frame-rate event times are quantized to, 0 to
// disable quantization.
func (pl *Player) SetAudioFPS(fps float64) {
	pl.producer.SetAudioFPS(fps)
}

// BufferSeconds reports how much audio is currently queued ahead of the
// consumer (write_pos-read_pos, per §6), not the ring's fixed capacity.
func (pl *Player) BufferSeconds() float64 {
	return pl.ring.BufferedSeconds()
}

// PlayerTime reports the MIDI time currently being emitted by the consumer.
func (pl *Player) PlayerTime() float64 { return pl.ring.PlayerTime() }

// Paused reports whether playback is currently paused.
func (pl *Player) Paused() bool { return pl.clock.Paused() }

// Play resumes the transport clock (does not by itself start a generator;
// call Start/PlayAudio first).
func (pl *Player) Play() { pl.clock.Play() }

// Pause freezes the transport clock; the consumer emits silence while
// paused without tearing down the producer.
func (pl *Player) Pause() { pl.clock.Pause() }

// killGenerator stops any producer goroutine currently rendering and waits
// for it to fully exit before the caller reuses the ring.
func (pl *Player) killGenerator() {
	if !pl.running {
		return
	}
	pl.producer.RequestReset()
	<-pl.producerDone
	pl.ring.Zero()
	pl.running = false
}

// Start tears down any running generator and begins rendering the current
// event stream from time (scaled by speed), non-blocking.
func (pl *Player) Start(startTime, speed float64) {
	pl.killGenerator()

	pl.startTime = startTime / speed
	pl.producerDone = make(chan struct{})
	pl.running = true

	go func() {
		pl.producer.Run(pl.startTime, speed)
		close(pl.producerDone)
	}()

	if pl.audioPlayer == nil {
		ap, err := pl.audioCtx.NewPlayer(pl.consumer)
		if err != nil {
			pl.log.LogError("failed to create audio player: %v", err)
			return
		}
		pl.audioPlayer = ap
		pl.audioPlayer.Play()
	}
	pl.clock.Navigate(startTime)
	pl.clock.Play()
}

// Stop tears down the generator and audio player and rewinds the ring.
func (pl *Player) Stop() {
	pl.killGenerator()
	pl.ring.SetReadPos(0)
	pl.ring.SetWritePos(0)
	if pl.audioPlayer != nil {
		pl.audioPlayer.Close()
		pl.audioPlayer = nil
	}
	pl.clock.Reset()
}

// SyncPlayer nudges the ring's read position to correct drift between the
// transport's requested time and what the consumer is actually emitting,
// without tearing down the generator. Small drift (below syncTolerance) is
// left alone since correcting it would itself be audible.
func (pl *Player) SyncPlayer(requestedTime, speed float64) {
	readPos := pl.ring.ReadPos()
	t := requestedTime / speed
	current := pl.startTime + float64(readPos)/float64(pl.sampleRate)
	offset := t - current

	newPos := readPos + int64(offset*float64(pl.sampleRate))
	if newPos < 0 {
		newPos = 0
	}

	drift := readPos - newPos
	if drift < 0 {
		drift = -drift
	}
	if float64(drift)/float64(pl.sampleRate) > syncTolerance {
		pl.ring.SetReadPos(newPos)
	}
}

// PlayAudio requests playback at requestedTime/speed. If force is set, or if
// the requested time falls outside the ring's currently-buffered window, the
// generator is restarted from scratch; otherwise the existing stream is
// nudged into sync via SyncPlayer, avoiding an audible restart glitch.
func (pl *Player) PlayAudio(requestedTime, speed float64, force bool) {
	if !force {
		force = needsRestart(requestedTime, pl.PlayerTime(), pl.BufferSeconds())
	}

	if force {
		pl.Start(requestedTime, speed)
		return
	}
	pl.SyncPlayer(requestedTime, speed)
}

// needsRestart reports whether a requested seek falls far enough outside
// [playerTime, playerTime+bufferSeconds) that nudging the existing stream
// via SyncPlayer can no longer reach it without an audible jump, and the
// generator must be restarted from scratch instead.
func needsRestart(requestedTime, playerTime, bufferSeconds float64) bool {
	return requestedTime+restartLagOut > playerTime+bufferSeconds ||
		requestedTime+restartLeadIn < playerTime
}

// Close releases the underlying audio resources. The Player must not be used
// afterward.
func (pl *Player) Close() error {
	pl.killGenerator()
	if pl.audioPlayer != nil {
		if err := pl.audioPlayer.Close(); err != nil {
			return fmt.Errorf("closing audio player: %w", err)
		}
		pl.audioPlayer = nil
	}
	return nil
}
