// Package timer implements the wall-clock-anchored playback clock shared
// between the prerender producer and anything driving playback controls
// (play, pause, seek, speed change).
package timer

import (
	"sync"
	"time"
)

// GlobalTimer tracks the current MIDI playback position as an anchor
// wall-clock instant plus an anchor MIDI time, so GetTime is a cheap
// elapsed-time computation rather than something that needs polling a
// running clock continuously. Play/Pause/ChangeSpeed rebase the anchor so the
// reported time does not jump across those control changes; Navigate sets
// the reported time directly to the requested position.
type GlobalTimer struct {
	mu sync.Mutex

	anchor   time.Time
	midiTime float64
	paused   bool
	speed    float64
}

// New returns a GlobalTimer starting paused at t=0 and unit speed.
func New() *GlobalTimer {
	return &GlobalTimer{
		anchor: time.Now(),
		paused: true,
		speed:  1.0,
	}
}

// elapsedLocked returns the MIDI time implied by the current anchor, the
// caller must hold mu.
func (g *GlobalTimer) elapsedLocked() float64 {
	if g.paused {
		return g.midiTime
	}
	return g.midiTime + time.Since(g.anchor).Seconds()*g.speed
}

// GetTime returns the current MIDI playback position in seconds.
func (g *GlobalTimer) GetTime() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.elapsedLocked()
}

// Play resumes playback from the current position, rebasing the anchor to
// now so elapsed time accrues from this instant forward.
func (g *GlobalTimer) Play() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.anchor = time.Now()
	g.paused = false
}

// Pause freezes playback at the current position.
func (g *GlobalTimer) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.midiTime = g.elapsedLocked()
	g.paused = true
}

// Navigate jumps to an arbitrary MIDI time, preserving the current
// play/pause state.
func (g *GlobalTimer) Navigate(t float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.anchor = time.Now()
	g.midiTime = t
}

// ChangeSpeed adjusts the playback speed multiplier without discontinuity:
// the current elapsed time is folded into midiTime before the anchor and
// speed are updated, so GetTime stays continuous across the change.
func (g *GlobalTimer) ChangeSpeed(speed float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.midiTime = g.elapsedLocked()
	g.anchor = time.Now()
	g.speed = speed
}

// Reset stops playback and returns to t=0.
func (g *GlobalTimer) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.midiTime = 0
	g.paused = true
}

// Paused reports whether the timer is currently paused.
func (g *GlobalTimer) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Speed returns the current speed multiplier.
func (g *GlobalTimer) Speed() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speed
}
