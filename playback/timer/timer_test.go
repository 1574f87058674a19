package timer

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestPauseThenPlayIsContinuous(t *testing.T) {
	g := New()
	g.Navigate(5.0)
	g.Play()
	time.Sleep(20 * time.Millisecond)
	g.Pause()
	t1 := g.GetTime()
	if !almostEqual(t1, 5.02, 0.01) {
		t.Fatalf("expected ~5.02s after 20ms play, got %v", t1)
	}

	g.Play()
	time.Sleep(20 * time.Millisecond)
	g.Pause()
	t2 := g.GetTime()
	if !almostEqual(t2, 5.04, 0.01) {
		t.Fatalf("expected ~5.04s after a second 20ms play, got %v", t2)
	}
}

func TestNavigateWhilePausedIsExact(t *testing.T) {
	g := New()
	g.Navigate(42.5)
	if got := g.GetTime(); got != 42.5 {
		t.Fatalf("expected exact 42.5, got %v", got)
	}
	if !g.Paused() {
		t.Fatalf("expected timer to remain paused after navigate")
	}
}

func TestChangeSpeedPreservesPosition(t *testing.T) {
	g := New()
	g.Navigate(0)
	g.Play()
	time.Sleep(10 * time.Millisecond)
	g.ChangeSpeed(2.0)
	before := g.GetTime()
	time.Sleep(10 * time.Millisecond)
	after := g.GetTime()

	if after <= before {
		t.Fatalf("expected time to keep advancing after speed change: before=%v after=%v", before, after)
	}
	// At 2x speed, 10ms of wall-clock should advance MIDI time by ~20ms.
	if !almostEqual(after-before, 0.02, 0.01) {
		t.Fatalf("expected ~20ms advance at 2x speed, got %v", after-before)
	}
}

func TestResetReturnsToZeroAndPauses(t *testing.T) {
	g := New()
	g.Navigate(10)
	g.Play()
	g.Reset()
	if got := g.GetTime(); got != 0 {
		t.Fatalf("expected 0 after reset, got %v", got)
	}
	if !g.Paused() {
		t.Fatalf("expected paused after reset")
	}
}
