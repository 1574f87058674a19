// Package limiter implements the stereo peak-following soft limiter applied
// to rendered audio just before it reaches the output device, preventing
// clipping without a hard ceiling that would audibly chop transients.
package limiter

import "math"

// Limiter tracks a separate loudness envelope per channel (attack when the
// signal is louder than the envelope, falloff otherwise) and divides the
// signal by that envelope so it never exceeds unity gain. A secondary
// "velocity" envelope tracks how much correction is being applied, useful
// for metering but not fed back into the gain computation.
type Limiter struct {
	loudnessL, loudnessR float64
	velocityL, velocityR float64

	attack  float64 // attack time constant, pre-multiplied by sample rate
	falloff float64 // release time constant, pre-multiplied by sample rate
	strength float64
	minThreshold float64
}

// New builds a Limiter for the given attack/release times (seconds) and
// sample rate. Strength defaults to 1.0 (full correction) and minThreshold
// to 0.4, matching the defaults the rest of the pipeline expects.
func New(attackSeconds, releaseSeconds float64, sampleRate int) *Limiter {
	return &Limiter{
		loudnessL:    1.0,
		loudnessR:    1.0,
		attack:       attackSeconds * float64(sampleRate),
		falloff:      releaseSeconds * float64(sampleRate),
		strength:     1.0,
		minThreshold: 0.4,
	}
}

// Apply limits buffer in place. buffer is interleaved stereo; its length
// must be even.
func (l *Limiter) Apply(buffer []float32) {
	for i := 0; i+1 < len(buffer); i += 2 {
		lAbs := math.Abs(float64(buffer[i]))
		rAbs := math.Abs(float64(buffer[i+1]))

		if l.loudnessL > lAbs {
			l.loudnessL = (l.loudnessL*l.falloff + lAbs) / (l.falloff + 1.0)
		} else {
			l.loudnessL = (l.loudnessL*l.attack + lAbs) / (l.attack + 1.0)
		}
		if l.loudnessR > rAbs {
			l.loudnessR = (l.loudnessR*l.falloff + rAbs) / (l.falloff + 1.0)
		} else {
			l.loudnessR = (l.loudnessR*l.attack + rAbs) / (l.attack + 1.0)
		}

		if l.loudnessL < l.minThreshold {
			l.loudnessL = l.minThreshold
		}
		if l.loudnessR < l.minThreshold {
			l.loudnessR = l.minThreshold
		}

		outL := float64(buffer[i]) / (l.loudnessL*l.strength + 2.0*(1.0-l.strength)) / 2.0
		outR := float64(buffer[i+1]) / (l.loudnessR*l.strength + 2.0*(1.0-l.strength)) / 2.0

		if i != 0 {
			dl := math.Abs(float64(buffer[i]) - outL)
			dr := math.Abs(float64(buffer[i+1]) - outR)

			if l.velocityL > dl {
				l.velocityL = (l.velocityL*l.falloff + dl) / (l.falloff + 1.0)
			} else {
				l.velocityL = (l.velocityL*l.attack + dl) / (l.attack + 1.0)
			}
			if l.velocityR > dr {
				l.velocityR = (l.velocityR*l.falloff + dr) / (l.falloff + 1.0)
			} else {
				l.velocityR = (l.velocityR*l.attack + dr) / (l.attack + 1.0)
			}
		}

		buffer[i] = float32(outL)
		buffer[i+1] = float32(outR)
	}
}

// Velocity returns the current left/right correction-rate envelopes, useful
// for VU-style metering.
func (l *Limiter) Velocity() (float64, float64) { return l.velocityL, l.velocityR }

// SetStrength adjusts how much of the computed gain reduction is actually
// applied: 1.0 is full correction, 0.0 passes audio through unlimited.
func (l *Limiter) SetStrength(s float64) { l.strength = s }
