// Package cue plays short audible ticks around a recording session so
// the user knows when the microphone opens and closes without looking
// at the screen.
package cue

import "math"

var disabled bool

// Disable silences all cues. Used in tests and scripted runs.
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Record-start: high pitch, snappy
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Record-stop: medium pitch, slightly longer
	stopFreq   = 900
	stopVolume = 0.5
	stopDecay  = 40

	// Error: low pitch double-tick
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// tone synthesizes a mono sine tick with an exponential decay envelope.
func tone(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

// doubleTone is two ticks separated by a short gap.
func doubleTone(freq, tickDur, gapDur, volume, decay float64) []int16 {
	tick := tone(freq, tickDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur))
	out := make([]int16, 0, len(tick)*2+len(gap))
	out = append(out, tick...)
	out = append(out, gap...)
	out = append(out, tick...)
	return out
}

// Start plays the microphone-open cue.
func Start() {
	if disabled {
		return
	}
	play(startSamples())
}

// Stop plays the microphone-closed cue.
func Stop() {
	if disabled {
		return
	}
	play(stopSamples())
}

// Error plays the failure cue.
func Error() {
	if disabled {
		return
	}
	play(errorSamples())
}
