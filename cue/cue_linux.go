//go:build linux

package cue

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

var (
	initOnce sync.Once
	start    []int16
	stop     []int16
	errTone  []int16
)

func initSamples() {
	// 200ms tails let the PulseAudio buffer fill before drain.
	start = interleave(tone(startFreq, 0.2, startVolume, startDecay))
	stop = interleave(tone(stopFreq, 0.2, stopVolume, stopDecay))
	errTone = interleave(doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay))
}

// interleave duplicates mono samples into L/R pairs for the stereo sink.
func interleave(mono []int16) []int16 {
	out := make([]int16, len(mono)*2)
	for i, s := range mono {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

func startSamples() []int16 { initOnce.Do(initSamples); return start }
func stopSamples() []int16  { initOnce.Do(initSamples); return stop }
func errorSamples() []int16 { initOnce.Do(initSamples); return errTone }

// play writes the samples to a fresh playback stream. Failures are
// silent; a cue is never worth interrupting a recording for.
func play(samples []int16) {
	go func() {
		if len(samples) == 0 {
			return
		}
		c, err := pulse.NewClient()
		if err != nil {
			return
		}
		defer c.Close()

		pos := 0
		reader := pulse.Int16Reader(func(buf []int16) (int, error) {
			if pos >= len(samples) {
				return 0, pulse.EndOfData
			}
			n := copy(buf, samples[pos:])
			pos += n
			return n, nil
		})
		stream, err := c.NewPlayback(reader,
			pulse.PlaybackStereo,
			pulse.PlaybackSampleRate(sampleRate),
			pulse.PlaybackLatency(0.1),
			pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
				p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
			}),
		)
		if err != nil {
			return
		}
		stream.Start()
		stream.Drain()
		stream.Stop()
		stream.Close()
	}()
}
