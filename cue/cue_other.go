//go:build !linux

package cue

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	initOnce sync.Once
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	start   []byte
	stop    []byte
	errTone []byte

	// Playback cursor, read from the device callback.
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func initPlayback() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}

	start = pcmBytes(tone(startFreq, 0.03, startVolume, startDecay))
	stop = pcmBytes(tone(stopFreq, 0.05, stopVolume, stopDecay))
	errTone = pcmBytes(doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay))

	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{
		Data: dataCallback,
	})
	return err
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	samples := playing.Load()
	if samples == nil || len(*samples) == 0 {
		for i := range pOutput {
			pOutput[i] = 0
		}
		return
	}

	pos := playPos.Load()
	total := uint32(len(*samples))
	want := frameCount * 2
	remaining := total - pos

	if remaining == 0 {
		playing.Store(nil)
		for i := range pOutput {
			pOutput[i] = 0
		}
		return
	}
	if want > remaining {
		want = remaining
	}

	copy(pOutput[:want], (*samples)[pos:pos+want])
	playPos.Store(pos + want)
	for i := want; i < frameCount*2; i++ {
		pOutput[i] = 0
	}
}

func startSamples() []byte { initOnce.Do(initPlayback); return start }
func stopSamples() []byte  { initOnce.Do(initPlayback); return stop }
func errorSamples() []byte { initOnce.Do(initPlayback); return errTone }

func play(samples []byte) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}

	// Clean state; Stop is a no-op when the device is not running.
	device.Stop()
	playPos.Store(0)
	playing.Store(&samples)

	if err := device.Start(); err != nil {
		// Recreate the device, it goes stale across macOS sleep/wake.
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
		}
	}
}
