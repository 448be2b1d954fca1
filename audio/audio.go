// Package audio abstracts microphone capture. Capture devices deliver
// normalized float32 sample frames through a callback; the platform
// implementations sit behind the Context interface (malgo everywhere,
// PulseAudio on Linux) with a fake for tests.
package audio

import (
	"errors"
	"strings"
)

// ErrDeviceUnavailable reports that no capture device could be acquired:
// missing hardware, a busy device, or denied permission.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// DataCallback receives one frame of normalized mono samples in [-1, 1].
type DataCallback func(samples []float32, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

var btKeywords = []string{
	"airpods", "beats", "bose", "jabra", "galaxy buds", "pixel buds",
	"sony wh-", "sony wf-", "bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses whether a device name refers to a Bluetooth
// headset, which usually captures at a lower quality profile.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
