package audio

import (
	"math"
	"sync"

	"nosh/encoder"
)

const fakeFrameSize = 1024

// FakeContext is a test Context whose capture devices replay a fixed set
// of sample frames and then go silent until stopped.
type FakeContext struct {
	frames   [][]float32
	startErr error
}

// NewFakeContext returns a context whose devices replay the given frames.
func NewFakeContext(frames [][]float32) *FakeContext {
	return &FakeContext{frames: frames}
}

// NewFakeToneContext returns a context whose devices produce a 440 Hz
// tone of the given duration in seconds.
func NewFakeToneContext(seconds float64) *FakeContext {
	total := int(seconds * encoder.SampleRate)
	var frames [][]float32
	for pos := 0; pos < total; pos += fakeFrameSize {
		n := min(fakeFrameSize, total-pos)
		frame := make([]float32, n)
		for i := range frame {
			t := float64(pos+i) / encoder.SampleRate
			frame[i] = float32(0.5 * math.Sin(2*math.Pi*440*t))
		}
		frames = append(frames, frame)
	}
	return &FakeContext{frames: frames}
}

// FailStart makes every capture device created by this context fail its
// Start call with the given error.
func (f *FakeContext) FailStart(err error) { f.startErr = err }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake-0", Name: "fake microphone"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{frames: f.frames, startErr: f.startErr}, nil
}

// FakeCapture delivers its frames synchronously from Start. Tests get a
// deterministic capture with no timing dependence.
type FakeCapture struct {
	frames   [][]float32
	startErr error

	mu      sync.Mutex
	cb      DataCallback
	started bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake microphone" }

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	cb := f.cb
	f.started = true
	f.mu.Unlock()
	if cb == nil {
		return nil
	}
	for _, frame := range f.frames {
		out := make([]float32, len(frame))
		copy(out, frame)
		cb(out, uint32(len(out)))
	}
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {}

// Started reports whether the device is between Start and Stop.
func (f *FakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}
