// Package session drives one recording at a time through the state
// machine Idle → Starting → Capturing → Finalizing → Idle. Frames arrive
// from the capture device, accumulate as PCM chunks, and a soft stop
// produces exactly one extraction submission; a hard cancel produces
// none.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"nosh/audio"
	"nosh/encoder"
	"nosh/extractor"
	"nosh/log"
)

var (
	// ErrSessionActive rejects a re-entrant Start while another session
	// is in a non-Idle state.
	ErrSessionActive = errors.New("session: recording already active")

	// ErrResponseTimeout reports that the session was force-closed before
	// the extraction result arrived. The request itself keeps running;
	// its late result is dropped.
	ErrResponseTimeout = errors.New("session: no extraction result before timeout")
)

const defaultResponseTimeout = 8 * time.Second

type State int

const (
	Idle State = iota
	Starting
	Capturing
	Finalizing
)

// Callbacks deliver session events to the owner. Any field may be nil.
// OnLevel fires per captured frame with its RMS amplitude; OnResult and
// OnError are mutually exclusive per session; OnClosed always fires last.
type Callbacks struct {
	OnLevel  func(rms float64)
	OnResult func(res *extractor.Result)
	OnError  func(err error)
	OnClosed func()
}

// Recorder owns at most one capture session at a time.
type Recorder struct {
	actx     audio.Context
	client   *extractor.Client
	language string
	device   *audio.DeviceInfo
	timeout  time.Duration
	cb       Callbacks

	mu     sync.Mutex
	state  State
	seq    int // increments per session; in-flight work checks it before applying
	dev    audio.CaptureDevice
	chunks [][]int16
}

type Option func(*Recorder)

// WithCallbacks sets the owner callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(r *Recorder) { r.cb = cb }
}

// WithResponseTimeout bounds how long a finalizing session waits for the
// extraction result before force-closing.
func WithResponseTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

// WithDevice selects a specific capture device instead of the default.
func WithDevice(info *audio.DeviceInfo) Option {
	return func(r *Recorder) { r.device = info }
}

func New(actx audio.Context, client *extractor.Client, language string, opts ...Option) *Recorder {
	r := &Recorder{
		actx:     actx,
		client:   client,
		language: language,
		timeout:  defaultResponseTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current session state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start acquires the capture device and begins accumulating frames. The
// transition guard is set before device acquisition, so rapid double
// starts cannot race into two sessions.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.state != Idle {
		r.mu.Unlock()
		return ErrSessionActive
	}
	r.state = Starting
	r.seq++
	id := r.seq
	r.chunks = nil
	r.mu.Unlock()

	dev, err := r.actx.NewCapture(r.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		r.abortStart()
		return fmt.Errorf("acquire capture device: %w", err)
	}

	dev.SetCallback(func(samples []float32, _ uint32) {
		r.onFrame(id, samples)
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		r.abortStart()
		return fmt.Errorf("start capture: %w", err)
	}

	r.mu.Lock()
	r.dev = dev
	r.state = Capturing
	r.mu.Unlock()
	log.SessionStart(dev.DeviceName())
	return nil
}

func (r *Recorder) abortStart() {
	r.mu.Lock()
	r.state = Idle
	r.chunks = nil
	r.mu.Unlock()
}

// onFrame handles one capture frame: amplitude observation for the UI,
// PCM16 conversion, append. Frames from a previous session (a stop can
// race the device's last callback) are dropped by the id check.
func (r *Recorder) onFrame(id int, samples []float32) {
	if len(samples) == 0 {
		return
	}
	if r.cb.OnLevel != nil {
		r.cb.OnLevel(rms(samples))
	}
	pcm := encoder.PCM16FromFloat32(samples)

	r.mu.Lock()
	if id == r.seq && (r.state == Starting || r.state == Capturing) {
		r.chunks = append(r.chunks, pcm)
	}
	r.mu.Unlock()
}

// StopInput is the soft stop: release the device immediately and submit
// the accumulated audio. Idempotent; a second call while finalizing is a
// no-op. A session stopped before any frame arrived still submits — the
// endpoint owns the too-short rejection.
func (r *Recorder) StopInput() {
	r.mu.Lock()
	if r.state != Starting && r.state != Capturing {
		r.mu.Unlock()
		return
	}
	id := r.seq
	dev := r.dev
	chunks := r.chunks
	r.dev = nil
	r.chunks = nil
	r.state = Finalizing
	r.mu.Unlock()

	releaseDevice(dev)

	samples := 0
	for _, c := range chunks {
		samples += len(c)
	}
	seconds := float64(samples) / encoder.SampleRate
	encodeStart := time.Now()
	payload := encoder.EncodeTransport(encoder.WAV(chunks))
	log.Info(fmt.Sprintf("finalizing session: %.2fs audio, %d KB payload, encode %s",
		seconds, len(payload)/1024, time.Since(encodeStart).Round(time.Millisecond)))

	go r.submit(id, payload, seconds)
}

// Cancel is the hard stop: release the device, discard audio, no network
// call. The session-closed callback fires synchronously. Bumping seq
// also invalidates any in-flight submission from this session.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.state == Idle {
		r.mu.Unlock()
		return
	}
	dev := r.dev
	r.dev = nil
	r.chunks = nil
	r.seq++
	r.state = Idle
	r.mu.Unlock()

	releaseDevice(dev)
	if r.cb.OnClosed != nil {
		r.cb.OnClosed()
	}
}

// submit runs the one extraction call for a finalized session. The
// response timer force-closes the session if the result does not arrive
// in time; the request is never cancelled, its late result just fails
// the id check and is dropped.
func (r *Recorder) submit(id int, payload string, seconds float64) {
	timer := time.AfterFunc(r.timeout, func() { r.forceClose(id) })
	res, err := r.client.Submit(context.Background(), payload, r.language)
	timer.Stop()

	r.mu.Lock()
	stale := id != r.seq || r.state != Finalizing
	if !stale {
		r.state = Idle
	}
	r.mu.Unlock()
	if stale {
		log.Warnf("dropping stale extraction result for session %d", id)
		return
	}

	if err != nil {
		if r.cb.OnError != nil {
			r.cb.OnError(err)
		}
	} else {
		log.SessionEnd(len(res.Foods), seconds)
		if r.cb.OnResult != nil {
			r.cb.OnResult(res)
		}
	}
	if r.cb.OnClosed != nil {
		r.cb.OnClosed()
	}
}

func (r *Recorder) forceClose(id int) {
	r.mu.Lock()
	if id != r.seq || r.state != Finalizing {
		r.mu.Unlock()
		return
	}
	r.state = Idle
	r.mu.Unlock()

	if r.cb.OnError != nil {
		r.cb.OnError(ErrResponseTimeout)
	}
	if r.cb.OnClosed != nil {
		r.cb.OnClosed()
	}
}

func releaseDevice(dev audio.CaptureDevice) {
	if dev == nil {
		return
	}
	dev.ClearCallback()
	dev.Stop()
	dev.Close()
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
