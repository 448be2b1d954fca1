// Package doctor runs interactive environment checks: configuration,
// microphone capture, the storage backend, and the extraction endpoint.
package doctor

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"nosh/audio"
	"nosh/config"
	"nosh/encoder"
	"nosh/session"
	"nosh/store"
)

// Run executes the diagnostic checks and returns an exit code
// (0=all pass, 1=any fail).
func Run(cfg *config.Config, configPath string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("nosh doctor - interactive system diagnostics")
	fmt.Println("============================================")

	allPass := true

	if !checkConfig(cfg, configPath) {
		allPass = false
	}
	if allPass && !checkMicrophone(cfg) {
		allPass = false
	}
	if allPass && !checkStorage(cfg) {
		allPass = false
	}
	if allPass && !checkEndpoint(cfg) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkConfig(cfg *config.Config, configPath string) bool {
	fmt.Println()
	fmt.Println("[1/4] Configuration")

	if configPath == "" {
		configPath = "(defaults, no file)"
	}
	fmt.Printf("  config:   %s\n", configPath)
	fmt.Printf("  language: %s\n", cfg.Client.Language)
	fmt.Printf("  backend:  %s\n", cfg.Storage.Backend)
	fmt.Printf("  endpoint: %s\n", cfg.Client.EndpointURL)

	if cfg.APIKey == "" {
		fmt.Println("  NOTE: GEMINI_API_KEY not set (only needed for `nosh serve`)")
	} else {
		fmt.Println("  API key found in environment")
	}

	fmt.Println("  PASS: configuration valid")
	return true
}

func checkMicrophone(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[2/4] Microphone capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	device := pickDoctorDevice(devices, cfg.Client.DeviceName)
	fmt.Printf("Using device: %s\n", device.Name)
	if audio.IsBluetooth(device.Name) {
		fmt.Println("  NOTE: Bluetooth headset detected, capture quality may be reduced")
	}

	fmt.Print("Press Enter and speak for 3 seconds...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	samples, err := recordSamples(ctx, device, 3*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	peak := peakRMS(samples)
	seconds := float64(len(samples)) / float64(encoder.SampleRate)
	fmt.Printf("  Recorded %.1fs, peak level %.3f\n", seconds, peak)

	if peak < session.SpeechRMS {
		fmt.Println("  FAIL: no voice detected, check microphone volume")
		return false
	}
	fmt.Println("  PASS: microphone captured speech")
	return true
}

func checkStorage(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[3/4] Storage backend")

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("  FAIL: cannot create data directories: %v\n", err)
		return false
	}

	var st store.Store
	var err error
	switch cfg.Storage.Backend {
	case "local":
		st, err = store.OpenLocal(store.LocalOptions{Dir: cfg.Storage.LocalDir})
	default:
		st, err = store.OpenSQLite(cfg.Storage.SQLitePath)
	}
	if err != nil {
		fmt.Printf("  FAIL: cannot open %s backend: %v\n", cfg.Storage.Backend, err)
		return false
	}
	defer st.Close()

	fmt.Printf("  PASS: %s backend opened\n", cfg.Storage.Backend)
	return true
}

// checkEndpoint probes the extraction endpoint with an empty request.
// Any HTTP response, including an error status, proves reachability.
func checkEndpoint(cfg *config.Config) bool {
	fmt.Println()
	fmt.Println("[4/4] Extraction endpoint")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(cfg.Client.EndpointURL, "application/json",
		bytes.NewReader([]byte(`{}`)))
	if err != nil {
		fmt.Printf("  FAIL: endpoint unreachable: %v\n", err)
		fmt.Println("  Start it with: nosh serve")
		return false
	}
	resp.Body.Close()

	fmt.Printf("  PASS: endpoint responded (HTTP %d)\n", resp.StatusCode)
	return true
}

func pickDoctorDevice(devices []audio.DeviceInfo, configured string) *audio.DeviceInfo {
	if configured != "" {
		for i := range devices {
			if strings.EqualFold(devices[i].Name, configured) {
				return &devices[i]
			}
		}
		fmt.Printf("  NOTE: configured device %q not found, using default\n", configured)
	}
	return &devices[0]
}

func recordSamples(ctx audio.Context, device *audio.DeviceInfo, d time.Duration) ([]float32, error) {
	var buf []float32
	var mu sync.Mutex

	capture, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return nil, err
	}
	defer capture.Close()

	capture.SetCallback(func(samples []float32, frameCount uint32) {
		mu.Lock()
		buf = append(buf, samples...)
		mu.Unlock()
	})

	if err := capture.Start(); err != nil {
		return nil, err
	}
	time.Sleep(d)
	capture.Stop()
	capture.ClearCallback()

	mu.Lock()
	defer mu.Unlock()
	return buf, nil
}

// peakRMS returns the loudest RMS over 100ms windows.
func peakRMS(samples []float32) float64 {
	window := int(encoder.SampleRate / 10)
	var peak float64
	for i := 0; i < len(samples); i += window {
		end := i + window
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[i:end] {
			sum += float64(s) * float64(s)
		}
		if rms := math.Sqrt(sum / float64(end-i)); rms > peak {
			peak = rms
		}
	}
	return peak
}
