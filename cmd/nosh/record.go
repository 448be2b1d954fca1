package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"nosh/audio"
	"nosh/cue"
	"nosh/extractor"
	"nosh/log"
	"nosh/session"
	"nosh/tracker"
)

func newRecordCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "record",
		Short: "Record meals by voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(flags)
			if err != nil {
				return err
			}
			defer log.Close()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			tr := tracker.New(st, cfg.Client.UserID)
			if err := tr.Load(cmd.Context()); err != nil {
				return err
			}

			actx, err := audio.NewContext()
			if err != nil {
				return err
			}
			defer actx.Close()

			device, deviceLabel, err := pickDevice(actx, cfg.Client.DeviceName)
			if err != nil {
				return err
			}

			client := extractor.NewClient(cfg.Client.EndpointURL,
				extractor.WithDebug(logExtractionDebug(cfg.Client.Language)))

			app := &recordApp{tracker: tr}
			app.recorder = session.New(actx, client, cfg.Client.Language,
				session.WithCallbacks(app.callbacks()),
				session.WithResponseTimeout(cfg.ResponseTimeout()),
				session.WithDevice(device),
			)

			prog := tea.NewProgram(newRecordModel(app, deviceLabel), tea.WithAltScreen())
			app.prog = prog
			_, err = prog.Run()
			app.recorder.Cancel()
			return err
		},
	}
}

// pickDevice resolves the configured device name against the platform's
// device list. An empty name means the system default.
func pickDevice(actx audio.Context, name string) (*audio.DeviceInfo, string, error) {
	if name == "" {
		return nil, "default device", nil
	}
	devices, err := actx.Devices()
	if err != nil {
		return nil, "", fmt.Errorf("enumerate devices: %w", err)
	}
	for i := range devices {
		if strings.EqualFold(devices[i].Name, name) {
			return &devices[i], devices[i].Name, nil
		}
	}
	log.Warnf("configured device %q not found, using default", name)
	return nil, "default device", nil
}

func logExtractionDebug(language string) func(extractor.Debug) {
	return func(d extractor.Debug) {
		m := log.Metrics{PayloadKB: d.PayloadKB}
		var reused bool
		var tlsProto string
		if d.Metrics != nil {
			m.DNSTimeMs = float64(d.Metrics.DNS.Milliseconds())
			m.TLSTimeMs = float64(d.Metrics.TLS.Milliseconds())
			m.TTFBMs = float64(d.Metrics.TTFB.Milliseconds())
			m.TotalTimeMs = float64(d.Metrics.Total.Milliseconds())
			reused = d.Metrics.ConnReused
			tlsProto = d.Metrics.TLSProtocol
		}
		log.ExtractionMetrics(m, language, reused, tlsProto, d.Items)
	}
}

// recordApp glues the TUI, the recording session, and the tracker. The
// session owns when callbacks fire; the app forwards them to the tea
// program as messages.
type recordApp struct {
	recorder *session.Recorder
	tracker  *tracker.Tracker
	prog     *tea.Program

	mealID string // meal of the recording in flight
}

func (a *recordApp) callbacks() session.Callbacks {
	return session.Callbacks{
		OnLevel: func(rms float64) {
			a.prog.Send(levelMsg{level: rms})
		},
		OnResult: func(res *extractor.Result) {
			a.prog.Send(a.applyResult(res))
		},
		OnError: func(err error) {
			ctx := context.Background()
			if cerr := a.tracker.CloseRecording(ctx, a.mealID); cerr != nil {
				log.Errorf("close recording after error: %v", cerr)
			}
			cue.Error()
			a.prog.Send(sessionErrorMsg{err: err})
		},
		OnClosed: func() {
			a.prog.Send(sessionClosedMsg{})
		},
	}
}

// applyResult reconciles one extraction result into the tracker.
func (a *recordApp) applyResult(res *extractor.Result) tea.Msg {
	ctx := context.Background()
	logged := loggedMealMsg{transcript: res.Transcription}

	for _, food := range res.Foods {
		item, err := a.tracker.AttachEntry(ctx, a.mealID, food)
		if err != nil {
			log.Errorf("attach %q: %v", food.Name, err)
			logged.failed++
			continue
		}
		logged.foods = append(logged.foods, item)
	}
	if res.Transcription != "" {
		a.tracker.UpdateTranscript(ctx, a.mealID, res.Transcription)
		log.MealText(res.Transcription)
	}
	if err := a.tracker.CloseRecording(ctx, a.mealID); err != nil {
		log.Errorf("close recording: %v", err)
	}
	return logged
}

// toggle starts a recording when idle and soft-stops it when capturing.
func (a *recordApp) toggle() tea.Msg {
	switch a.recorder.State() {
	case session.Idle:
		meal, err := a.tracker.StartRecording(context.Background())
		if err != nil {
			return sessionErrorMsg{err: err}
		}
		a.mealID = meal.ID
		if err := a.recorder.Start(); err != nil {
			if cerr := a.tracker.CloseRecording(context.Background(), meal.ID); cerr != nil {
				log.Errorf("close aborted recording: %v", cerr)
			}
			return sessionErrorMsg{err: err}
		}
		cue.Start()
		return recordingStartedMsg{label: meal.Label}
	case session.Capturing:
		a.recorder.StopInput()
		cue.Stop()
		return finalizingMsg{}
	default:
		return nil
	}
}

// cancel hard-stops the session and prunes the meal it was feeding.
func (a *recordApp) cancel() {
	a.recorder.Cancel()
	if a.mealID != "" {
		if err := a.tracker.CloseRecording(context.Background(), a.mealID); err != nil {
			log.Errorf("close cancelled recording: %v", err)
		}
	}
}
