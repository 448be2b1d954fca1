package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nosh/nutrition"
	"nosh/session"
)

type tickMsg time.Time

type recordingStartedMsg struct{ label string }
type finalizingMsg struct{}
type levelMsg struct{ level float64 }
type loggedMealMsg struct {
	transcript string
	foods      []nutrition.FoodItem
	failed     int
}
type sessionErrorMsg struct{ err error }
type sessionClosedMsg struct{}

type recordState int

const (
	stateIdle recordState = iota
	stateRecording
	stateFinalizing
)

var (
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	waitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	mealStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	totalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	meterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

type recordModel struct {
	app        *recordApp
	deviceLine string

	width  int
	height int

	state      recordState
	mealLabel  string
	startedAt  time.Time
	duration   float64
	audioLevel float64

	silence     *session.SilenceMonitor
	sawSpeech   bool
	silenceWarn bool
	autoStopped bool

	lastTranscript string
	lastFoods      []nutrition.FoodItem
	lastFailed     int
	lastErr        error
}

func newRecordModel(app *recordApp, deviceLabel string) recordModel {
	return recordModel{app: app, deviceLine: "mic: " + deviceLabel}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m recordModel) Init() tea.Cmd {
	return tuiTick()
}

func (m recordModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "enter":
			app := m.app
			return m, func() tea.Msg { return app.toggle() }
		case "esc":
			if m.state != stateIdle {
				app := m.app
				return m, func() tea.Msg {
					app.cancel()
					return nil
				}
			}
		}

	case tickMsg:
		if m.state == stateRecording {
			m.duration = time.Since(m.startedAt).Seconds()
			ev := m.silence.Tick(m.sawSpeech)
			m.sawSpeech = false
			switch ev {
			case session.SilenceWarn:
				m.silenceWarn = true
			case session.SilenceWarnClear:
				m.silenceWarn = false
			case session.SilenceAutoStop:
				m.autoStopped = true
				app := m.app
				return m, tea.Batch(tuiTick(), func() tea.Msg { return app.toggle() })
			}
		}
		return m, tuiTick()

	case recordingStartedMsg:
		m.state = stateRecording
		m.mealLabel = msg.label
		m.startedAt = time.Now()
		m.duration = 0
		m.audioLevel = 0
		m.silence = session.NewSilenceMonitor(60 * time.Millisecond)
		m.sawSpeech = false
		m.silenceWarn = false
		m.autoStopped = false
		m.lastErr = nil

	case finalizingMsg:
		m.state = stateFinalizing
		m.audioLevel = 0

	case levelMsg:
		if m.state == stateRecording {
			m.audioLevel = m.audioLevel*0.6 + msg.level*0.4
			if msg.level > session.SpeechRMS {
				m.sawSpeech = true
			}
		}

	case loggedMealMsg:
		m.lastTranscript = msg.transcript
		m.lastFoods = msg.foods
		m.lastFailed = msg.failed
		m.lastErr = nil

	case sessionErrorMsg:
		m.lastErr = msg.err

	case sessionClosedMsg:
		m.state = stateIdle
		m.audioLevel = 0
	}
	return m, nil
}

func (m recordModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string

	switch m.state {
	case stateRecording:
		lines = append(lines, recStyle.Render(fmt.Sprintf("● REC %.1fs", m.duration))+
			dimStyle.Render("  "+m.mealLabel))
		if m.silenceWarn {
			lines = append(lines, errStyle.Render("  ⚠ no voice detected"))
		}
		lines = append(lines, meterStyle.Render(levelMeter(m.audioLevel, 30)))
	case stateFinalizing:
		status := "◌ EXTRACTING..."
		if m.autoStopped {
			status = "◌ EXTRACTING... (stopped after silence)"
		}
		lines = append(lines, waitStyle.Render(status))
		lines = append(lines, "")
	default:
		lines = append(lines, idleStyle.Render("○ STANDBY"))
		lines = append(lines, "")
	}

	lines = append(lines, dimStyle.Render(m.deviceLine))
	lines = append(lines, "")

	if m.lastErr != nil {
		lines = append(lines, errStyle.Render("✗ "+m.lastErr.Error()))
	} else if m.lastTranscript != "" || len(m.lastFoods) > 0 {
		lines = append(lines, dimStyle.Render("last meal"))
		if m.lastTranscript != "" {
			lines = append(lines, mealStyle.Render("  “"+m.lastTranscript+"”"))
		}
		for _, f := range m.lastFoods {
			lines = append(lines, fmt.Sprintf("  %-20s %-12s %4.0f kcal  %2.0fp %2.0fc %2.0ff",
				f.Name, f.Quantity, f.Calories, f.Protein, f.Carbs, f.Fat))
		}
		if m.lastFailed > 0 {
			lines = append(lines, errStyle.Render(fmt.Sprintf("  %d item(s) failed to save", m.lastFailed)))
		}
		if len(m.lastFoods) == 0 && m.lastTranscript != "" {
			lines = append(lines, dimStyle.Render("  no foods detected"))
		}
	} else {
		lines = append(lines, dimStyle.Render("no meals logged yet"))
	}

	lines = append(lines, "")
	lines = append(lines, totalStyle.Render(m.todayTotals()))
	lines = append(lines, "")
	lines = append(lines,
		helpKeyStyle.Render("space")+helpStyle.Render(" record/stop  ")+
			helpKeyStyle.Render("esc")+helpStyle.Render(" cancel  ")+
			helpKeyStyle.Render("q")+helpStyle.Render(" quit"))
	lines = append(lines, helpStyle.Render("nosh "+version))

	panel := lipgloss.NewStyle().
		Padding(1, 2).
		Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Left, lipgloss.Top, panel)
}

// todayTotals sums macros across items logged since local midnight.
func (m recordModel) todayTotals() string {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var cal, prot, carbs, fat float64
	var n int
	for _, item := range m.app.tracker.Items() {
		if item.LoggedAt.Before(midnight) {
			continue
		}
		cal += item.Calories
		prot += item.Protein
		carbs += item.Carbs
		fat += item.Fat
		n++
	}
	return fmt.Sprintf("today: %d items  %.0f kcal  %.0fg protein  %.0fg carbs  %.0fg fat",
		n, cal, prot, carbs, fat)
}

func levelMeter(level float64, width int) string {
	filled := int(level * float64(width) * 3)
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
