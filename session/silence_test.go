package session

import (
	"testing"
	"time"
)

// 100ms tick keeps the window arithmetic round: warn at tick 80,
// auto-stop window of 300 ticks.
func testMonitor() *SilenceMonitor {
	return NewSilenceMonitor(100 * time.Millisecond)
}

func feedN(m *SilenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 79; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 80, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := testMonitor()
	feedN(m, false, 80) // triggers warn

	// Sustained speech clears warning (need 25% of 80-tick window)
	for i := 0; i < 80; i++ {
		if ev := m.Tick(true); ev == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 200; i++ {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestAutoStopAfter30s(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 400; i++ {
		if ev := m.Tick(false); ev == SilenceAutoStop {
			return
		}
	}
	t.Fatal("expected SilenceAutoStop within 400 ticks")
}

func TestAutoStopPreventedBySpeech(t *testing.T) {
	m := testMonitor()
	for i := 0; i < 500; i++ {
		speech := i%10 < 7
		if ev := m.Tick(speech); ev == SilenceAutoStop {
			t.Fatalf("unexpected auto-stop with speech at tick %d", i)
		}
	}
}

func TestWarnOnlyOnce(t *testing.T) {
	m := testMonitor()
	warns := 0
	for i := 0; i < 290; i++ {
		if ev := m.Tick(false); ev == SilenceWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly 1 SilenceWarn, got %d", warns)
	}
}

func TestWarnStaysDuringNoise(t *testing.T) {
	m := testMonitor()
	feedN(m, false, 80) // triggers warn

	// Occasional level spikes (< 25% speech) should not clear it.
	for i := 0; i < 80; i++ {
		speech := i%10 == 0
		if ev := m.Tick(speech); ev == SilenceWarnClear {
			t.Fatalf("warning cleared with 10%% speech at tick %d", i)
		}
	}
}
