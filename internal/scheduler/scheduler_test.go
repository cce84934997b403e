package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManualFiresInDueOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })
	m.AfterFunc(2*time.Second, func() {
		order = append(order, "b")
		m.AfterFunc(500*time.Millisecond, func() { order = append(order, "b2") })
	})

	if got := m.Pending(); len(got) != 3 || got[0] != time.Second {
		t.Fatalf("unexpected pending %v", got)
	}

	m.Advance(3 * time.Second)
	want := []string{"a", "b", "b2", "c"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("fired %v, want %v", order, want)
		}
	}
	if !m.Now().Equal(time.Unix(3, 0)) {
		t.Fatalf("clock should sit at the advance target, got %v", m.Now())
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("stop should report a pending timer")
	}
	if timer.Stop() {
		t.Fatal("second stop should report false")
	}
	if _, ok := m.FireNext(); ok {
		t.Fatal("nothing should be pending")
	}
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestManualFireNextAdvancesClock(t *testing.T) {
	m := NewManual(time.Unix(100, 0))
	m.AfterFunc(5*time.Second, func() {})
	d, ok := m.FireNext()
	if !ok || d != 5*time.Second {
		t.Fatalf("FireNext = %v, %v", d, ok)
	}
	if !m.Now().Equal(time.Unix(105, 0)) {
		t.Fatalf("clock should jump to the fired timer, got %v", m.Now())
	}
}

func TestTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	ticker := NewTicker(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- ticker.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) >= 2 {
				cancel()
			}
			return errors.New("ignored")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ticker did not stop")
	}
	if ticks.Load() < 2 {
		t.Fatalf("expected at least two ticks, got %d", ticks.Load())
	}
}

func TestNewTickerRejectsZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval should panic")
		}
	}()
	NewTicker(Options{}, zerolog.Nop())
}
