package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{At: time.Now(), Severity: SeveritySuccess, Message: "Bought Erling Haaland (91) for 5,000"}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Bought Erling Haaland") || !strings.Contains(received["text"], "SUCCESS") {
		t.Fatalf("unexpected text %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Message: "x"}); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

type captureNotifier struct {
	mu    sync.Mutex
	notes []Notification
	got   chan struct{}
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) error {
	c.mu.Lock()
	c.notes = append(c.notes, n)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func TestForwarderFiltersSeverities(t *testing.T) {
	capture := &captureNotifier{got: make(chan struct{}, 4)}
	fwd := NewForwarder(capture, ForwarderOptions{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fwd.Run(ctx) }()

	fwd.Log("searching", SeverityInfo)
	fwd.Log("CAPTCHA detected - stopping sniper", SeverityError)
	fwd.PlayCue(CueError)

	select {
	case <-capture.got:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	capture.mu.Lock()
	defer capture.mu.Unlock()
	if len(capture.notes) != 1 || capture.notes[0].Severity != SeverityError {
		t.Fatalf("only the error should be forwarded, got %+v", capture.notes)
	}
}

func TestForwarderDropsWhenFull(t *testing.T) {
	capture := &captureNotifier{got: make(chan struct{}, 4)}
	fwd := NewForwarder(capture, ForwarderOptions{Buffer: 1}, testLogger())
	fwd.Log("one", SeveritySuccess)
	fwd.Log("two", SeveritySuccess)
	if len(fwd.queue) != 1 {
		t.Fatalf("queue should hold one entry, got %d", len(fwd.queue))
	}
}

func TestConsoleRendersPlainWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, ConsoleOptions{
		Bell: true,
		Now:  func() time.Time { return time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC) },
	})
	c.Log("Sniper started!", SeveritySystem)
	c.PlayCue(CueFail)
	c.PlayCue(CueSuccess)
	if got := buf.String(); got != "[09:30:00] Sniper started!\n\a" {
		t.Fatalf("unexpected console output %q", got)
	}
}

func TestRecorderQueries(t *testing.T) {
	var r Recorder
	Multi{&r, NewLogSink(testLogger())}.Log("Search failed (1/3) - Status: 500", SeverityWarning)
	r.PlayCue(CueError)
	r.PlayCue(CueError)
	if got := r.Logs(SeverityWarning); len(got) != 1 {
		t.Fatalf("expected one warning, got %v", got)
	}
	if r.Cues(CueError) != 2 || !r.Contains("Status: 500") {
		t.Fatal("recorder lost events")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
