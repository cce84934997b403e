package alerting

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Severity classifies an operator-facing log line.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySystem  Severity = "system"
)

// Cue names an audio cue.
type Cue string

const (
	CueSuccess Cue = "success"
	CueFail    Cue = "fail"
	CueError   Cue = "error"
)

// Sink receives engine events. Implementations must return promptly and swallow their own failures.
type Sink interface {
	Log(msg string, severity Severity)
	PlayCue(cue Cue)
}

// LogSink forwards events to zerolog.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink wraps logger as a Sink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "sniper_events").Logger()}
}

// Log writes msg at the zerolog level matching severity.
func (s *LogSink) Log(msg string, severity Severity) {
	var ev *zerolog.Event
	switch severity {
	case SeverityError:
		ev = s.logger.Error()
	case SeverityWarning:
		ev = s.logger.Warn()
	default:
		ev = s.logger.Info()
	}
	ev.Str("severity", string(severity)).Msg(msg)
}

// PlayCue records the cue at debug level.
func (s *LogSink) PlayCue(cue Cue) {
	s.logger.Debug().Str("cue", string(cue)).Msg("cue")
}

// Multi fans events out to several sinks.
type Multi []Sink

// Log forwards to every sink.
func (m Multi) Log(msg string, severity Severity) {
	for _, s := range m {
		s.Log(msg, severity)
	}
}

// PlayCue forwards to every sink.
func (m Multi) PlayCue(cue Cue) {
	for _, s := range m {
		s.PlayCue(cue)
	}
}

// Event is one recorded sink call. Exactly one of Msg or Cue is set.
type Event struct {
	Msg      string
	Severity Severity
	Cue      Cue
}

// Recorder keeps every event in memory. Used by simulate and tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Log records a message.
func (r *Recorder) Log(msg string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Msg: msg, Severity: severity})
}

// PlayCue records a cue.
func (r *Recorder) PlayCue(cue Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Cue: cue})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Logs returns recorded messages with the given severity.
func (r *Recorder) Logs(severity Severity) []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Cue == "" && ev.Severity == severity {
			out = append(out, ev.Msg)
		}
	}
	return out
}

// Cues returns how many times cue was played.
func (r *Recorder) Cues(cue Cue) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Cue == cue {
			n++
		}
	}
	return n
}

// Contains reports whether any message contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, ev := range r.Events() {
		if ev.Cue == "" && strings.Contains(ev.Msg, substr) {
			return true
		}
	}
	return false
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = Multi(nil)
	_ Sink = (*Recorder)(nil)
)
