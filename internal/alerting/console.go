package alerting

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var severityStyles = map[Severity]lipgloss.Style{
	SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
	SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	SeverityWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	SeverityError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	SeveritySystem:  lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
}

var timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

// Console prints events as coloured lines and rings the terminal bell for cues.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	bell  bool
	now   func() time.Time
}

// ConsoleOptions configure a Console sink.
type ConsoleOptions struct {
	// Color enables lipgloss styling. Callers usually pass logging.IsTerminal(out).
	Color bool
	// Bell writes BEL for success and error cues.
	Bell bool
	Now  func() time.Time
}

// NewConsole constructs a Console writing to out.
func NewConsole(out io.Writer, opts ConsoleOptions) *Console {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Console{out: out, color: opts.Color, bell: opts.Bell, now: opts.Now}
}

// Log prints "[15:04:05] msg".
func (c *Console) Log(msg string, severity Severity) {
	stamp := "[" + c.now().Format("15:04:05") + "]"
	line := msg
	if c.color {
		stamp = timeStyle.Render(stamp)
		if style, ok := severityStyles[severity]; ok {
			line = style.Render(msg)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "%s %s\n", stamp, line)
}

// PlayCue rings the bell. Fail cues stay silent.
func (c *Console) PlayCue(cue Cue) {
	if !c.bell || cue == CueFail {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.out, "\a")
}

var _ Sink = (*Console)(nil)
