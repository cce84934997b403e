package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification is one operator event pushed to a remote channel.
type Notification struct {
	At       time.Time
	Severity Severity
	Message  string
	Source   string
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Debug().Str("severity", string(note.Severity)).Msg("notification sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	source := note.Source
	if source == "" {
		source = "sniper"
	}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", source, strings.ToUpper(string(note.Severity))))
	if !note.At.IsZero() {
		builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(note.Message)
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

// Forwarder adapts a Notifier into a Sink. Log only enqueues; Run delivers.
type Forwarder struct {
	notifier   Notifier
	severities map[Severity]bool
	queue      chan Notification
	source     string
	timeout    time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

// ForwarderOptions configure a Forwarder.
type ForwarderOptions struct {
	// Severities forwarded. Empty means success and error.
	Severities []Severity
	Buffer     int
	Source     string
	Timeout    time.Duration
	Now        func() time.Time
}

// NewForwarder constructs a Forwarder around n.
func NewForwarder(n Notifier, opts ForwarderOptions, logger zerolog.Logger) *Forwarder {
	if len(opts.Severities) == 0 {
		opts.Severities = []Severity{SeveritySuccess, SeverityError}
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 32
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	sev := make(map[Severity]bool, len(opts.Severities))
	for _, s := range opts.Severities {
		sev[s] = true
	}
	return &Forwarder{
		notifier:   n,
		severities: sev,
		queue:      make(chan Notification, opts.Buffer),
		source:     opts.Source,
		timeout:    opts.Timeout,
		now:        opts.Now,
		logger:     logger.With().Str("component", "alert_forwarder").Logger(),
	}
}

// Log enqueues msg if its severity is forwarded. A full queue drops the message.
func (f *Forwarder) Log(msg string, severity Severity) {
	if !f.severities[severity] {
		return
	}
	note := Notification{At: f.now(), Severity: severity, Message: msg, Source: f.source}
	select {
	case f.queue <- note:
	default:
		f.logger.Warn().Str("severity", string(severity)).Msg("notification queue full, dropping")
	}
}

// PlayCue is a no-op; remote channels have no audio.
func (f *Forwarder) PlayCue(Cue) {}

// Run delivers queued notifications until ctx is cancelled. Notifications already queued at
// cancellation are still delivered, each bounded by the forwarder timeout.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case note := <-f.queue:
			f.deliver(ctx, note)
		}
	}
}

func (f *Forwarder) drain(ctx context.Context) {
	for {
		select {
		case note := <-f.queue:
			f.deliver(ctx, note)
		default:
			return
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, note Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.notifier.Notify(sendCtx, note); err != nil {
		f.logger.Error().Err(err).Msg("deliver notification")
	}
}

var _ Sink = (*Forwarder)(nil)
