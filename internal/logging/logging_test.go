package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONOutputByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "debug", Format: "json"})
	logger.Debug().Str("component", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "hello" || entry["component"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestAutoFormatFallsBackToJSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Format: "auto"})
	logger.Info().Msg("piped")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("auto format into a buffer should be JSON, got %q", buf.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Format: "console"})
	logger.Info().Msg("pretty")
	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "pretty") {
		t.Fatalf("console format should be human readable, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "warn"})
	logger.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
}
