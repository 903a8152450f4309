package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"info", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ValidLevel("bogus") || !ValidLevel("warn") {
		t.Error("ValidLevel misclassifies levels")
	}
}

func TestSetLogger_ComponentField(t *testing.T) {
	prev := Logger
	defer SetLogger(prev)

	var buf bytes.Buffer
	SetLogger(NewJSONLogger(&buf, "debug"))
	Ledger.Debug().Str("txid", "abc").Msg("accepted")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if line["component"] != "ledger" || line["txid"] != "abc" {
		t.Errorf("unexpected fields: %v", line)
	}
}

func TestJSONLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "warn")
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %s", buf.String())
	}
	l.Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Error("warn should be logged at warn level")
	}
}
