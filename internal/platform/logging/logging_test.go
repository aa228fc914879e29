package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carebook.log")
	logger := New(Options{Level: "info", File: path, MaxSizeMB: 1})

	logger.Info().Str("doctor_id", "d-1").Msg("timetable published")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log line in file")
	}
}

func TestNew_RespectsLevel(t *testing.T) {
	logger := New(Options{Level: "error"})
	if logger.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("expected error level, got %v", logger.GetLevel())
	}
}
