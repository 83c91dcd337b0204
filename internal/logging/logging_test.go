package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"off", zerolog.Disabled},
		{"loud", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
	if ValidLevel("loud") || !ValidLevel("Info") {
		t.Fatalf("ValidLevel mismatch")
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.log")
	log := New(Config{Level: "warn", Format: "json", Output: path})
	log.Info().Msg("stage=hidden")
	log.Warn().Int("batch", 3).Msg("stage=batch")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "stage=hidden") {
		t.Fatalf("info line written at warn level: %s", got)
	}
	if !strings.Contains(got, `"batch":3`) || !strings.Contains(got, `"message":"stage=batch"`) {
		t.Fatalf("unexpected log output: %s", got)
	}
}

func TestUseConsole(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if useConsole("auto", &sb) {
		t.Fatalf("auto format on a non-file writer should be json")
	}
	if !useConsole("console", &sb) || useConsole("json", os.Stderr) {
		t.Fatalf("explicit formats not honored")
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	if Nop().GetLevel() != zerolog.Disabled {
		t.Fatalf("Nop logger should be disabled")
	}
}
