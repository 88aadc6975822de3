package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "json", Out: &buf})
	log.WithField("meeting_id", "mtg-1").Info("hello")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", rec["msg"])
	}
	if rec["meeting_id"] != "mtg-1" {
		t.Errorf("meeting_id = %v, want mtg-1", rec["meeting_id"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Format: "text", Out: &buf})
	log.Info("quiet")
	log.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info line logged at warn level: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"bogus", logrus.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponent_NilFallsBackToDiscard(t *testing.T) {
	log := Component(nil, "pipeline")
	if log.Data["component"] != "pipeline" {
		t.Errorf("component = %v, want pipeline", log.Data["component"])
	}
	log.Info("dropped")
}
