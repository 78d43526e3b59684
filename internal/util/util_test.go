package util

import (
	"strings"
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		t.Setenv("TEST_BOOL", c.value)
		if got := ParseBoolEnv("TEST_BOOL", c.def); got != c.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.expected)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := ParseIntEnv("TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "not-a-number")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DUR", "150ms")
	if got := ParseDurationEnv("TEST_DUR", time.Second); got != 150*time.Millisecond {
		t.Errorf("expected 150ms, got %s", got)
	}
	t.Setenv("TEST_DUR", "soon")
	if got := ParseDurationEnv("TEST_DUR", time.Second); got != time.Second {
		t.Errorf("expected default 1s, got %s", got)
	}
}

func TestIDPrefixes(t *testing.T) {
	if id := NewSessionID(); !strings.HasPrefix(id, "sess_") {
		t.Errorf("unexpected session id %q", id)
	}
	if id := NewJobID(); !strings.HasPrefix(id, "job_") {
		t.Errorf("unexpected job id %q", id)
	}
	if id := NewMessageID(); !strings.HasPrefix(id, "msg_") {
		t.Errorf("unexpected message id %q", id)
	}
	if NewSessionID() == NewSessionID() {
		t.Error("expected unique ids")
	}
}
