package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONOutputWritesOneLinePerEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Info, NewJSONOutput(&buf)).With("engine")

	logger.Info("transaction committed", map[string]any{"txn_id": 7})

	var e Entry
	if err := json.Unmarshal(bytes.TrimRight(buf.Bytes(), "\n"), &e); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if e.Component != "engine" || e.Message != "transaction committed" || e.Level != "INFO" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Warn, NewJSONOutput(&buf)).With("server")

	logger.Debug("noisy", nil)
	logger.Info("still noisy", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected debug/info to be filtered out below warn, got %q", buf.String())
	}

	logger.Warn("deadlock victim selected", map[string]any{"txn_id": 3})
	if buf.Len() == 0 {
		t.Fatal("expected warn entry to be written")
	}
}

func TestTextOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Debug, NewTextOutput(&buf)).With("lock_table")

	logger.Debug("acquired slot", map[string]any{"slot": 4})

	line := buf.String()
	if !strings.Contains(line, "[DEBUG]") || !strings.Contains(line, "lock_table") || !strings.Contains(line, "acquired slot") {
		t.Fatalf("unexpected text line: %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":     Debug,
		"warn":      Warn,
		"error":     Error,
		"info":      Info,
		"gibberish": Info,
		"":          Info,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
