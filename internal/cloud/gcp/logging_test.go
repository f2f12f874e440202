package gcp

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"cloud.google.com/go/logging"
)

// fakeSink captures entries instead of delivering them.
type fakeSink struct {
	entries []logging.Entry
	flushed int
}

func (f *fakeSink) Log(e logging.Entry) { f.entries = append(f.entries, e) }
func (f *fakeSink) Flush() error        { f.flushed++; return nil }

func TestCloudLoggerSeverityMapping(t *testing.T) {
	sink := &fakeSink{}
	cl := &CloudLogger{sink: sink, labels: map[string]string{"component": "bridge"}}

	cl.Debug("d")
	cl.Info("i")
	cl.Warning("w")
	cl.Errorf("e %d", 7)

	want := []logging.Severity{logging.Debug, logging.Info, logging.Warning, logging.Error}
	if len(sink.entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(sink.entries), len(want))
	}
	for i, sev := range want {
		if sink.entries[i].Severity != sev {
			t.Errorf("entry %d severity = %v, want %v", i, sink.entries[i].Severity, sev)
		}
		if sink.entries[i].Labels["component"] != "bridge" {
			t.Errorf("entry %d missing labels", i)
		}
	}
	if sink.entries[3].Payload != "e 7" {
		t.Errorf("payload = %v", sink.entries[3].Payload)
	}
}

func TestCloudLoggerSanitizesPayload(t *testing.T) {
	sink := &fakeSink{}
	cl := &CloudLogger{sink: sink}

	cl.Info("ghp_abcdef0123456789")

	if got := sink.entries[0].Payload; got != "[REDACTED_GITHUB_TOKEN]" {
		t.Errorf("payload = %v, token leaked into log sink", got)
	}
}

func TestCloudLoggerFlush(t *testing.T) {
	sink := &fakeSink{}
	cl := &CloudLogger{sink: sink}

	if err := cl.Flush(); err != nil {
		t.Fatal(err)
	}
	if sink.flushed != 1 {
		t.Errorf("flush count = %d", sink.flushed)
	}
}

func TestFallbackLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	fl := NewFallbackLogger(&buf, map[string]string{"component": "bridge"})

	fl.Infof("synced %d beads", 3)
	fl.Error("boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}

	var first logLine
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	if first.Severity != "INFO" || first.Message != "synced 3 beads" {
		t.Errorf("first = %+v", first)
	}
	if first.Labels["component"] != "bridge" {
		t.Errorf("labels = %v", first.Labels)
	}

	var second logLine
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second.Severity != "ERROR" {
		t.Errorf("second = %+v", second)
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ghp_secret", "[REDACTED_GITHUB_TOKEN]"},
		{"ghs_secret", "[REDACTED_GITHUB_TOKEN]"},
		{"github_pat_secret", "[REDACTED_GITHUB_TOKEN]"},
		{"Bearer abc123", "Bearer [REDACTED]"},
		{"plain message", "plain message"},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
