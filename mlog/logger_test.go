package mlog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"fatal":   FatalLevel,
		"ERROR":   ErrorLevel,
		"warning": WarnLevel,
		"notice":  NoticeLevel,
		"info":    InfoLevel,
		" debug ": DebugLevel,
		"trace":   TraceLevel,
		"":        InfoLevel,
		"bogus":   InfoLevel,
	}
	for s, want := range cases {
		if got := ParseLevel(s); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestWriterLogger(t *testing.T) {
	defer SetLogger(nil)
	var buf bytes.Buffer
	UseWriterLogger(&buf, InfoLevel)

	Debugf("hidden %d", 1)
	Infof("wheel buckets=%d", 8)
	Warn("capacity ", "exceeded")
	Tracef("hidden trace")
	if err := Sync(); err != nil {
		t.Logf("sync: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug/trace output leaked at info level:\n%s", out)
	}
	if !strings.Contains(out, "wheel buckets=8") || !strings.Contains(out, "capacity exceeded") {
		t.Fatalf("missing output:\n%s", out)
	}
	if !Enabled(WarnLevel) || Enabled(DebugLevel) {
		t.Fatal("Enabled disagrees with the configured level")
	}
}

func TestNilLogger(t *testing.T) {
	SetLogger(nil)
	Infof("dropped %d", 1)
	if Enabled(FatalLevel) {
		t.Fatal("nil logger should not be enabled")
	}
	if Sync() != nil {
		t.Fatal("Sync on nil logger")
	}
}

func TestFileLogger(t *testing.T) {
	defer SetLogger(nil)
	dir := t.TempDir()
	if err := UseFileLogger(FileOptions{Path: dir, Name: "bitwheel", Level: DebugLevel}); err != nil {
		t.Fatalf("UseFileLogger: %v", err)
	}
	Debugf("geometry buckets=%d", 16)
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, "bitwheel.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "geometry buckets=16") {
		t.Fatalf("log file content:\n%s", data)
	}
}
