package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"trace": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestNew_ConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "request_id", "r1")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") || !strings.Contains(out, "request_id=r1") {
		t.Errorf("console = %q", out)
	}
}

func TestNew_JSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	logger, closer, err := New(Options{Format: "json", File: path, Console: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("stream done", "request_id", "r1")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("not a JSON record: %q", data)
	}
	if rec["msg"] != "stream done" || rec["request_id"] != "r1" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_FileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "chat.log")
	logger, closer, err := New(Options{File: path, Console: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("both")
	closer.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "msg=both") || !strings.Contains(buf.String(), "msg=both") {
		t.Errorf("file = %q, console = %q", data, buf.String())
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
}
