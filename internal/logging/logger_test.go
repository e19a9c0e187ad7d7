package logging

import (
	"os"
	"path/filepath"
	"testing"

	"wsiorpc/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputStdoutStderr(t *testing.T) {
	w, closer, err := openOutput("stdout")
	if err != nil || w != os.Stdout {
		t.Fatalf("openOutput(stdout): w=%v err=%v", w, err)
	}
	closer()

	w, closer, err = openOutput("")
	if err != nil || w != os.Stderr {
		t.Fatalf("openOutput(\"\"): w=%v err=%v", w, err)
	}
	closer()
}

func TestOpenOutputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	w, closer, err := openOutput(path)
	if err != nil {
		t.Fatalf("openOutput: %v", err)
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer()
	if log == nil {
		t.Fatal("logger is nil")
	}
}

func TestWithConnTagsConnID(t *testing.T) {
	log, closer, err := New(config.LoggerConfig{Level: "debug", Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	scoped := WithConn(log, "abc123")
	if scoped == nil {
		t.Fatal("scoped logger is nil")
	}
}
