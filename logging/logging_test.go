package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewDefaults(t *testing.T) {
	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger == nil {
		t.Fatal("New returned a nil logger")
	}
	logger.Sync()
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "chatty"}); err != nil {
		return
	}
	t.Error("New accepted an unknown log level")
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if _, err := New(Config{Level: level}); err != nil {
			t.Errorf("New(%q): %v", level, err)
		}
	}
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	flush, err := Init(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	zap.S().Infof("Analyzed %d texts", 3)
	flush()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "Analyzed 3 texts") {
		t.Errorf("log file does not contain the message:\n%s", data)
	}
}

func TestInitFileFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	flush, err := Init(Config{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	zap.S().Infof("suppressed line")
	zap.S().Warnf("kept line")
	flush()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "suppressed line") {
		t.Error("info line leaked past a warn-level logger")
	}
	if !strings.Contains(string(data), "kept line") {
		t.Errorf("warn line missing from log file:\n%s", data)
	}
}
