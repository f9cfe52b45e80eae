package logger_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"farm_mapper/internal/logger"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	defer logrus.SetLevel(logrus.InfoLevel)

	path := filepath.Join(t.TempDir(), "app.log")
	w, err := logger.Setup(logger.Options{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if w == nil {
		t.Fatal("nil writer")
	}

	logrus.WithField("owner_id", "abc").Debug("hello")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(raw)
	if !strings.Contains(line, `"msg":"hello"`) || !strings.Contains(line, `"owner_id":"abc"`) {
		t.Fatalf("log line = %q", line)
	}
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v", logrus.GetLevel())
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if _, err := logger.Setup(logger.Options{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
