package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNew_WritesDailyJSONFile(t *testing.T) {
	root := t.TempDir()

	log, err := New(Options{Root: root, Dir: "logs", Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Infow("hello", "k", "v")
	_ = log.Sync()

	path := filepath.Join(root, "logs", time.Now().Format("2006-01-02")+".log")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"hello"`) || !strings.Contains(string(b), `"k":"v"`) {
		t.Fatalf("log line missing fields: %s", b)
	}
	if zap.L().Core().Enabled(zap.DebugLevel) != true {
		t.Fatalf("global logger not replaced with debug-level core")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(Options{Root: t.TempDir(), Dir: "logs", Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
