package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_LevelFallback(t *testing.T) {
	log, err := New("shouting")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info enabled for unknown level")
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug disabled for unknown level")
	}
}

func TestNew_Debug(t *testing.T) {
	log, err := New(" DEBUG ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug enabled")
	}
}

func TestNewWithFormat_Console(t *testing.T) {
	if _, err := NewWithFormat("warn", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewWithFormat("warn", "xml"); err != nil {
		t.Fatalf("unknown format should fall back to json: %v", err)
	}
}
