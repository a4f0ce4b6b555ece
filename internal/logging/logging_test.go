package logging

import (
	"testing"

	"bybit-exec-bot/internal/config"

	"go.uber.org/zap/zapcore"
)

func TestNewLevel(t *testing.T) {
	log := New(config.LoggingConfig{Level: "warn"})
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info to be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("expected warn to be enabled")
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	log := New(config.LoggingConfig{Level: "loud", Format: "console"})
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug to be disabled")
	}
	if !log.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info to be enabled")
	}
}
