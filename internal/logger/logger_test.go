package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		DebugLevel: zapcore.DebugLevel,
		InfoLevel:  zapcore.InfoLevel,
		WarnLevel:  zapcore.WarnLevel,
		ErrorLevel: zapcore.ErrorLevel,
		"bogus":    zapcore.InfoLevel,
		"":         zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := toZapLevel(in); got != want {
			t.Errorf("toZapLevel(%q): got %v, want %v", in, got, want)
		}
	}
}

func TestNewAndNop(t *testing.T) {
	if New(WarnLevel) == nil {
		t.Fatal("New returned nil")
	}
	l := Nop()
	if l == nil || l.SugaredLogger == nil {
		t.Fatal("Nop returned nil logger")
	}
	l.Infow("discarded", "k", "v")
}
