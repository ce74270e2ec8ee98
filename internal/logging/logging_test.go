package logging

import "testing"

func TestNew_Defaults(t *testing.T) {
	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger == nil {
		t.Fatal("logger is nil")
	}
	Sync(logger)
}

func TestNew_Console(t *testing.T) {
	logger, err := New(Config{Level: "DEBUG", Format: "console", Service: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("debug level should be enabled")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
