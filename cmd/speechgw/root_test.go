package main

import (
	"strings"
	"testing"

	"github.com/example/go-speech-gateway/internal/config"
)

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"serve", "synth", "voices", "health"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "not-a-level"} {
		setupLogger(level)
	}
}

func TestRequireConfig_FailsWhenNotInitialized(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	// Zero-value config has an empty listen address.
	activeCfg = config.Config{}

	_, err := requireConfig()
	if err == nil {
		t.Fatal("expected error when config is not loaded")
	}
}

func TestReadSynthText_FlagValueWins(t *testing.T) {
	got, err := readSynthText("hello", strings.NewReader("ignored"))
	if err != nil {
		t.Fatalf("readSynthText: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q; want %q", got, "hello")
	}
}

func TestReadSynthText_DashReadsStdin(t *testing.T) {
	got, err := readSynthText("-", strings.NewReader("  from stdin\n"))
	if err != nil {
		t.Fatalf("readSynthText: %v", err)
	}
	if got != "from stdin" {
		t.Errorf("got %q; want %q", got, "from stdin")
	}
}

func TestReadSynthText_EmptyStdinFails(t *testing.T) {
	_, err := readSynthText("", strings.NewReader("   "))
	if err == nil {
		t.Fatal("expected error for empty input")
	}
}
