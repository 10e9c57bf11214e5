package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rclink/pkg/bridge/telemetry"
	"rclink/pkg/config"
)

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"help"}, &out, &errOut); code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if !strings.Contains(out.String(), "rcctl drive") {
		t.Fatalf("usage missing drive: %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"fly"}, &out, &errOut); code != 2 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: fly") {
		t.Fatalf("unexpected stderr: %q", errOut.String())
	}
}

func TestRunNoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 2 {
		t.Fatalf("unexpected exit code: %d", code)
	}
}

func TestSimConnectsAndStops(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"sim", "--duration", "300ms"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("sim exit code %d, stderr: %s", code, errOut.String())
	}

	got := out.String()
	for _, want := range []string{
		`"side":"controller"`,
		`"side":"hub"`,
		`"to":"connected"`,
		`"kind":"command"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("event log missing %s:\n%s", want, got)
		}
	}
}

func TestSimRejectsBadDuration(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"sim", "--duration", "0s"}, &out, &errOut); code != 2 {
		t.Fatalf("unexpected exit code: %d", code)
	}
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rclink.yaml")
	var out, errOut bytes.Buffer
	if code := run([]string{"init", "--config", path}, &out, &errOut); code != 0 {
		t.Fatalf("init exit code %d: %s", code, errOut.String())
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Hub.Name != config.Default().Hub.Name {
		t.Fatalf("unexpected hub name: %q", cfg.Hub.Name)
	}

	errOut.Reset()
	if code := run([]string{"init", "--config", path}, &out, &errOut); code != 1 {
		t.Fatalf("second init should refuse, got %d", code)
	}
	if code := run([]string{"init", "--config", path, "--force"}, &out, &errOut); code != 0 {
		t.Fatalf("forced init exit code %d", code)
	}
}

func TestTokenVerifies(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"token", "--secret", "s3cret", "--subject", "pit", "--ttl", "1h"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("token exit code %d: %s", code, errOut.String())
	}
	v, err := telemetry.NewVerifier("s3cret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	sub, err := v.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("issued token rejected: %v", err)
	}
	if sub != "pit" {
		t.Fatalf("unexpected subject: %q", sub)
	}
}

func TestDriveMissingExplicitConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	path := filepath.Join(t.TempDir(), "missing.toml")
	if code := run([]string{"drive", "--config", path}, &out, &errOut); code != 1 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("drive should not create %s", path)
	}
}
