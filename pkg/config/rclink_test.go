package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rclink/pkg/input"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, exists, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil || exists {
		t.Fatalf("unexpected result exists=%v err=%v", exists, err)
	}
	if cfg.Link.TimeoutDuration() != 2*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Link.TimeoutDuration())
	}
	if cfg.Controller.PeriodDuration() != 50*time.Millisecond || cfg.Controller.ChangeThreshold != 5 {
		t.Fatalf("unexpected controller defaults %+v", cfg.Controller)
	}
	if len(cfg.Layouts) != 2 {
		t.Fatalf("expected built-in layouts, got %d", len(cfg.Layouts))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "rclink.toml", `
[link]
timeout = "1500ms"

[controller]
input = "Keyboard"
change_threshold = 0
layout = "xbox"

[transport]
kind = "serial"
serial_port = "/dev/ttyUSB0"

[[layouts]]
name = "xbox"
match = ["xbox"]
drive_axis = 1
invert_drive = true
steer_axis = 3
trigger_axis = 5
stop_button = 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Link.TimeoutDuration() != 1500*time.Millisecond {
		t.Fatalf("unexpected timeout %v", cfg.Link.TimeoutDuration())
	}
	if cfg.Controller.Input != InputKeyboard || cfg.Controller.ChangeThreshold != 0 {
		t.Fatalf("unexpected controller %+v", cfg.Controller)
	}
	if cfg.Transport.SerialBaud != 115200 {
		t.Fatalf("serial baud not defaulted: %d", cfg.Transport.SerialBaud)
	}
	if len(cfg.Layouts) != 1 || cfg.Layouts[0].TriggerRange != input.TriggerSigned {
		t.Fatalf("file layouts must replace the built-ins: %+v", cfg.Layouts)
	}
	if cfg.ConfigPath() != path {
		t.Fatalf("unexpected config path %s", cfg.ConfigPath())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "rclink.yaml", `
hub:
  motor: serial
  motor_port: /dev/ttyACM0
  tick: 10ms
telemetry:
  enabled: true
  secret: pit-secret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hub.Motor != MotorSerial || cfg.Hub.TickDuration() != 10*time.Millisecond {
		t.Fatalf("unexpected hub %+v", cfg.Hub)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Secret != "pit-secret" {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	if len(cfg.Layouts) != 2 {
		t.Fatalf("expected built-in layouts, got %d", len(cfg.Layouts))
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":   "[link]\ntimeout = \"soon\"\n",
		"zero timeout":   "[link]\ntimeout = \"0s\"\n",
		"unknown input":  "[controller]\ninput = \"wheel\"\n",
		"serial no port": "[transport]\nkind = \"serial\"\n",
		"unknown layout": "[controller]\nlayout = \"missing\"\n",
		"motor no port":  "[hub]\nmotor = \"serial\"\n",
		"bad layout":     "[[layouts]]\nname = \"x\"\nstop_button = 40\n",
		"dup layout":     "[[layouts]]\nname = \"x\"\n[[layouts]]\nname = \"X\"\n",
	}
	for name, content := range cases {
		path := writeFile(t, "rclink.toml", content)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "rclink.yml", "link:\n  timout: 2s\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out/rclink.toml", "out/rclink.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		cfg := Default()
		cfg.Hub.Name = "RACER_1"
		cfg.Controller.Input = InputMock
		if err := cfg.Save(path); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if got.Hub.Name != "RACER_1" || got.Controller.Input != InputMock {
			t.Fatalf("%s: unexpected round trip %+v", name, got)
		}
		if len(got.Layouts) != 2 || got.Layouts[0].Name != "dualsense" {
			t.Fatalf("%s: layouts lost: %+v", name, got.Layouts)
		}
	}
}
