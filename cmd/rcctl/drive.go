package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"rclink/pkg/config"
	"rclink/pkg/control"
	"rclink/pkg/input"
	"rclink/pkg/link"
	"rclink/pkg/transport"
)

func runDrive(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("drive", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "config file (.toml, .yaml)")
	addr := fs.String("addr", "", "hub TCP address")
	serialPort := fs.String("serial", "", "serial radio port (overrides --addr)")
	source := fs.String("input", "", "input source: joystick, keyboard or mock")
	layout := fs.String("layout", "", "controller layout name (default: by device name)")
	joystickIndex := fs.Int("joystick", -1, "joystick index (default: first found)")
	threshold := fs.Int("threshold", 0, "send early when a command changes by more than this, 0 disables")
	eventLog := fs.String("log", "", "JSONL event log path, - for stdout")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := setFlags(fs)

	cfg, err := loadConfig(*configPath, set["config"])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if set["addr"] {
		cfg.Transport.Kind = config.TransportTCP
		cfg.Transport.Addr = *addr
	}
	if set["serial"] {
		cfg.Transport.Kind = config.TransportSerial
		cfg.Transport.SerialPort = *serialPort
	}
	if set["input"] {
		cfg.Controller.Input = *source
	}
	if set["layout"] {
		cfg.Controller.Layout = *layout
	}
	if set["joystick"] {
		cfg.Controller.JoystickIndex = *joystickIndex
	}
	if set["threshold"] {
		cfg.Controller.ChangeThreshold = *threshold
	}
	if set["log"] {
		cfg.Telemetry.EventLog = *eventLog
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	l := newLogger(stderr)
	src, normalizer, err := openSource(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer src.Close()
	l.Printf("input %s, layout %s", src.Name(), normalizer.Layout.Name)

	obs, err := startObservers(cfg.Telemetry, "rclink-controller", stdout, l)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer obs.stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := link.NewSession(link.SideController,
		link.WithTimeout(cfg.Link.TimeoutDuration()),
		link.WithObserver(obs.hub.Observe),
		link.WithLogger(l),
	)
	ctrl := &control.Controller{
		Loop:            control.NewLoop(src, normalizer, schedulerConfig(cfg.Controller), session, link.SystemClock{}, l),
		Session:         session,
		Dialer:          newDialer(cfg.Transport),
		ConnectAttempts: cfg.Controller.ConnectAttempts,
		ConnectBackoff:  cfg.Controller.ConnectBackoffDuration(),
		Logger:          l,
	}
	return exitCode(ctrl.Run(ctx), stderr)
}

func schedulerConfig(c config.ControllerConfig) control.Config {
	return control.Config{
		Period:          c.PeriodDuration(),
		MinInterval:     c.MinIntervalDuration(),
		ChangeThreshold: c.ChangeThreshold,
	}
}

func newDialer(c config.TransportConfig) transport.Dialer {
	if c.Kind == config.TransportSerial {
		return transport.SerialDialer{Port: c.SerialPort, Baud: c.SerialBaud}
	}
	return transport.NewTCPDialer(c.Addr)
}

func openSource(cfg config.Config) (input.Source, input.Normalizer, error) {
	var (
		src    input.Source
		layout input.Layout
	)
	switch cfg.Controller.Input {
	case config.InputKeyboard:
		src = input.NewKeyboardSource(os.Stdin, os.Stderr)
		layout = input.KeyboardLayout()
	case config.InputMock:
		src = input.NewMockSource(nil)
		layout = input.MockLayout()
	default:
		var (
			js  *input.JoystickSource
			err error
		)
		if cfg.Controller.JoystickIndex >= 0 {
			js, err = input.OpenJoystick(cfg.Controller.JoystickIndex)
		} else {
			js, err = input.FindJoystick(4)
		}
		if err != nil {
			return nil, input.Normalizer{}, err
		}
		src = js
		if cfg.Controller.Layout != "" {
			var ok bool
			if layout, ok = input.LayoutByName(cfg.Controller.Layout, cfg.Layouts); !ok {
				_ = js.Close()
				return nil, input.Normalizer{}, fmt.Errorf("unknown layout %q", cfg.Controller.Layout)
			}
		} else if layout, err = input.SelectLayout(js.Name(), cfg.Layouts); err != nil {
			_ = js.Close()
			return nil, input.Normalizer{}, err
		}
	}
	n := input.NewNormalizer(layout)
	n.Deadband = cfg.Controller.Deadband
	return src, n, nil
}

// exitCode maps a run result to the process exit status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	log.New(stderr, "", 0).Println(err)
	return 1
}
