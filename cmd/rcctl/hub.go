package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"rclink/pkg/config"
	"rclink/pkg/link"
	"rclink/pkg/motor"
	"rclink/pkg/transport"
	"rclink/pkg/vehicle"
)

func runHub(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("hub", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "config file (.toml, .yaml)")
	listen := fs.String("listen", "", "TCP listen address")
	serialPort := fs.String("serial", "", "serial radio port (overrides --listen)")
	motorKind := fs.String("motor", "", "motor adapter: log or serial")
	motorPort := fs.String("motor-port", "", "motor controller serial port")
	timeout := fs.Duration("timeout", 0, "liveness timeout")
	eventLog := fs.String("log", "", "JSONL event log path, - for stdout")
	telemetryAddr := fs.String("telemetry", "", "serve telemetry websocket on this address")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	set := setFlags(fs)

	cfg, err := loadConfig(*configPath, set["config"])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if set["listen"] {
		cfg.Transport.Kind = config.TransportTCP
		cfg.Hub.Listen = *listen
	}
	if set["serial"] {
		cfg.Transport.Kind = config.TransportSerial
		cfg.Transport.SerialPort = *serialPort
	}
	if set["motor"] {
		cfg.Hub.Motor = *motorKind
	}
	if set["motor-port"] {
		cfg.Hub.MotorPort = *motorPort
	}
	if set["timeout"] {
		cfg.Link.Timeout = timeout.String()
	}
	if set["log"] {
		cfg.Telemetry.EventLog = *eventLog
	}
	if set["telemetry"] {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Addr = *telemetryAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	l := newLogger(stderr)
	act, closeMotors, err := openActuator(cfg.Hub, l)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeMotors()
	l.Printf("motors: %s", motor.VersionOf(act))

	ln, err := newListener(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer ln.Close()

	obs, err := startObservers(cfg.Telemetry, cfg.Hub.Name, stdout, l)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer obs.stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := link.NewSession(link.SideHub,
		link.WithTimeout(cfg.Link.TimeoutDuration()),
		link.WithActuator(act),
		link.WithIndicator(vehicle.NewStatusIndicator(vehicle.LogSignals{Logger: l})),
		link.WithAdvertiser(ln),
		link.WithObserver(obs.hub.Observe),
		link.WithLogger(l),
	)
	l.Printf("hub %s waiting for a controller (SIGUSR1 stops the motors)", cfg.Hub.Name)

	r := &vehicle.Receiver{
		Listener:          ln,
		Session:           session,
		Logger:            l,
		TickInterval:      cfg.Hub.TickDuration(),
		AdvertiseInterval: cfg.Hub.AdvertiseIntervalDuration(),
		StopButton:        stopButton(ctx),
	}
	return exitCode(r.Run(ctx), stderr)
}

func openActuator(c config.HubConfig, l *log.Logger) (motor.Actuator, func(), error) {
	if c.Motor == config.MotorSerial {
		act, err := motor.OpenSerialActuator(c.MotorPort, c.MotorBaud)
		if err != nil {
			return nil, nil, err
		}
		return act, func() {
			_ = act.StopAll()
			_ = act.Close()
		}, nil
	}
	return motor.NewLogActuator(l), func() {}, nil
}

func newListener(cfg config.Config) (transport.Listener, error) {
	if cfg.Transport.Kind == config.TransportSerial {
		return transport.SerialListener{Port: cfg.Transport.SerialPort, Baud: cfg.Transport.SerialBaud}, nil
	}
	return transport.ListenTCP(cfg.Hub.Listen)
}
