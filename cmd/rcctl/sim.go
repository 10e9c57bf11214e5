package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"rclink/pkg/config"
	"rclink/pkg/control"
	"rclink/pkg/input"
	"rclink/pkg/link"
	"rclink/pkg/motor"
	"rclink/pkg/transport"
	"rclink/pkg/vehicle"
)

// runSim drives a dry-run hub from synthetic input over an in-memory link and
// writes every link event to stdout as JSONL.
func runSim(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	duration := fs.Duration("duration", 5*time.Second, "press the stop button after this long")
	timeout := fs.Duration("timeout", link.DefaultTimeout, "liveness timeout on both sides")
	skipCommands := fs.Bool("quiet", false, "log transitions only, not every command")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *duration <= 0 || *timeout <= 0 {
		fmt.Fprintln(stderr, "--duration and --timeout must be positive")
		return 2
	}

	l := newLogger(stderr)
	obs, err := startObservers(config.TelemetryConfig{EventLog: "-", SkipCommands: *skipCommands}, "rclink-sim", stdout, l)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer obs.stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	ln := transport.NewPipeListener()
	defer ln.Close()

	hubSession := link.NewSession(link.SideHub,
		link.WithTimeout(*timeout),
		link.WithActuator(motor.NewLogActuator(l)),
		link.WithIndicator(vehicle.NewStatusIndicator(vehicle.LogSignals{Logger: l})),
		link.WithAdvertiser(ln),
		link.WithObserver(obs.hub.Observe),
		link.WithLogger(l),
	)
	hubDone := make(chan error, 1)
	go func() {
		r := &vehicle.Receiver{Listener: ln, Session: hubSession, Logger: l}
		hubDone <- r.Run(hubCtx)
	}()

	src := input.NewMockSource(nil)
	src.StopAfter = *duration
	ctrlSession := link.NewSession(link.SideController,
		link.WithTimeout(*timeout),
		link.WithObserver(obs.hub.Observe),
		link.WithLogger(l),
	)
	ctrl := &control.Controller{
		Loop:           control.NewLoop(src, input.NewNormalizer(input.MockLayout()), control.DefaultConfig(), ctrlSession, link.SystemClock{}, l),
		Session:        ctrlSession,
		Dialer:         ln.Dialer(),
		ConnectBackoff: 100 * time.Millisecond,
		Logger:         l,
	}
	err = ctrl.Run(ctx)

	// let the hub apply the final stop before shutting it down
	time.Sleep(2 * control.DefaultPeriod)
	stopHub()
	<-hubDone
	return exitCode(err, stderr)
}
