package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"rclink/pkg/bridge/telemetry"
	"rclink/pkg/config"
	"rclink/pkg/engine"
	"rclink/pkg/logger"
)

// observers wires the event bus to the JSONL log and the telemetry bridge.
type observers struct {
	hub    *engine.Hub
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closer io.Closer
}

// startObservers starts the bus. eventLog "-" writes events to stdout.
func startObservers(cfg config.TelemetryConfig, name string, stdout io.Writer, l *log.Logger) (*observers, error) {
	ctx, cancel := context.WithCancel(context.Background())
	o := &observers{hub: engine.NewHub(), cancel: cancel}

	var out io.Writer
	switch cfg.EventLog {
	case "":
	case "-":
		out = stdout
	default:
		file, err := os.Create(cfg.EventLog)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open event log: %w", err)
		}
		o.closer = file
		out = file
	}

	var srv *telemetry.Server
	if cfg.Enabled {
		var err error
		srv, err = telemetry.NewServer(telemetry.Config{Addr: cfg.Addr, Name: name, Secret: cfg.Secret}, o.hub, l)
		if err != nil {
			cancel()
			o.closeFile()
			return nil, err
		}
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.hub.Run(ctx)
	}()

	if out != nil {
		var opts []logger.Option
		if cfg.SkipCommands {
			opts = append(opts, logger.WithoutCommands())
		}
		w := logger.NewJSONLWriter(out, opts...)
		sub := o.hub.Subscribe()
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			// runs until the bus closes the subscription
			w.Consume(context.Background(), sub)
		}()
	}

	if srv != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := srv.Run(ctx); err != nil {
				l.Printf("telemetry: %v", err)
			}
		}()
		l.Printf("telemetry on ws://%s/", cfg.Addr)
	}
	return o, nil
}

func (o *observers) stop() {
	o.cancel()
	o.wg.Wait()
	o.closeFile()
}

func (o *observers) closeFile() {
	if o.closer != nil {
		_ = o.closer.Close()
	}
}
