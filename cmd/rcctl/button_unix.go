//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// stopButton turns SIGUSR1 into presses of the hub's stop button.
func stopButton(ctx context.Context) <-chan struct{} {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	presses := make(chan struct{})
	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				select {
				case presses <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return presses
}
