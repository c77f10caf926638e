// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/worker/v4"

	"github.com/openstack-charmers/charm-manila/cmd"
	"github.com/openstack-charmers/charm-manila/worker/eventsource"
)

const watchDoc = `
watch runs until interrupted. It dispatches the events queued in the
spool directory in the order they were queued, and an update-status event
every update-status-interval. Hook tools are run through juju-exec.
`

const defaultRetryDelay = 10 * time.Second

type watchCommand struct {
	configFlag
	retryDelay time.Duration

	// start returns the running worker; tests replace it.
	start func(ctx context.Context, cfg daemonConfig, retryDelay time.Duration) (worker.Worker, func(), error)
}

func newWatchCommand() *watchCommand {
	return &watchCommand{start: startEventSource}
}

// Info is part of the cmd.Command interface.
func (c *watchCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "watch",
		Purpose: "process spooled events until interrupted",
		Doc:     watchDoc,
	}
}

// SetFlags is part of the cmd.Command interface.
func (c *watchCommand) SetFlags(f *gnuflag.FlagSet) {
	c.configFlag.setFlags(f)
	f.DurationVar(&c.retryDelay, "retry-delay", defaultRetryDelay, "How long a failed event waits before it is retried")
}

// Init is part of the cmd.Command interface.
func (c *watchCommand) Init(args []string) error {
	if c.retryDelay <= 0 {
		return errors.NotValidf("non-positive --retry-delay")
	}
	return cmd.CheckEmpty(args)
}

// Run is part of the cmd.Command interface.
func (c *watchCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.read(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, cleanup, err := c.start(sigCtx, cfg, c.retryDelay)
	if err != nil {
		return errors.Trace(err)
	}
	defer cleanup()

	go func() {
		<-sigCtx.Done()
		logger.Infof("stopping")
		w.Kill()
	}()
	if err := w.Wait(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func startEventSource(ctx context.Context, cfg daemonConfig, retryDelay time.Duration) (worker.Worker, func(), error) {
	a, err := newAgent(ctx, cfg, true)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	w, err := eventsource.NewWorker(eventsource.Config{
		SpoolDir:             cfg.SpoolDir,
		Dispatcher:           a.dispatcher,
		Clock:                clock.WallClock,
		NewWatcher:           eventsource.NewWatcher,
		UpdateStatusInterval: cfg.UpdateStatusInterval,
		RetryDelay:           retryDelay,
	})
	if err != nil {
		a.close()
		return nil, nil, errors.Trace(err)
	}
	logger.Infof("watching %s for %s", cfg.SpoolDir, cfg.Unit)
	return w, a.close, nil
}
