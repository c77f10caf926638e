// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package machinelock serialises convergence ticks across processes on
// the same machine.
package machinelock

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/mutex/v2"
)

var logger = loggo.GetLogger("manila.machinelock")

// DefaultName is the name of the lock shared by every manila process on
// the machine.
const DefaultName = "manila-charm"

// Config describes the lock.
type Config struct {
	Name  string
	Clock clock.Clock

	// Delay is how often a contended lock is retried.
	Delay time.Duration

	// Timeout bounds how long Acquire waits.
	Timeout time.Duration
}

// Validate returns an error if the config is unusable.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.NotValidf("empty Name")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Delay <= 0 {
		return errors.NotValidf("non-positive Delay")
	}
	if c.Timeout <= 0 {
		return errors.NotValidf("non-positive Timeout")
	}
	return nil
}

// Lock is a machine wide mutex.
type Lock struct {
	config Config
}

// New returns a Lock for the given config.
func New(config Config) (*Lock, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Lock{config: config}, nil
}

// Acquire blocks until the lock is held, the timeout passes or ctx is
// done. The returned function releases the lock.
func (l *Lock) Acquire(ctx context.Context, who string) (func(), error) {
	logger.Debugf("acquiring machine lock %q for %s", l.config.Name, who)
	start := l.config.Clock.Now()
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    l.config.Name,
		Clock:   l.config.Clock,
		Delay:   l.config.Delay,
		Timeout: l.config.Timeout,
		Cancel:  ctx.Done(),
	})
	if err != nil {
		return nil, errors.Annotatef(err, "acquiring machine lock for %s", who)
	}
	logger.Debugf("machine lock %q acquired for %s after %v", l.config.Name, who, l.config.Clock.Now().Sub(start))
	return func() {
		releaser.Release()
		logger.Debugf("machine lock %q released for %s", l.config.Name, who)
	}, nil
}
