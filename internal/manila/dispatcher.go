// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/status"
	"github.com/openstack-charmers/charm-manila/internal/reactive"
)

// StateStore persists the fact store between events.
type StateStore interface {
	Load(ctx context.Context) (*facts.Store, error)
	Save(ctx context.Context, store *facts.Store) error
}

// Locker serialises ticks across processes on the machine.
type Locker interface {
	// Acquire blocks until the lock is held and returns the function
	// that releases it.
	Acquire(ctx context.Context, who string) (func(), error)
}

// MetricsRecorder is told about ticks and their outcome.
type MetricsRecorder interface {
	reactive.TickObserver
	SetStatus(info status.StatusInfo)
}

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Deps   Deps
	State  StateStore
	Lock   Locker
	Status status.StatusSetter

	// Metrics and ExportMetrics may be nil.
	Metrics       MetricsRecorder
	ExportMetrics func() error
}

// Validate ensures that the config values are valid.
func (c DispatcherConfig) Validate() error {
	if err := c.Deps.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.State == nil {
		return errors.NotValidf("nil State")
	}
	if c.Lock == nil {
		return errors.NotValidf("nil Lock")
	}
	if c.Status == nil {
		return errors.NotValidf("nil Status")
	}
	return nil
}

// Dispatcher runs one convergence tick per event.
type Dispatcher struct {
	config DispatcherConfig
	engine *reactive.Engine
}

// NewDispatcher returns a Dispatcher running the manila rule table.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	registry, err := NewRegistry(config.Deps)
	if err != nil {
		return nil, errors.Trace(err)
	}
	engineConfig := reactive.Config{Registry: registry}
	if config.Metrics != nil {
		engineConfig.Observer = config.Metrics
	}
	engine, err := reactive.NewEngine(engineConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Dispatcher{config: config, engine: engine}, nil
}

// Dispatch applies event to the persisted facts, runs a tick and
// publishes the resulting workload status. If the tick fails nothing is
// persisted, so the next event starts again from the last committed
// facts.
func (d *Dispatcher) Dispatch(ctx context.Context, event facts.Event) (status.StatusInfo, error) {
	if err := event.Validate(); err != nil {
		return status.StatusInfo{}, errors.Trace(err)
	}
	hook := event.HookName()
	release, err := d.config.Lock.Acquire(ctx, hook)
	if err != nil {
		return status.StatusInfo{}, errors.Trace(err)
	}
	defer release()

	store, err := d.config.State.Load(ctx)
	if err != nil {
		return status.StatusInfo{}, errors.Annotate(err, "loading unit state")
	}
	if err := store.Apply(event); err != nil {
		return status.StatusInfo{}, errors.Trace(err)
	}
	invoked, err := d.engine.Tick(ctx, store)
	if err != nil {
		return status.StatusInfo{}, errors.Annotatef(err, "processing %s", hook)
	}
	logger.Debugf("%s ran %d handlers", hook, len(invoked))

	var info status.StatusInfo
	if err := Provide(ctx, d.config.Deps, store, func(c *Charm) error {
		info = c.AssessStatus(ctx)
		return nil
	}); err != nil {
		return status.StatusInfo{}, errors.Trace(err)
	}
	now := d.config.Deps.Clock.Now()
	info.Since = &now
	if err := d.config.Status.SetStatus(ctx, info); err != nil {
		return status.StatusInfo{}, errors.Annotate(err, "setting workload status")
	}
	store.SetStatus(info)

	if cleared := store.ClearTransient(); len(cleared) > 0 {
		logger.Tracef("cleared %v", cleared)
	}
	if err := d.config.State.Save(ctx, store); err != nil {
		return status.StatusInfo{}, errors.Annotate(err, "saving unit state")
	}

	if d.config.Metrics != nil {
		d.config.Metrics.SetStatus(info)
	}
	if d.config.ExportMetrics != nil {
		if err := d.config.ExportMetrics(); err != nil {
			logger.Warningf("cannot export metrics: %v", err)
		}
	}
	return info, nil
}
