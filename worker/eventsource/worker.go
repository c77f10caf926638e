// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package eventsource runs the manila charm as a long-lived process. Events
// are picked up from a spool directory as they are written, and an
// update-status event is raised periodically.
package eventsource

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/worker/v4/catacomb"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/status"
)

var logger = loggo.GetLogger("manila.worker.eventsource")

// Dispatcher processes one event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event facts.Event) (status.StatusInfo, error)
}

// Watcher reports changes to a directory.
type Watcher interface {
	Add(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

type fsWatcher struct {
	*fsnotify.Watcher
}

func (w fsWatcher) Events() <-chan fsnotify.Event { return w.Watcher.Events }
func (w fsWatcher) Errors() <-chan error          { return w.Watcher.Errors }

// NewWatcher returns a Watcher backed by inotify.
func NewWatcher() (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return fsWatcher{w}, nil
}

// Config holds the dependencies and parameters of the worker.
type Config struct {
	SpoolDir   string
	Dispatcher Dispatcher
	Clock      clock.Clock
	NewWatcher func() (Watcher, error)

	// UpdateStatusInterval is how often an update-status event is
	// dispatched.
	UpdateStatusInterval time.Duration

	// RetryDelay is how long a failed event waits before it is
	// dispatched again.
	RetryDelay time.Duration
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.SpoolDir == "" {
		return errors.NotValidf("empty SpoolDir")
	}
	if c.Dispatcher == nil {
		return errors.NotValidf("nil Dispatcher")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.NewWatcher == nil {
		return errors.NotValidf("nil NewWatcher")
	}
	if c.UpdateStatusInterval <= 0 {
		return errors.NotValidf("non-positive UpdateStatusInterval")
	}
	if c.RetryDelay <= 0 {
		return errors.NotValidf("non-positive RetryDelay")
	}
	return nil
}

// Worker dispatches spooled and periodic events.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// NewWorker starts a worker that dispatches the events written to the
// spool directory.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Name: "eventsource",
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) loop() error {
	if err := os.MkdirAll(w.config.SpoolDir, 0700); err != nil {
		return errors.Trace(err)
	}
	watcher, err := w.config.NewWatcher()
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Warningf("closing spool watcher: %v", err)
		}
	}()
	if err := watcher.Add(w.config.SpoolDir); err != nil {
		return errors.Annotatef(err, "watching %s", w.config.SpoolDir)
	}

	ctx := w.catacomb.Context(context.Background())
	timer := w.config.Clock.NewTimer(w.config.UpdateStatusInterval)
	defer timer.Stop()

	var retry <-chan time.Time
	drain := func() error {
		failed, err := w.processSpool(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if failed && retry == nil {
			retry = w.config.Clock.After(w.config.RetryDelay)
		}
		return nil
	}
	if err := drain(); err != nil {
		return errors.Trace(err)
	}

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case ev, ok := <-watcher.Events():
			if !ok {
				return errors.New("spool watcher closed")
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if err := drain(); err != nil {
				return errors.Trace(err)
			}
		case err, ok := <-watcher.Errors():
			if !ok {
				return errors.New("spool watcher closed")
			}
			return errors.Annotate(err, "watching spool")
		case <-retry:
			retry = nil
			if err := drain(); err != nil {
				return errors.Trace(err)
			}
		case <-timer.Chan():
			w.dispatch(ctx, facts.Event{Kind: facts.UpdateStatus})
			timer.Reset(w.config.UpdateStatusInterval)
		}
	}
}

// processSpool dispatches the spooled events in order and removes each
// once it has been processed. It stops at the first event that fails,
// which is left in place to be retried; the boolean result reports that.
func (w *Worker) processSpool(ctx context.Context) (bool, error) {
	paths, err := spooled(w.config.SpoolDir)
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, path := range paths {
		event, err := readEvent(path)
		if err != nil {
			logger.Errorf("discarding %v", err)
			if err := os.Remove(path); err != nil {
				return false, errors.Trace(err)
			}
			continue
		}
		if !w.dispatch(ctx, event) {
			return true, nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, errors.Trace(err)
		}
	}
	return false, nil
}

func (w *Worker) dispatch(ctx context.Context, event facts.Event) bool {
	info, err := w.config.Dispatcher.Dispatch(ctx, event)
	if err != nil {
		logger.Errorf("%s failed: %v", event.HookName(), err)
		return false
	}
	logger.Infof("%s: %s", event.HookName(), info)
	return true
}
