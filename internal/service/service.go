// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package service starts, stops and reloads the unit's system services
// through the systemd D-Bus API.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("manila.service")

// DBusAPI describes the systemd D-Bus calls the manager makes.
type DBusAPI interface {
	Close()
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ReloadUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
}

// DBusAPIFactory opens a connection to systemd.
type DBusAPIFactory = func(ctx context.Context) (DBusAPI, error)

// NewDBusAPI connects to the system instance of systemd.
func NewDBusAPI(ctx context.Context) (DBusAPI, error) {
	return dbus.NewWithContext(ctx)
}

const (
	defaultAttempts = 3
	defaultDelay    = 5 * time.Second
)

// Config holds the dependencies of a Manager.
type Config struct {
	NewDBus DBusAPIFactory
	Clock   clock.Clock

	// Attempts is how many times a failing start or restart is tried.
	Attempts int

	// Delay is the pause between attempts.
	Delay time.Duration
}

// Validate returns an error if the config cannot be used to make a
// Manager.
func (c Config) Validate() error {
	if c.NewDBus == nil {
		return errors.NotValidf("nil NewDBus")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Attempts < 0 {
		return errors.NotValidf("negative Attempts")
	}
	return nil
}

// Manager controls system services.
type Manager struct {
	config Config
}

// NewManager returns a Manager using the given config.
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Attempts == 0 {
		config.Attempts = defaultAttempts
	}
	if config.Delay == 0 {
		config.Delay = defaultDelay
	}
	return &Manager{config: config}, nil
}

// UnitName returns the systemd unit name of a service.
func UnitName(service string) string {
	if strings.Contains(service, ".") {
		return service
	}
	return service + ".service"
}

func (m *Manager) errorf(err error, service, msg string, args ...interface{}) error {
	msg += " for service %q"
	args = append(args, service)
	if err == nil {
		err = errors.Errorf(msg, args...)
	} else {
		err = errors.Annotatef(err, msg, args...)
	}
	logger.Errorf("%v", err)
	return err
}

func (m *Manager) conn(ctx context.Context) (DBusAPI, error) {
	conn, err := m.config.NewDBus(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "connecting to systemd")
	}
	return conn, nil
}

// IsRunning reports whether the service is loaded and active.
func (m *Manager) IsRunning(ctx context.Context, service string) (bool, error) {
	conn, err := m.conn(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()
	return m.isRunning(ctx, conn, service)
}

func (m *Manager) isRunning(ctx context.Context, conn DBusAPI, service string) (bool, error) {
	name := UnitName(service)
	units, err := conn.ListUnitsByNamesContext(ctx, []string{name})
	if err != nil {
		return false, m.errorf(err, service, "querying unit state")
	}
	for _, unit := range units {
		if unit.Name == name {
			return unit.LoadState == "loaded" && unit.ActiveState == "active", nil
		}
	}
	return false, nil
}

type jobFunc func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

// run submits a job and waits for systemd to report its result.
func (m *Manager) run(ctx context.Context, op, service string, job jobFunc) error {
	statusCh := make(chan string, 1)
	if _, err := job(ctx, UnitName(service), "replace", statusCh); err != nil {
		return m.errorf(err, service, "dbus %s request failed", op)
	}
	select {
	case status := <-statusCh:
		if status != "done" {
			return m.errorf(nil, service, "failed to %s (job result %q)", op, status)
		}
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "waiting to %s %q", op, service)
	}
}

// retrying runs f until it succeeds or the attempts are used up.
func (m *Manager) retrying(ctx context.Context, op, service string, f func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: f,
		IsFatalError: func(err error) bool {
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("attempt %d to %s %q failed: %v", attempt, op, service, err)
		},
		Attempts: m.config.Attempts,
		Delay:    m.config.Delay,
		Clock:    m.config.Clock,
		Stop:     ctx.Done(),
	})
	return errors.Trace(retry.LastError(err))
}

// Start starts the service unless it is already running.
func (m *Manager) Start(ctx context.Context, service string) error {
	conn, err := m.conn(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	return m.retrying(ctx, "start", service, func() error {
		running, err := m.isRunning(ctx, conn, service)
		if err != nil {
			return errors.Trace(err)
		}
		if running {
			logger.Debugf("service %q already running", service)
			return nil
		}
		if err := m.run(ctx, "start", service, conn.StartUnitContext); err != nil {
			return errors.Trace(err)
		}
		logger.Infof("started service %q", service)
		return nil
	})
}

// Stop stops the service if it is running.
func (m *Manager) Stop(ctx context.Context, service string) error {
	conn, err := m.conn(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	running, err := m.isRunning(ctx, conn, service)
	if err != nil {
		return errors.Trace(err)
	}
	if !running {
		logger.Debugf("service %q not running", service)
		return nil
	}
	if err := m.run(ctx, "stop", service, conn.StopUnitContext); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("stopped service %q", service)
	return nil
}

// Restart restarts the service, starting it if it was stopped.
func (m *Manager) Restart(ctx context.Context, service string) error {
	conn, err := m.conn(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	return m.retrying(ctx, "restart", service, func() error {
		if err := m.run(ctx, "restart", service, conn.RestartUnitContext); err != nil {
			return errors.Trace(err)
		}
		logger.Infof("restarted service %q", service)
		return nil
	})
}

// Reload asks the service to reload its configuration. If the reload
// fails and restartOnFailure is set, the service is restarted instead.
func (m *Manager) Reload(ctx context.Context, service string, restartOnFailure bool) error {
	conn, err := m.conn(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	err = m.run(ctx, "reload", service, conn.ReloadUnitContext)
	conn.Close()
	if err == nil {
		logger.Infof("reloaded service %q", service)
		return nil
	}
	if !restartOnFailure {
		return errors.Trace(err)
	}
	return errors.Trace(m.Restart(ctx, service))
}

// RestartAll restarts the services in order, stopping at the first
// failure.
func (m *Manager) RestartAll(ctx context.Context, services []string) error {
	for _, svc := range services {
		if err := m.Restart(ctx, svc); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
