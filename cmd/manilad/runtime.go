// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	"github.com/openstack-charmers/charm-manila/internal/execrunner"
	"github.com/openstack-charmers/charm-manila/internal/hooktool"
	"github.com/openstack-charmers/charm-manila/internal/machinelock"
	"github.com/openstack-charmers/charm-manila/internal/manila"
	"github.com/openstack-charmers/charm-manila/internal/metrics"
	"github.com/openstack-charmers/charm-manila/internal/render"
	"github.com/openstack-charmers/charm-manila/internal/service"
	"github.com/openstack-charmers/charm-manila/internal/unitstate"
)

const lockDelay = 250 * time.Millisecond

// execRunner runs hook tools through juju-exec in the unit's context.
// Hook tools are only on the PATH inside a hook; the watch subcommand
// runs outside of one.
type execRunner struct {
	unit   string
	runner hooktool.Runner
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	command := shellquote.Join(append([]string{name}, args...)...)
	return r.runner.Run(ctx, "juju-exec", r.unit, command)
}

// agent holds what a dispatch needs; close releases it.
type agent struct {
	dispatcher *manila.Dispatcher
	state      *unitstate.State
	tools      *hooktool.Tools
}

func (a *agent) close() {
	if err := a.state.Close(); err != nil {
		logger.Warningf("closing unit state: %v", err)
	}
}

// newAgent wires the dispatcher for the unit. When viaExec is set the
// hook tools are run through juju-exec.
func newAgent(ctx context.Context, cfg daemonConfig, viaExec bool) (*agent, error) {
	runner := execrunner.NewWithCommandRunner(
		execrunner.DefaultCommandRunner(),
		append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")...,
	)
	var toolRunner hooktool.Runner = runner
	if viaExec {
		toolRunner = execRunner{unit: cfg.Unit, runner: runner}
	}
	tools := hooktool.New(toolRunner)

	address, err := tools.UnitAddress(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	clk := clock.WallClock
	services, err := service.NewManager(service.Config{
		NewDBus: service.NewDBusAPI,
		Clock:   clk,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	lock, err := machinelock.New(machinelock.Config{
		Name:    machinelock.DefaultName,
		Clock:   clk,
		Delay:   lockDelay,
		Timeout: cfg.LockTimeout,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	state, err := unitstate.Open(ctx, cfg.StatePath)
	if err != nil {
		return nil, errors.Trace(err)
	}

	collector := metrics.NewCollector(clk)
	var export func() error
	if cfg.MetricsPath != "" {
		export = func() error {
			return metrics.WriteTextfile(cfg.MetricsPath, collector)
		}
	}
	dispatcher, err := manila.NewDispatcher(manila.DispatcherConfig{
		Deps: manila.Deps{
			Unit:         cfg.Unit,
			Address:      address,
			CPUs:         runtime.NumCPU(),
			Services:     services,
			Runner:       runner,
			Tools:        tools,
			Materializer: render.NewMaterializer(cfg.Root),
			Clock:        clk,
			Recorder:     collector,
		},
		State:         state,
		Lock:          lock,
		Status:        tools,
		Metrics:       collector,
		ExportMetrics: export,
	})
	if err != nil {
		_ = state.Close()
		return nil, errors.Trace(err)
	}
	return &agent{dispatcher: dispatcher, state: state, tools: tools}, nil
}

// newHookTools returns hook tools run directly, as inside a hook.
func newHookTools() *hooktool.Tools {
	return hooktool.New(execrunner.New())
}

func wallNow() time.Time {
	return clock.WallClock.Now()
}
