// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/openstack-charmers/charm-manila/cmd"
	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/status"
	"github.com/openstack-charmers/charm-manila/worker/eventsource"
)

const dispatchDoc = `
dispatch processes the current hook. The hook name is taken from the
argument or, if omitted, from JUJU_HOOK_NAME. Relation hooks read the
remote unit's settings and config-changed reads the charm options.

With --spool the event is written to the spool directory for a running
"manilad watch" instead of being processed in place.
`

type dispatchCommand struct {
	configFlag
	hook  string
	spool bool

	// dispatch processes the event; tests replace it.
	dispatch func(ctx *cmd.Context, cfg daemonConfig, hook string) (facts.Event, status.StatusInfo, error)
	enqueue  func(ctx *cmd.Context, cfg daemonConfig, hook string) (string, error)
}

func newDispatchCommand() *dispatchCommand {
	return &dispatchCommand{
		dispatch: dispatchHook,
		enqueue:  enqueueHook,
	}
}

// Info is part of the cmd.Command interface.
func (c *dispatchCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "dispatch",
		Args:    "[<hook-name>]",
		Purpose: "process a hook",
		Doc:     dispatchDoc,
	}
}

// SetFlags is part of the cmd.Command interface.
func (c *dispatchCommand) SetFlags(f *gnuflag.FlagSet) {
	c.configFlag.setFlags(f)
	f.BoolVar(&c.spool, "spool", false, "Queue the event for the watch command")
}

// Init is part of the cmd.Command interface.
func (c *dispatchCommand) Init(args []string) error {
	if len(args) > 0 {
		c.hook, args = args[0], args[1:]
	}
	return cmd.CheckEmpty(args)
}

// Run is part of the cmd.Command interface.
func (c *dispatchCommand) Run(ctx *cmd.Context) error {
	hook := c.hook
	if hook == "" {
		hook = ctx.Getenv("JUJU_HOOK_NAME")
	}
	if hook == "" {
		return errors.New("no hook name given and JUJU_HOOK_NAME is not set")
	}
	cfg, err := c.read(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.spool {
		path, err := c.enqueue(ctx, cfg, hook)
		if err != nil {
			return errors.Trace(err)
		}
		ctx.Infof("queued %s as %s", hook, path)
		return nil
	}
	event, info, err := c.dispatch(ctx, cfg, hook)
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("%s: %s", event.HookName(), info)
	return nil
}

func dispatchHook(ctx *cmd.Context, cfg daemonConfig, hook string) (facts.Event, status.StatusInfo, error) {
	a, err := newAgent(ctx, cfg, false)
	if err != nil {
		return facts.Event{}, status.StatusInfo{}, errors.Trace(err)
	}
	defer a.close()
	event, err := eventFromHook(ctx, hook, ctx.Getenv, a.tools)
	if err != nil {
		return facts.Event{}, status.StatusInfo{}, errors.Trace(err)
	}
	info, err := a.dispatcher.Dispatch(ctx, event)
	return event, info, errors.Trace(err)
}

func enqueueHook(ctx *cmd.Context, cfg daemonConfig, hook string) (string, error) {
	tools := newHookTools()
	event, err := eventFromHook(ctx, hook, ctx.Getenv, tools)
	if err != nil {
		return "", errors.Trace(err)
	}
	path, err := eventsource.Enqueue(cfg.SpoolDir, event, wallNow())
	return path, errors.Trace(err)
}
