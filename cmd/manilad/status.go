// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/openstack-charmers/charm-manila/cmd"
	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/internal/unitstate"
)

const statusDoc = `
status prints the workload status computed by the last dispatch and the
facts currently set for the unit.
`

// unitStatus is the output of the status command.
type unitStatus struct {
	Unit      string              `yaml:"unit" json:"unit"`
	Status    string              `yaml:"status" json:"status"`
	Message   string              `yaml:"message,omitempty" json:"message,omitempty"`
	Flags     []string            `yaml:"flags" json:"flags"`
	Relations map[string][]string `yaml:"relations,omitempty" json:"relations,omitempty"`
}

type statusCommand struct {
	configFlag
	out cmd.Output

	// load returns the persisted facts; tests replace it.
	load func(ctx context.Context, path string) (*facts.Store, error)
}

func newStatusCommand() *statusCommand {
	return &statusCommand{load: loadStore}
}

// Info is part of the cmd.Command interface.
func (c *statusCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "status",
		Purpose: "show the unit's status and facts",
		Doc:     statusDoc,
	}
}

// SetFlags is part of the cmd.Command interface.
func (c *statusCommand) SetFlags(f *gnuflag.FlagSet) {
	c.configFlag.setFlags(f)
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

// Init is part of the cmd.Command interface.
func (c *statusCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run is part of the cmd.Command interface.
func (c *statusCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.read(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	store, err := c.load(ctx, cfg.StatePath)
	if err != nil {
		return errors.Trace(err)
	}
	info := store.Status()
	result := unitStatus{
		Unit:    cfg.Unit,
		Status:  info.Status.String(),
		Message: info.Message,
		Flags:   store.Flags(),
	}
	if result.Flags == nil {
		result.Flags = []string{}
	}
	for _, rel := range store.Relations() {
		if result.Relations == nil {
			result.Relations = make(map[string][]string)
		}
		result.Relations[rel] = store.RelationUnitNames(rel)
	}
	return c.out.Write(ctx, result)
}

func loadStore(ctx context.Context, path string) (*facts.Store, error) {
	state, err := unitstate.Open(ctx, path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer func() { _ = state.Close() }()
	store, err := state.Load(ctx)
	return store, errors.Trace(err)
}
