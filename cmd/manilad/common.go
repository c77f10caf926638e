// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/openstack-charmers/charm-manila/cmd"
)

// configFlag is embedded by subcommands that read the daemon config.
type configFlag struct {
	configPath string
}

func (c *configFlag) setFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.configPath, "config", defaultConfigPath, "Path to the daemon config file")
}

func (c *configFlag) read(ctx *cmd.Context) (daemonConfig, error) {
	cfg, err := readDaemonConfig(ctx.AbsPath(c.configPath), ctx.Getenv)
	return cfg, errors.Trace(err)
}
