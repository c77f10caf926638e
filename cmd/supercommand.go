// Copyright 2012, 2013 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
)

// SuperCommandParams describes a SuperCommand.
type SuperCommandParams struct {
	Name    string
	Purpose string
	Doc     string

	// DefaultLogging is the loggo configuration used when none is given
	// on the command line.
	DefaultLogging string
}

// SuperCommand is a Command that selects a subcommand from its first
// positional argument and runs it.
type SuperCommand struct {
	params  SuperCommandParams
	subcmds map[string]Command

	debug         bool
	loggingConfig string

	subcmd     Command
	subcmdArgs []string
}

// NewSuperCommand returns a SuperCommand without subcommands.
func NewSuperCommand(params SuperCommandParams) *SuperCommand {
	return &SuperCommand{
		params:  params,
		subcmds: make(map[string]Command),
	}
}

// Register makes a subcommand available.
func (c *SuperCommand) Register(subcmd Command) {
	name := subcmd.Info().Name
	if _, ok := c.subcmds[name]; ok {
		panic(fmt.Sprintf("command already registered: %q", name))
	}
	c.subcmds[name] = subcmd
}

// Info is part of the Command interface.
func (c *SuperCommand) Info() *Info {
	return &Info{
		Name:    c.params.Name,
		Args:    "<command> ...",
		Purpose: c.params.Purpose,
		Doc:     c.describeCommands(),
	}
}

func (c *SuperCommand) describeCommands() string {
	names := make([]string, 0, len(c.subcmds))
	width := 0
	for name := range c.subcmds {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)
	lines := []string{strings.TrimSpace(c.params.Doc), "", "Commands:"}
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("    %-*s - %s", width, name, c.subcmds[name].Info().Purpose))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SetFlags is part of the Command interface.
func (c *SuperCommand) SetFlags(f *gnuflag.FlagSet) {
	f.BoolVar(&c.debug, "debug", false, "Equivalent to --logging-config=<root>=DEBUG")
	f.StringVar(&c.loggingConfig, "logging-config", c.params.DefaultLogging, "Specify log levels for modules")
}

// AllowInterspersedFlags returns false so that flags after the
// subcommand name are left to the subcommand.
func (c *SuperCommand) AllowInterspersedFlags() bool {
	return false
}

// Init is part of the Command interface.
func (c *SuperCommand) Init(args []string) error {
	if len(args) == 0 {
		return errors.New("no command specified")
	}
	subcmd, ok := c.subcmds[args[0]]
	if !ok {
		return errors.Errorf("unrecognized command: %s %s", c.params.Name, args[0])
	}
	c.subcmd = subcmd
	c.subcmdArgs = args[1:]
	return nil
}

func (c *SuperCommand) configureLogging() error {
	config := c.loggingConfig
	if c.debug {
		config = "<root>=DEBUG"
	}
	if config == "" {
		return nil
	}
	return errors.Annotate(loggo.ConfigureLoggers(config), "configuring logging")
}

// Run is part of the Command interface.
func (c *SuperCommand) Run(ctx *Context) error {
	if c.subcmd == nil {
		return errors.New("no command specified")
	}
	if err := c.configureLogging(); err != nil {
		return errors.Trace(err)
	}
	if err := Parse(c.subcmd, ctx.Stderr, c.subcmdArgs); err != nil {
		return errors.Annotatef(err, "%s %s", c.params.Name, c.subcmd.Info().Name)
	}
	logger.Debugf("running %s %s", c.params.Name, c.subcmd.Info().Name)
	return c.subcmd.Run(ctx)
}
