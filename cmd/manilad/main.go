// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// manilad drives the manila charm. Hooks call "manilad dispatch"; a
// long-running "manilad watch" can instead consume events spooled by
// "manilad dispatch --spool".
package main

import (
	"fmt"
	"os"

	"github.com/juju/loggo"

	"github.com/openstack-charmers/charm-manila/cmd"
)

var logger = loggo.GetLogger("manila.cmd.manilad")

const manilaDoc = `
manilad converges the manila unit towards its configuration: it records
the event, runs the handlers whose conditions hold and reports the
workload status.
`

// newManilaCommand returns the manilad supercommand with all subcommands
// registered.
func newManilaCommand() *cmd.SuperCommand {
	super := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:           "manilad",
		Purpose:        "drive the manila charm",
		Doc:            manilaDoc,
		DefaultLogging: "<root>=INFO",
	})
	super.Register(newDispatchCommand())
	super.Register(newWatchCommand())
	super.Register(newStatusCommand())
	return super
}

func main() {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(cmd.Main(newManilaCommand(), ctx, os.Args[1:]))
}
