// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package execrunner runs external commands on the unit.
package execrunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4/exec"
	"github.com/kballard/go-shellquote"
)

var logger = loggo.GetLogger("manila.execrunner")

// CommandRunner runs shell commands.
type CommandRunner interface {
	RunCommands(run exec.RunParams) (*exec.ExecResponse, error)
}

type defaultRunner struct{}

func (defaultRunner) RunCommands(run exec.RunParams) (*exec.ExecResponse, error) {
	return exec.RunCommands(run)
}

// ExitError is returned when a command exits with a non-zero code.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited %d", e.Command, e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Runner runs argument lists as commands.
type Runner struct {
	runner      CommandRunner
	environment []string
}

// DefaultCommandRunner returns the CommandRunner that runs commands on
// the local machine.
func DefaultCommandRunner() CommandRunner {
	return defaultRunner{}
}

// New returns a Runner that runs commands on the local machine.
func New() *Runner {
	return NewWithCommandRunner(defaultRunner{})
}

// NewWithCommandRunner returns a Runner that uses cr to run commands.
func NewWithCommandRunner(cr CommandRunner, environment ...string) *Runner {
	return &Runner{runner: cr, environment: environment}
}

// Call runs the command and returns its exit code and standard output.
// A non-zero exit code is not an error.
func (r *Runner) Call(ctx context.Context, name string, args ...string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", errors.Trace(err)
	}
	command := shellquote.Join(append([]string{name}, args...)...)
	logger.Debugf("running %s", command)
	resp, err := r.runner.RunCommands(exec.RunParams{
		Commands:    command,
		Environment: r.environment,
	})
	if err != nil {
		return 0, "", errors.Annotatef(err, "running %s", command)
	}
	if resp.Code != 0 {
		logger.Debugf("%s exited %d: %s", command, resp.Code, resp.Stderr)
	}
	return resp.Code, string(resp.Stdout), nil
}

// Run runs the command and returns its standard output. A non-zero exit
// code is returned as an *ExitError.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Trace(err)
	}
	command := shellquote.Join(append([]string{name}, args...)...)
	logger.Debugf("running %s", command)
	resp, err := r.runner.RunCommands(exec.RunParams{
		Commands:    command,
		Environment: r.environment,
	})
	if err != nil {
		return "", errors.Annotatef(err, "running %s", command)
	}
	if resp.Code != 0 {
		return "", errors.Trace(&ExitError{
			Command: command,
			Code:    resp.Code,
			Stderr:  string(resp.Stderr),
		})
	}
	return string(resp.Stdout), nil
}
