// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package execrunner_test

import (
	"context"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/utils/v4/exec"
	gc "gopkg.in/check.v1"

	"github.com/openstack-charmers/charm-manila/internal/execrunner"
)

type runnerSuite struct{}

var _ = gc.Suite(&runnerSuite{})

type fakeRunner struct {
	params []exec.RunParams
	resp   *exec.ExecResponse
	err    error
}

func (f *fakeRunner) RunCommands(run exec.RunParams) (*exec.ExecResponse, error) {
	f.params = append(f.params, run)
	return f.resp, f.err
}

func (*runnerSuite) TestRunQuotesArguments(c *gc.C) {
	fake := &fakeRunner{resp: &exec.ExecResponse{Stdout: []byte("ok\n")}}
	r := execrunner.NewWithCommandRunner(fake, "LANG=C")
	out, err := r.Run(context.Background(), "relation-set", "-r", "amqp:1", "vhost=open stack")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(out, gc.Equals, "ok\n")
	c.Assert(fake.params, gc.HasLen, 1)
	c.Check(fake.params[0].Commands, gc.Equals, `relation-set -r amqp:1 'vhost=open stack'`)
	c.Check(fake.params[0].Environment, jc.DeepEquals, []string{"LANG=C"})
}

func (*runnerSuite) TestRunNonZeroExit(c *gc.C) {
	fake := &fakeRunner{resp: &exec.ExecResponse{Code: 1, Stderr: []byte("db locked\n")}}
	r := execrunner.NewWithCommandRunner(fake)
	_, err := r.Run(context.Background(), "manila-manage", "db", "sync")
	c.Assert(err, gc.ErrorMatches, "manila-manage db sync exited 1: db locked")
	var exitErr *execrunner.ExitError
	c.Assert(errors.As(err, &exitErr), jc.IsTrue)
	c.Check(exitErr.Code, gc.Equals, 1)
}

func (*runnerSuite) TestCallReturnsCode(c *gc.C) {
	fake := &fakeRunner{resp: &exec.ExecResponse{Code: 32}}
	r := execrunner.NewWithCommandRunner(fake)
	code, _, err := r.Call(context.Background(), "a2query", "-s", "manila-api")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(code, gc.Equals, 32)
}

func (*runnerSuite) TestRunError(c *gc.C) {
	fake := &fakeRunner{err: errors.New("fork failed")}
	r := execrunner.NewWithCommandRunner(fake)
	_, err := r.Run(context.Background(), "a2ensite", "manila-api")
	c.Assert(err, gc.ErrorMatches, "running a2ensite manila-api: fork failed")
}

func (*runnerSuite) TestCancelledContext(c *gc.C) {
	fake := &fakeRunner{}
	r := execrunner.NewWithCommandRunner(fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "true")
	c.Assert(errors.Is(err, context.Canceled), jc.IsTrue)
	c.Check(fake.params, gc.HasLen, 0)
}
