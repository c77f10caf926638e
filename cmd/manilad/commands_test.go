// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4"
	gc "gopkg.in/check.v1"

	"github.com/openstack-charmers/charm-manila/cmd"
	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/core/status"
)

type commandsSuite struct {
	testing.IsolationSuite

	ctx    *cmd.Context
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

var _ = gc.Suite(&commandsSuite{})

func (s *commandsSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.stdout = &bytes.Buffer{}
	s.stderr = &bytes.Buffer{}
	s.ctx = &cmd.Context{
		Context: context.Background(),
		Dir:     c.MkDir(),
		Env:     map[string]string{},
		Stdin:   &bytes.Buffer{},
		Stdout:  s.stdout,
		Stderr:  s.stderr,
	}
	err := os.WriteFile(filepath.Join(s.ctx.Dir, "manilad.yaml"), []byte(`
unit: manila/0
state-path: state.db
spool-dir: spool
`), 0644)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *commandsSuite) run(c *gc.C, command cmd.Command, args ...string) int {
	return cmd.Main(command, s.ctx, append(args, "--config", "manilad.yaml"))
}

func (s *commandsSuite) TestDispatchHookFromArgument(c *gc.C) {
	var hooks []string
	command := newDispatchCommand()
	command.dispatch = func(_ *cmd.Context, cfg daemonConfig, hook string) (facts.Event, status.StatusInfo, error) {
		c.Check(cfg.Unit, gc.Equals, "manila/0")
		hooks = append(hooks, hook)
		return facts.Event{Kind: facts.Install}, status.StatusInfo{Status: status.Blocked}, nil
	}
	c.Assert(s.run(c, command, "install"), gc.Equals, 0)
	c.Check(hooks, jc.DeepEquals, []string{"install"})
}

func (s *commandsSuite) TestDispatchHookFromEnvironment(c *gc.C) {
	s.ctx.Env["JUJU_HOOK_NAME"] = "update-status"
	var hooks []string
	command := newDispatchCommand()
	command.dispatch = func(_ *cmd.Context, _ daemonConfig, hook string) (facts.Event, status.StatusInfo, error) {
		hooks = append(hooks, hook)
		return facts.Event{Kind: facts.UpdateStatus}, status.StatusInfo{Status: status.Active}, nil
	}
	c.Assert(s.run(c, command), gc.Equals, 0)
	c.Check(hooks, jc.DeepEquals, []string{"update-status"})
}

func (s *commandsSuite) TestDispatchWithoutHook(c *gc.C) {
	command := newDispatchCommand()
	c.Check(s.run(c, command), gc.Equals, 1)
	c.Check(s.stderr.String(), jc.Contains, "no hook name given")
}

func (s *commandsSuite) TestDispatchFailure(c *gc.C) {
	command := newDispatchCommand()
	command.dispatch = func(*cmd.Context, daemonConfig, string) (facts.Event, status.StatusInfo, error) {
		return facts.Event{}, status.StatusInfo{}, errors.New("processing install: boom")
	}
	c.Check(s.run(c, command, "install"), gc.Equals, 1)
	c.Check(s.stderr.String(), gc.Equals, "ERROR processing install: boom\n")
}

func (s *commandsSuite) TestDispatchSpool(c *gc.C) {
	command := newDispatchCommand()
	command.dispatch = func(*cmd.Context, daemonConfig, string) (facts.Event, status.StatusInfo, error) {
		c.Fatalf("dispatched while spooling")
		return facts.Event{}, status.StatusInfo{}, nil
	}
	command.enqueue = func(_ *cmd.Context, cfg daemonConfig, hook string) (string, error) {
		c.Check(cfg.SpoolDir, gc.Equals, "spool")
		return filepath.Join(cfg.SpoolDir, "1-"+hook+".yaml"), nil
	}
	c.Assert(s.run(c, command, "--spool", "start"), gc.Equals, 0)
	c.Check(s.stderr.String(), gc.Equals, "queued start as spool/1-start.yaml\n")
}

func (s *commandsSuite) TestDispatchTooManyArgs(c *gc.C) {
	c.Check(s.run(c, newDispatchCommand(), "install", "extra"), gc.Equals, 2)
	c.Check(s.stderr.String(), jc.Contains, `unrecognized args: ["extra"]`)
}

func (s *commandsSuite) TestStatus(c *gc.C) {
	store := facts.NewStore()
	store.Set("charm.installed", nil)
	store.Set("amqp.available", nil)
	store.SetRelationUnit("amqp", "amqp:1", "rabbitmq-server/0", relation.Settings{"password": "x"})
	store.SetStatus(status.StatusInfo{Status: status.Waiting, Message: "Missing relations: shared-db"})

	command := newStatusCommand()
	command.load = func(_ context.Context, path string) (*facts.Store, error) {
		c.Check(path, gc.Equals, "state.db")
		return store, nil
	}
	c.Assert(s.run(c, command), gc.Equals, 0)
	c.Check(s.stdout.String(), gc.Equals, `unit: manila/0
status: waiting
message: 'Missing relations: shared-db'
flags:
- amqp.available
- charm.installed
relations:
  amqp:
  - rabbitmq-server/0
`)
}

func (s *commandsSuite) TestStatusJSON(c *gc.C) {
	command := newStatusCommand()
	command.load = func(context.Context, string) (*facts.Store, error) {
		return facts.NewStore(), nil
	}
	c.Assert(s.run(c, command, "--format", "json"), gc.Equals, 0)
	c.Check(s.stdout.String(), gc.Equals, `{"unit":"manila/0","status":"","flags":[]}`+"\n")
}

type fakeWorker struct {
	killed chan struct{}
	err    error
}

func (w *fakeWorker) Kill() {
	select {
	case <-w.killed:
	default:
		close(w.killed)
	}
}

func (w *fakeWorker) Wait() error {
	return w.err
}

func (s *commandsSuite) TestWatch(c *gc.C) {
	w := &fakeWorker{killed: make(chan struct{}), err: errors.New("watching spool: gone")}
	cleaned := false
	command := newWatchCommand()
	command.start = func(_ context.Context, cfg daemonConfig, retryDelay time.Duration) (worker.Worker, func(), error) {
		c.Check(cfg.UpdateStatusInterval, gc.Equals, 5*time.Minute)
		c.Check(retryDelay, gc.Equals, time.Minute)
		return w, func() { cleaned = true }, nil
	}
	c.Check(s.run(c, command, "--retry-delay", "1m"), gc.Equals, 1)
	c.Check(s.stderr.String(), gc.Equals, "ERROR watching spool: gone\n")
	c.Check(cleaned, jc.IsTrue)
}

func (s *commandsSuite) TestWatchRejectsRetryDelay(c *gc.C) {
	c.Check(s.run(c, newWatchCommand(), "--retry-delay", "0s"), gc.Equals, 2)
}

func (s *commandsSuite) TestSuperCommandRegistersSubcommands(c *gc.C) {
	doc := newManilaCommand().Info().Doc
	for _, name := range []string{"dispatch", "status", "watch"} {
		c.Check(doc, jc.Contains, name)
	}
}
