// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package eventsource_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/status"
	"github.com/openstack-charmers/charm-manila/worker/eventsource"
)

const (
	shortWait = 50 * time.Millisecond
	longWait  = 10 * time.Second

	updateStatusInterval = 5 * time.Minute
	retryDelay           = 10 * time.Second
)

type fakeWatcher struct {
	events chan fsnotify.Event
	errors chan error
	added  chan string
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan fsnotify.Event),
		errors: make(chan error),
		added:  make(chan string, 1),
	}
}

func (w *fakeWatcher) Add(path string) error         { w.added <- path; return nil }
func (w *fakeWatcher) Events() <-chan fsnotify.Event { return w.events }
func (w *fakeWatcher) Errors() <-chan error          { return w.errors }
func (w *fakeWatcher) Close() error                  { return nil }

type fakeDispatcher struct {
	testing.Stub
	events chan facts.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, event facts.Event) (status.StatusInfo, error) {
	d.AddCall("Dispatch", event.HookName())
	err := d.NextErr()
	d.events <- event
	return status.StatusInfo{Status: status.Active}, err
}

type workerSuite struct {
	testing.IsolationSuite

	dir        string
	clock      *testclock.Clock
	watcher    *fakeWatcher
	dispatcher *fakeDispatcher
}

var _ = gc.Suite(&workerSuite{})

func (s *workerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.dir = filepath.Join(c.MkDir(), "spool")
	s.clock = testclock.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	s.watcher = newFakeWatcher()
	s.dispatcher = &fakeDispatcher{events: make(chan facts.Event, 10)}
}

func (s *workerSuite) config() eventsource.Config {
	return eventsource.Config{
		SpoolDir:   s.dir,
		Dispatcher: s.dispatcher,
		Clock:      s.clock,
		NewWatcher: func() (eventsource.Watcher, error) {
			return s.watcher, nil
		},
		UpdateStatusInterval: updateStatusInterval,
		RetryDelay:           retryDelay,
	}
}

func (s *workerSuite) startWorker(c *gc.C) *eventsource.Worker {
	w, err := eventsource.NewWorker(s.config())
	c.Assert(err, jc.ErrorIsNil)
	select {
	case path := <-s.watcher.added:
		c.Assert(path, gc.Equals, s.dir)
	case <-time.After(longWait):
		c.Fatalf("spool directory not watched")
	}
	return w
}

func (s *workerSuite) enqueue(c *gc.C, event facts.Event) string {
	c.Assert(os.MkdirAll(s.dir, 0700), jc.ErrorIsNil)
	path, err := eventsource.Enqueue(s.dir, event, s.clock.Now())
	c.Assert(err, jc.ErrorIsNil)
	s.clock.Advance(time.Millisecond)
	return path
}

func (s *workerSuite) nextEvent(c *gc.C) facts.Event {
	select {
	case event := <-s.dispatcher.events:
		return event
	case <-time.After(longWait):
		c.Fatalf("no event dispatched")
	}
	panic("unreachable")
}

func (s *workerSuite) assertNoEvent(c *gc.C) {
	select {
	case event := <-s.dispatcher.events:
		c.Fatalf("unexpected event %q", event.HookName())
	case <-time.After(shortWait):
	}
}

func (s *workerSuite) TestValidate(c *gc.C) {
	cfg := s.config()
	cfg.SpoolDir = ""
	_, err := eventsource.NewWorker(cfg)
	c.Check(err, gc.ErrorMatches, "empty SpoolDir not valid")

	cfg = s.config()
	cfg.RetryDelay = 0
	_, err = eventsource.NewWorker(cfg)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *workerSuite) TestSpooledEventsInOrder(c *gc.C) {
	first := s.enqueue(c, facts.Event{Kind: facts.Install})
	second := s.enqueue(c, facts.Event{
		Kind:     facts.RelationJoined,
		Relation: "amqp",
		Unit:     "rabbitmq-server/0",
		Settings: map[string]string{"hostname": "10.0.0.3"},
	})
	c.Assert(os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("ignored"), 0600), jc.ErrorIsNil)

	w := s.startWorker(c)
	defer workertest.CleanKill(c, w)

	c.Check(s.nextEvent(c).Kind, gc.Equals, facts.Install)
	joined := s.nextEvent(c)
	c.Check(joined.HookName(), gc.Equals, "amqp-relation-joined")
	c.Check(joined.Settings["hostname"], gc.Equals, "10.0.0.3")

	workertest.CleanKill(c, w)
	for _, path := range []string{first, second} {
		_, err := os.Stat(path)
		c.Check(os.IsNotExist(err), jc.IsTrue)
	}
	_, err := os.Stat(filepath.Join(s.dir, "notes.txt"))
	c.Check(err, jc.ErrorIsNil)
}

func (s *workerSuite) TestWatchedEvent(c *gc.C) {
	w := s.startWorker(c)
	defer workertest.CleanKill(c, w)
	s.assertNoEvent(c)

	path := s.enqueue(c, facts.Event{Kind: facts.ConfigChanged, Config: map[string]interface{}{"debug": true}})
	select {
	case s.watcher.events <- fsnotify.Event{Name: path, Op: fsnotify.Create}:
	case <-time.After(longWait):
		c.Fatalf("watcher event not consumed")
	}
	event := s.nextEvent(c)
	c.Check(event.Kind, gc.Equals, facts.ConfigChanged)
	c.Check(event.Config["debug"], jc.IsTrue)
}

func (s *workerSuite) TestUpdateStatusTimer(c *gc.C) {
	w := s.startWorker(c)
	defer workertest.CleanKill(c, w)

	for i := 0; i < 2; i++ {
		c.Assert(s.clock.WaitAdvance(updateStatusInterval, longWait, 1), jc.ErrorIsNil)
		c.Check(s.nextEvent(c).Kind, gc.Equals, facts.UpdateStatus)
	}
}

func (s *workerSuite) TestFailedEventRetried(c *gc.C) {
	s.dispatcher.SetErrors(errors.New("boom"))
	path := s.enqueue(c, facts.Event{Kind: facts.Install})

	w := s.startWorker(c)
	defer workertest.CleanKill(c, w)

	c.Check(s.nextEvent(c).Kind, gc.Equals, facts.Install)
	_, err := os.Stat(path)
	c.Check(err, jc.ErrorIsNil)

	c.Assert(s.clock.WaitAdvance(retryDelay, longWait, 2), jc.ErrorIsNil)
	c.Check(s.nextEvent(c).Kind, gc.Equals, facts.Install)
	s.dispatcher.CheckCallNames(c, "Dispatch", "Dispatch")
}

func (s *workerSuite) TestWatcherErrorKillsWorker(c *gc.C) {
	w := s.startWorker(c)
	s.watcher.errors <- errors.New("inotify overflow")
	err := workertest.CheckKilled(c, w)
	c.Check(err, gc.ErrorMatches, "watching spool: inotify overflow")
}

func (s *workerSuite) TestEnqueueRejectsInvalidEvent(c *gc.C) {
	_, err := eventsource.Enqueue(c.MkDir(), facts.Event{Kind: "bogus"}, s.clock.Now())
	c.Check(err, gc.ErrorMatches, `event kind "bogus" not valid`)
}
