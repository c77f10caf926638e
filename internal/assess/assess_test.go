// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package assess_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/status"
	"github.com/openstack-charmers/charm-manila/internal/assess"
)

type assessSuite struct {
	store *facts.Store
}

var _ = gc.Suite(&assessSuite{})

func (s *assessSuite) SetUpTest(c *gc.C) {
	s.store = facts.NewStore()
}

func (s *assessSuite) connect(rels ...string) {
	for _, rel := range rels {
		s.store.Set(facts.ConnectedFlag(rel), nil)
	}
}

func (s *assessSuite) available(rels ...string) {
	for _, rel := range rels {
		s.store.Set(facts.AvailableFlag(rel), nil)
	}
}

func (s *assessSuite) TestEvaluatorDefaultsToActive(c *gc.C) {
	info := assess.Evaluator{}.Evaluate(s.store)
	c.Check(info, jc.DeepEquals, status.StatusInfo{Status: status.Active, Message: "Unit is ready"})
}

func (s *assessSuite) TestEvaluatorFirstCheckWins(c *gc.C) {
	var called []string
	check := func(name string, st status.Status) assess.Check {
		return func(assess.Snapshot) (status.Status, string) {
			called = append(called, name)
			return st, name
		}
	}
	info := assess.Evaluator{Checks: []assess.Check{
		check("a", status.Unset),
		check("b", status.Waiting),
		check("c", status.Blocked),
	}}.Evaluate(s.store)
	c.Check(info, jc.DeepEquals, status.StatusInfo{Status: status.Waiting, Message: "b"})
	c.Check(called, jc.DeepEquals, []string{"a", "b"})
}

func (s *assessSuite) TestPaused(c *gc.C) {
	st, _ := assess.Paused()(s.store)
	c.Check(st, gc.Equals, status.Unset)
	s.store.Set(facts.PausedFlag, nil)
	st, msg := assess.Paused()(s.store)
	c.Check(st, gc.Equals, status.Maintenance)
	c.Check(msg, gc.Equals, "Paused. Use 'resume' action to resume normal service.")
}

func (s *assessSuite) TestRequiredRelations(c *gc.C) {
	check := assess.RequiredRelations("shared-db", "amqp", "identity-service")

	st, msg := check(s.store)
	c.Check(st, gc.Equals, status.Blocked)
	c.Check(msg, gc.Equals, "Missing relations: shared-db, amqp, identity-service")

	s.connect("shared-db", "amqp")
	st, msg = check(s.store)
	c.Check(st, gc.Equals, status.Blocked)
	c.Check(msg, gc.Equals, "Missing relations: identity-service; incomplete relations: shared-db, amqp")

	s.connect("identity-service")
	s.available("shared-db")
	st, msg = check(s.store)
	c.Check(st, gc.Equals, status.Waiting)
	c.Check(msg, gc.Equals, "Incomplete relations: amqp, identity-service")

	s.available("amqp", "identity-service")
	st, _ = check(s.store)
	c.Check(st, gc.Equals, status.Unset)
}

type fakeChecker map[string]bool

func (f fakeChecker) IsRunning(name string) (bool, error) {
	running, ok := f[name]
	if !ok {
		return false, errors.NotFoundf("service %q", name)
	}
	return running, nil
}

func (s *assessSuite) TestServicesRunning(c *gc.C) {
	services := func() []string { return []string{"apache2", "manila-share", "manila-data"} }
	check := assess.ServicesRunning("services.started", services, fakeChecker{"apache2": true, "manila-share": false})

	st, _ := check(s.store)
	c.Check(st, gc.Equals, status.Unset)

	s.store.Set("services.started", nil)
	st, msg := check(s.store)
	c.Check(st, gc.Equals, status.Blocked)
	c.Check(msg, gc.Equals, "Services not running that should be: manila-share, manila-data")
}

func (s *assessSuite) TestCheckBackends(c *gc.C) {
	for i, t := range []struct {
		backends []string
		dflt     string
		status   status.Status
		message  string
	}{{
		status:  status.Blocked,
		message: "No share backends configured",
	}, {
		backends: []string{"generic"},
		status:   status.Blocked,
		message:  "'default-share-backend' is not set",
	}, {
		backends: []string{"generic"},
		dflt:     "cephfs",
		status:   status.Blocked,
		message:  "'default-share-backend:cephfs' is not a configured backend",
	}, {
		backends: []string{"cephfs", "generic"},
		dflt:     "generic",
		status:   status.Unset,
	}} {
		c.Logf("test %d", i)
		check := assess.CheckBackends(
			func() []string { return t.backends },
			func() string { return t.dflt },
		)
		st, msg := check(s.store)
		c.Check(st, gc.Equals, t.status)
		c.Check(msg, gc.Equals, t.message)
	}
}
