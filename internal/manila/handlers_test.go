// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/internal/interfaces"
	"github.com/openstack-charmers/charm-manila/internal/reactive"
)

type handlersSuite struct {
	baseSuite
}

var _ = gc.Suite(&handlersSuite{})

func (s *handlersSuite) TestRuleOrder(c *gc.C) {
	var names []string
	for _, rule := range Rules() {
		names = append(names, rule.Name)
	}
	c.Check(names, jc.DeepEquals, []string{
		"update-relation-flags",
		"install",
		"upgrade-charm",
		"amqp-request",
		"shared-db-request",
		"register-endpoints",
		"share-auth-to-plugins",
		"render",
		"config-changed",
		"db-sync",
		"config-rendered",
		"resume-services",
		"pause-services",
		"cluster-connected",
		"update-status",
	})
}

func (s *handlersSuite) engine(c *gc.C) *reactive.Engine {
	defer s.setupMocks(c).Finish()
	registry, err := NewRegistry(s.deps())
	c.Assert(err, jc.ErrorIsNil)
	engine, err := reactive.NewEngine(reactive.Config{Registry: registry})
	c.Assert(err, jc.ErrorIsNil)
	return engine
}

func handlersOf(invoked []reactive.Invocation) []string {
	var out []string
	for _, inv := range invoked {
		out = append(out, inv.Handler)
	}
	return out
}

func (s *handlersSuite) TestEvaluateFreshUnit(c *gc.C) {
	store := facts.NewStore()
	store.SetTransient(facts.HookFlag("install"))
	c.Check(handlersOf(s.engine(c).Evaluate(store)), jc.DeepEquals, []string{
		HandlerUpdateRelationFlags,
		HandlerInstall,
	})
}

func (s *handlersSuite) TestEvaluateRenderOncePerTick(c *gc.C) {
	store := readyStore(nil)
	store.Set(InstalledFlag, nil)
	store.SetTransient(facts.ConfigChangedFlag)
	store.Set(facts.ChangedFlag(interfaces.ManilaPlugin), nil)

	invoked := s.engine(c).Evaluate(store)
	var renders []reactive.Invocation
	for _, inv := range invoked {
		if inv.Handler == HandlerRender {
			renders = append(renders, inv)
		}
	}
	c.Check(renders, jc.DeepEquals, []reactive.Invocation{{Rule: "render", Handler: HandlerRender}})

	store.Set(ConfigRenderedFlag, nil)
	renders = nil
	for _, inv := range s.engine(c).Evaluate(store) {
		if inv.Handler == HandlerRender {
			renders = append(renders, inv)
		}
	}
	c.Check(renders, jc.DeepEquals, []reactive.Invocation{{Rule: "config-changed", Handler: HandlerRender}})
}

func (s *handlersSuite) TestEvaluateRegisterEndpointsUntilAvailable(c *gc.C) {
	store := facts.NewStore()
	store.Set(InstalledFlag, nil)
	store.Set(facts.ConnectedFlag(interfaces.IdentityService), nil)
	c.Check(handlersOf(s.engine(c).Evaluate(store)), jc.DeepEquals, []string{
		HandlerUpdateRelationFlags,
		HandlerRegisterEndpoints,
	})

	store.Set(facts.AvailableFlag(interfaces.IdentityService), nil)
	c.Check(handlersOf(s.engine(c).Evaluate(store)), jc.DeepEquals, []string{
		HandlerUpdateRelationFlags,
	})
}

func (s *handlersSuite) TestEvaluatePausedUnit(c *gc.C) {
	store := facts.NewStore()
	store.Set(InstalledFlag, nil)
	store.Set(ReadyFlag, nil)
	store.Set(ServicesFlag, nil)
	store.Set(facts.PausedFlag, nil)
	store.SetTransient(facts.HookFlag("update-status"))
	c.Check(handlersOf(s.engine(c).Evaluate(store)), jc.DeepEquals, []string{
		HandlerUpdateRelationFlags,
		HandlerPauseServices,
	})

	store.Clear(facts.PausedFlag)
	store.Clear(ServicesFlag)
	c.Check(handlersOf(s.engine(c).Evaluate(store)), jc.DeepEquals, []string{
		HandlerUpdateRelationFlags,
		HandlerResumeServices,
		HandlerUpdateStatus,
	})
}
