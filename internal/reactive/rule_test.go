// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactive_test

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/internal/reactive"
)

type ruleSuite struct{}

var _ = gc.Suite(&ruleSuite{})

func storeWith(names ...string) *facts.Store {
	s := facts.NewStore()
	for _, n := range names {
		s.Set(n, nil)
	}
	return s
}

func (*ruleSuite) TestMatchesAllOf(c *gc.C) {
	rule := reactive.Rule{
		Name:    "render",
		AllOf:   []string{"shared-db.available", "amqp.available", "identity-service.available"},
		Handler: "render",
	}
	all := []string{"shared-db.available", "amqp.available", "identity-service.available"}
	c.Check(rule.Matches(storeWith(all...)), jc.IsTrue)

	// Dropping any single all-of fact stops the rule from matching.
	for i := range all {
		var partial []string
		partial = append(partial, all[:i]...)
		partial = append(partial, all[i+1:]...)
		c.Check(rule.Matches(storeWith(partial...)), jc.IsFalse, gc.Commentf("without %q", all[i]))
	}
}

func (*ruleSuite) TestMatchesAnyOf(c *gc.C) {
	rule := reactive.Rule{
		Name:    "share-auth",
		AllOf:   []string{"identity-service.connected"},
		AnyOf:   [][]string{{"manila-plugin.connected", "remote-manila-plugin.connected"}},
		Handler: "share-auth",
	}
	c.Check(rule.Matches(storeWith("identity-service.connected")), jc.IsFalse)
	c.Check(rule.Matches(storeWith("identity-service.connected", "manila-plugin.connected")), jc.IsTrue)
	c.Check(rule.Matches(storeWith("identity-service.connected", "remote-manila-plugin.connected")), jc.IsTrue)
}

func (*ruleSuite) TestMatchesNoneOf(c *gc.C) {
	rule := reactive.Rule{
		Name:    "register-endpoints",
		AllOf:   []string{"identity-service.connected"},
		NoneOf:  []string{"identity-service.available"},
		Handler: "register-endpoints",
	}
	c.Check(rule.Matches(storeWith("identity-service.connected")), jc.IsTrue)
	c.Check(rule.Matches(storeWith("identity-service.connected", "identity-service.available")), jc.IsFalse)
}

func (*ruleSuite) TestEmptyRuleAlwaysMatches(c *gc.C) {
	rule := reactive.Rule{Name: "always", Handler: "h"}
	c.Check(rule.Matches(facts.NewStore()), jc.IsTrue)
	c.Check(rule.String(), gc.Equals, "always: always -> h")
}

func (*ruleSuite) TestString(c *gc.C) {
	rule := reactive.Rule{
		Name:    "config-changed",
		AllOf:   []string{"a", "b"},
		AnyOf:   [][]string{{"c", "d"}},
		NoneOf:  []string{"e"},
		Handler: "render",
	}
	c.Check(rule.String(), gc.Equals, "config-changed: when(a, b) when_any(c, d) when_not(e) -> render")
}

func (*ruleSuite) TestValidate(c *gc.C) {
	c.Check(reactive.Rule{}.Validate(), gc.ErrorMatches, "rule without name not valid")
	c.Check(reactive.Rule{Name: "x"}.Validate(), gc.ErrorMatches, `rule "x" without handler not valid`)
	c.Check(reactive.Rule{Name: "x", Handler: "h", AnyOf: [][]string{{}}}.Validate(),
		gc.ErrorMatches, `rule "x" any-of group 0 empty not valid`)
}
