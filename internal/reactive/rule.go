// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactive

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
)

// FactReader is the read side of a fact store as seen by rule predicates.
type FactReader interface {
	IsSet(name string) bool
}

// HandlerFunc is the action bound to one or more rules. Handlers must be
// idempotent: running one again against unchanged facts must have no
// additional visible effect.
type HandlerFunc func(ctx context.Context, store *facts.Store) error

// Rule maps a condition over facts to a handler identifier.
type Rule struct {
	// Name identifies the rule in logs and invocations.
	Name string

	// AllOf lists facts that must all be present.
	AllOf []string

	// AnyOf lists groups of facts. Every group must have at least one
	// present fact.
	AnyOf [][]string

	// NoneOf lists facts that must all be absent.
	NoneOf []string

	// Handler is the identifier of the handler to run. Several rules may
	// share a handler.
	Handler string
}

// Validate returns an error if the rule cannot be registered.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errors.NotValidf("rule without name")
	}
	if r.Handler == "" {
		return errors.NotValidf("rule %q without handler", r.Name)
	}
	for i, group := range r.AnyOf {
		if len(group) == 0 {
			return errors.NotValidf("rule %q any-of group %d empty", r.Name, i)
		}
	}
	return nil
}

// Matches reports whether the rule's condition holds for the facts.
func (r Rule) Matches(f FactReader) bool {
	for _, name := range r.AllOf {
		if !f.IsSet(name) {
			return false
		}
	}
	for _, group := range r.AnyOf {
		found := false
		for _, name := range group {
			if f.IsSet(name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, name := range r.NoneOf {
		if f.IsSet(name) {
			return false
		}
	}
	return true
}

// String renders the rule condition, mainly for debug logging.
func (r Rule) String() string {
	var parts []string
	if len(r.AllOf) > 0 {
		parts = append(parts, "when("+strings.Join(r.AllOf, ", ")+")")
	}
	for _, group := range r.AnyOf {
		parts = append(parts, "when_any("+strings.Join(group, ", ")+")")
	}
	if len(r.NoneOf) > 0 {
		parts = append(parts, "when_not("+strings.Join(r.NoneOf, ", ")+")")
	}
	if len(parts) == 0 {
		parts = append(parts, "always")
	}
	return fmt.Sprintf("%s: %s -> %s", r.Name, strings.Join(parts, " "), r.Handler)
}

func (r Rule) clone() Rule {
	out := Rule{
		Name:    r.Name,
		AllOf:   append([]string(nil), r.AllOf...),
		NoneOf:  append([]string(nil), r.NoneOf...),
		Handler: r.Handler,
	}
	for _, group := range r.AnyOf {
		out.AnyOf = append(out.AnyOf, append([]string(nil), group...))
	}
	return out
}
