// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactive

import (
	"context"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/openstack-charmers/charm-manila/core/facts"
)

var logger = loggo.GetLogger("manila.reactive")

// Invocation records a handler run (or due to run) for a matching rule.
type Invocation struct {
	Rule    string
	Handler string
}

// TickObserver is notified about tick progress. It is used to feed
// metrics and may be nil.
type TickObserver interface {
	// HandlerInvoked is called after each handler returns.
	HandlerInvoked(handler string, err error)

	// TickCompleted is called once per tick with the handlers that ran.
	TickCompleted(invoked []Invocation, err error)
}

// Config holds the dependencies of an Engine.
type Config struct {
	Registry *Registry
	Observer TickObserver
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Registry == nil {
		return errors.NotValidf("missing Registry")
	}
	return nil
}

// Engine evaluates the rule table against a fact store.
type Engine struct {
	rules    []Rule
	handlers map[string]HandlerFunc
	observer TickObserver
}

// NewEngine returns an engine over a snapshot of the registry's rules.
// Later changes to the registry do not affect the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	handlers := make(map[string]HandlerFunc, len(cfg.Registry.handlers))
	for id, fn := range cfg.Registry.handlers {
		handlers[id] = fn
	}
	return &Engine{
		rules:    cfg.Registry.Rules(),
		handlers: handlers,
		observer: cfg.Observer,
	}, nil
}

// Evaluate returns the invocations the current facts would produce if no
// handler changed them. It does not run anything.
func (e *Engine) Evaluate(f FactReader) []Invocation {
	var out []Invocation
	seen := set.NewStrings()
	for _, rule := range e.rules {
		if seen.Contains(rule.Handler) || !rule.Matches(f) {
			continue
		}
		seen.Add(rule.Handler)
		out = append(out, Invocation{Rule: rule.Name, Handler: rule.Handler})
	}
	return out
}

// Tick runs one convergence pass. Each rule is tested against the store as
// it stands when the rule is reached, and a handler runs at most once per
// tick however many of its rules match. The first handler error aborts the
// tick.
func (e *Engine) Tick(ctx context.Context, store *facts.Store) (_ []Invocation, err error) {
	var invoked []Invocation
	defer func() {
		if e.observer != nil {
			e.observer.TickCompleted(invoked, err)
		}
	}()

	ran := set.NewStrings()
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return invoked, errors.Trace(err)
		}
		if ran.Contains(rule.Handler) || !rule.Matches(store) {
			continue
		}
		ran.Add(rule.Handler)
		inv := Invocation{Rule: rule.Name, Handler: rule.Handler}
		invoked = append(invoked, inv)

		logger.Debugf("invoking %s", rule)
		herr := e.handlers[rule.Handler](ctx, store)
		if e.observer != nil {
			e.observer.HandlerInvoked(rule.Handler, herr)
		}
		if herr != nil {
			return invoked, errors.Annotatef(herr, "handler %q (rule %q)", rule.Handler, rule.Name)
		}
	}
	return invoked, nil
}
