// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactive

import (
	"github.com/juju/errors"
)

// Registry collects handlers and the rules bound to them. It is built once
// at process start and handed to NewEngine.
type Registry struct {
	rules    []Rule
	names    map[string]bool
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names:    make(map[string]bool),
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler binds a handler identifier to a function.
func (r *Registry) RegisterHandler(id string, fn HandlerFunc) error {
	if id == "" {
		return errors.NotValidf("empty handler id")
	}
	if fn == nil {
		return errors.NotValidf("nil handler %q", id)
	}
	if _, ok := r.handlers[id]; ok {
		return errors.AlreadyExistsf("handler %q", id)
	}
	r.handlers[id] = fn
	return nil
}

// AddRule appends a rule to the table. The rule's handler must already be
// registered and its name must be unique.
func (r *Registry) AddRule(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return errors.Trace(err)
	}
	if r.names[rule.Name] {
		return errors.AlreadyExistsf("rule %q", rule.Name)
	}
	if _, ok := r.handlers[rule.Handler]; !ok {
		return errors.NotFoundf("handler %q for rule %q", rule.Handler, rule.Name)
	}
	r.names[rule.Name] = true
	r.rules = append(r.rules, rule.clone())
	return nil
}

// Rules returns a copy of the rule table in registration order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = rule.clone()
	}
	return out
}

// Handler returns the handler bound to id.
func (r *Registry) Handler(id string) (HandlerFunc, bool) {
	fn, ok := r.handlers[id]
	return fn, ok
}
