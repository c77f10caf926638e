// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reactive provides the rule table and the convergence engine
// that drives a unit's handlers from the facts it knows about.
//
// A Rule is plain data: the facts that must all be present, groups of
// facts of which at least one must be present, and facts that must be
// absent. Rules are collected in a Registry at process start and handed to
// an Engine, which never mutates them.
//
// Each call to Engine.Tick is one convergence tick. Rules are considered
// in registration order and each is tested against the live store when it
// is reached, so facts set by an earlier handler unlock later rules in the
// same tick. The engine does not iterate to a fixed point; convergence
// that needs another pass waits for the next external event.
package reactive
