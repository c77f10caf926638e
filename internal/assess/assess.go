// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package assess computes the workload status of the unit from an ordered
// list of checks. The first check with an opinion wins.
package assess

import (
	"fmt"
	"strings"

	"github.com/juju/loggo"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/status"
)

var logger = loggo.GetLogger("manila.assess")

// Snapshot is the view of the fact store the checks read.
type Snapshot interface {
	IsSet(flag string) bool
}

// Check inspects the snapshot and returns a status and message. A check
// that is satisfied returns status.Unset.
type Check func(Snapshot) (status.Status, string)

// Evaluator runs checks in priority order.
type Evaluator struct {
	Checks []Check
}

// Evaluate returns the status of the first check that reports one, or
// active when all are satisfied.
func (e Evaluator) Evaluate(s Snapshot) status.StatusInfo {
	for _, check := range e.Checks {
		if st, msg := check(s); st != status.Unset {
			return status.StatusInfo{Status: st, Message: msg}
		}
	}
	return status.StatusInfo{Status: status.Active, Message: status.MessageUnitReady}
}

// Paused reports maintenance while the unit is paused.
func Paused() Check {
	return func(s Snapshot) (status.Status, string) {
		if s.IsSet(facts.PausedFlag) {
			return status.Maintenance, status.MessageUnitPaused
		}
		return status.Unset, ""
	}
}

// RequiredRelations reports relations that are not connected as missing
// and relations that are connected but not yet available as incomplete.
// Missing relations block the unit; incomplete ones only make it wait.
func RequiredRelations(rels ...string) Check {
	return func(s Snapshot) (status.Status, string) {
		var missing, incomplete []string
		for _, rel := range rels {
			switch {
			case !s.IsSet(facts.ConnectedFlag(rel)):
				missing = append(missing, rel)
			case !s.IsSet(facts.AvailableFlag(rel)):
				incomplete = append(incomplete, rel)
			}
		}
		switch {
		case len(missing) > 0 && len(incomplete) > 0:
			return status.Blocked, fmt.Sprintf("Missing relations: %s; incomplete relations: %s",
				strings.Join(missing, ", "), strings.Join(incomplete, ", "))
		case len(missing) > 0:
			return status.Blocked, "Missing relations: " + strings.Join(missing, ", ")
		case len(incomplete) > 0:
			return status.Waiting, "Incomplete relations: " + strings.Join(incomplete, ", ")
		}
		return status.Unset, ""
	}
}

// ServiceChecker reports whether a service is running.
type ServiceChecker interface {
	IsRunning(name string) (bool, error)
}

// ServicesRunning blocks the unit when any of the services returned by
// services is not running. It has no opinion until startedFlag is set.
func ServicesRunning(startedFlag string, services func() []string, checker ServiceChecker) Check {
	return func(s Snapshot) (status.Status, string) {
		if !s.IsSet(startedFlag) {
			return status.Unset, ""
		}
		var stopped []string
		for _, svc := range services() {
			running, err := checker.IsRunning(svc)
			if err != nil {
				logger.Warningf("cannot check service %q: %v", svc, err)
			}
			if !running {
				stopped = append(stopped, svc)
			}
		}
		if len(stopped) > 0 {
			return status.Blocked, "Services not running that should be: " + strings.Join(stopped, ", ")
		}
		return status.Unset, ""
	}
}

// CheckBackends validates the share backend configuration. backends
// returns the configured backend names and defaultBackend the
// default-share-backend option.
func CheckBackends(backends func() []string, defaultBackend func() string) Check {
	return func(Snapshot) (status.Status, string) {
		configured := backends()
		if len(configured) == 0 {
			return status.Blocked, "No share backends configured"
		}
		dflt := defaultBackend()
		if dflt == "" {
			return status.Blocked, "'default-share-backend' is not set"
		}
		for _, b := range configured {
			if b == dflt {
				return status.Unset, ""
			}
		}
		return status.Blocked, fmt.Sprintf("'default-share-backend:%s' is not a configured backend", dflt)
	}
}
