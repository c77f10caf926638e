// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package interfaces reads the settings related units publish on each of
// the manila relations and decides when a relation carries enough data to
// be considered available.
package interfaces

import (
	"github.com/juju/loggo"

	"github.com/openstack-charmers/charm-manila/core/relation"
)

var logger = loggo.GetLogger("manila.interfaces")

// Relation names, as declared in the charm metadata.
const (
	SharedDB           = "shared-db"
	AMQP               = "amqp"
	IdentityService    = "identity-service"
	ManilaPlugin       = "manila-plugin"
	RemoteManilaPlugin = "remote-manila-plugin"
	HACluster          = "ha"
)

// RelationReader gives access to the settings of remote units.
type RelationReader interface {
	RelationUnits(rel string) map[string]relation.Settings
	RelationUnitNames(rel string) []string
}

// firstUnit returns the settings of the first unit, in name order, for
// which ok returns true.
func firstUnit(r RelationReader, rel string, ok func(relation.Settings) bool) (relation.Settings, bool) {
	units := r.RelationUnits(rel)
	for _, name := range r.RelationUnitNames(rel) {
		if s := units[name]; ok(s) {
			return s, true
		}
	}
	return nil, false
}

func hasAll(s relation.Settings, keys ...string) bool {
	for _, k := range keys {
		if s[k] == "" {
			return false
		}
	}
	return true
}
