// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package interfaces

import (
	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/internal/render"
)

// UpdateFlags sets or clears the available fact of every relation based on
// the data its remote units have published. A relation that is not
// connected is never available.
func UpdateFlags(store *facts.Store, localUnit string) {
	set := func(rel string, available bool) {
		flag := facts.AvailableFlag(rel)
		available = available && store.IsSet(facts.ConnectedFlag(rel))
		switch {
		case available && !store.IsSet(flag):
			logger.Debugf("relation %q is available", rel)
			store.Set(flag, nil)
		case !available && store.IsSet(flag):
			logger.Debugf("relation %q is no longer available", rel)
			store.Clear(flag)
		}
	}

	_, ok := DatabaseInfo(store, localUnit)
	set(SharedDB, ok)
	_, ok = BrokerInfo(store)
	set(AMQP, ok)
	_, ok = IdentityInfo(store)
	set(IdentityService, ok)
	set(ManilaPlugin, len(render.Names(Contributions(store, ManilaPlugin))) > 0)
	set(RemoteManilaPlugin, len(render.Names(Contributions(store, RemoteManilaPlugin))) > 0)
	set(HACluster, len(store.RelationUnitNames(HACluster)) > 0)
}
