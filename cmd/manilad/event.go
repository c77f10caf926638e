// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/relation"
)

// hookContext reads the data that comes with a hook.
type hookContext interface {
	RelationGet(ctx context.Context, relID, unit string) (relation.Settings, error)
	ConfigGet(ctx context.Context) (map[string]interface{}, error)
}

// eventFromHook builds the event for the named hook from the hook
// environment.
func eventFromHook(ctx context.Context, hook string, getenv func(string) string, hc hookContext) (facts.Event, error) {
	event, err := facts.ParseHookName(hook)
	if err != nil {
		return facts.Event{}, errors.Trace(err)
	}
	switch event.Kind {
	case facts.ConfigChanged:
		if event.Config, err = hc.ConfigGet(ctx); err != nil {
			return facts.Event{}, errors.Trace(err)
		}
	case facts.RelationJoined, facts.RelationChanged, facts.RelationDeparted, facts.RelationBroken:
		event.RelationID = getenv("JUJU_RELATION_ID")
		if event.RelationID == "" {
			return facts.Event{}, errors.NotValidf("%s without JUJU_RELATION_ID", hook)
		}
		if event.Kind == facts.RelationBroken {
			break
		}
		event.Unit = getenv("JUJU_REMOTE_UNIT")
		if event.Unit == "" {
			return facts.Event{}, errors.NotValidf("%s without JUJU_REMOTE_UNIT", hook)
		}
		if event.Kind == facts.RelationDeparted {
			break
		}
		if event.Settings, err = hc.RelationGet(ctx, event.RelationID, event.Unit); err != nil {
			return facts.Event{}, errors.Trace(err)
		}
	}
	if err := event.Validate(); err != nil {
		return facts.Event{}, errors.Trace(err)
	}
	return event, nil
}
