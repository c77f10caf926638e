// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package facts

import (
	"strings"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/relation"
)

// Kind identifies the external signal that produced an event.
type Kind string

const (
	Install               Kind = "install"
	Start                 Kind = "start"
	Stop                  Kind = "stop"
	UpgradeCharm          Kind = "upgrade-charm"
	ConfigChanged         Kind = "config-changed"
	UpdateStatus          Kind = "update-status"
	LeaderElected         Kind = "leader-elected"
	LeaderSettingsChanged Kind = "leader-settings-changed"

	RelationJoined   Kind = "relation-joined"
	RelationChanged  Kind = "relation-changed"
	RelationDeparted Kind = "relation-departed"
	RelationBroken   Kind = "relation-broken"

	// Pause and Resume are raised by the pause and resume actions.
	Pause  Kind = "pause"
	Resume Kind = "resume"
)

// IsRelation reports whether the kind is scoped to a relation.
func (k Kind) IsRelation() bool {
	switch k {
	case RelationJoined, RelationChanged, RelationDeparted, RelationBroken:
		return true
	}
	return false
}

// Well known fact names maintained by Apply.
const (
	ConfigChangedFlag = "config.changed"
	IsLeaderFlag      = "leadership.is_leader"
	PausedFlag        = "unit.paused"
)

// ConnectedFlag returns the fact set while a relation is established.
func ConnectedFlag(rel string) string { return rel + ".connected" }

// AvailableFlag returns the fact set while a relation carries complete data.
func AvailableFlag(rel string) string { return rel + ".available" }

// ChangedFlag returns the fact set when remote data of a relation changes.
// It stays set until a handler clears it.
func ChangedFlag(rel string) string { return rel + ".changed" }

// HookFlag returns the transient fact raised for the duration of the tick
// that processes the named hook.
func HookFlag(hookName string) string { return "hook." + hookName }

// Event is one external signal delivered to the unit. RelationID tells
// apart several relations with the same name, such as one manila-plugin
// relation per backend application.
type Event struct {
	Kind       Kind                   `yaml:"kind"`
	Relation   string                 `yaml:"relation,omitempty"`
	RelationID string                 `yaml:"relation-id,omitempty"`
	Unit       string                 `yaml:"unit,omitempty"`
	Settings   relation.Settings      `yaml:"settings,omitempty"`
	Config     map[string]interface{} `yaml:"config,omitempty"`
}

// ID returns the relation id of a relation event. Events that carry no id
// belong to a single relation identified by its name.
func (e Event) ID() string {
	if e.RelationID != "" {
		return e.RelationID
	}
	return e.Relation
}

// HookName returns the name of the hook the event corresponds to, such as
// "amqp-relation-changed" or "config-changed".
func (e Event) HookName() string {
	if e.Kind.IsRelation() {
		return e.Relation + "-" + string(e.Kind)
	}
	return string(e.Kind)
}

// Validate returns an error if the event is malformed.
func (e Event) Validate() error {
	switch e.Kind {
	case Install, Start, Stop, UpgradeCharm, ConfigChanged, UpdateStatus,
		LeaderElected, LeaderSettingsChanged, Pause, Resume:
		return nil
	case RelationJoined, RelationChanged, RelationDeparted:
		if e.Unit == "" {
			return errors.NotValidf("%q event without unit", e.HookName())
		}
		fallthrough
	case RelationBroken:
		if e.Relation == "" {
			return errors.NotValidf("%q event without relation", e.Kind)
		}
		return nil
	}
	return errors.NotValidf("event kind %q", e.Kind)
}

// ParseHookName returns the event skeleton for a hook name as found in a
// charm's hooks directory.
func ParseHookName(name string) (Event, error) {
	for _, k := range []Kind{RelationJoined, RelationChanged, RelationDeparted, RelationBroken} {
		suffix := "-" + string(k)
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return Event{Kind: k, Relation: strings.TrimSuffix(name, suffix)}, nil
		}
	}
	ev := Event{Kind: Kind(name)}
	if ev.Kind.IsRelation() {
		return Event{}, errors.NotValidf("hook name %q", name)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, errors.Annotatef(err, "hook name %q", name)
	}
	return ev, nil
}

// Apply folds the event into the store, setting and clearing facts the
// way the orchestrator would before handlers run.
func (s *Store) Apply(e Event) error {
	if err := e.Validate(); err != nil {
		return errors.Trace(err)
	}
	s.SetTransient(HookFlag(e.HookName()))

	switch e.Kind {
	case ConfigChanged:
		if s.SetConfig(e.Config) {
			s.SetTransient(ConfigChangedFlag)
		}
	case LeaderElected:
		s.Set(IsLeaderFlag, nil)
	case Pause:
		s.Set(PausedFlag, nil)
	case Resume:
		s.Clear(PausedFlag)
	case RelationJoined:
		s.Set(ConnectedFlag(e.Relation), nil)
		if s.SetRelationUnit(e.Relation, e.ID(), e.Unit, e.Settings) {
			s.Set(ChangedFlag(e.Relation), nil)
		}
	case RelationChanged:
		if !s.IsSet(ConnectedFlag(e.Relation)) {
			s.Set(ConnectedFlag(e.Relation), nil)
		}
		if s.SetRelationUnit(e.Relation, e.ID(), e.Unit, e.Settings) {
			s.Set(ChangedFlag(e.Relation), nil)
		}
	case RelationDeparted:
		if s.RemoveRelationUnit(e.Relation, e.ID(), e.Unit) {
			s.Set(ChangedFlag(e.Relation), nil)
		}
	case RelationBroken:
		if s.ClearRelation(e.Relation, e.ID()) {
			// Other relations of the same name remain.
			s.Set(ChangedFlag(e.Relation), nil)
			break
		}
		s.Clear(ConnectedFlag(e.Relation))
		s.Clear(AvailableFlag(e.Relation))
		s.Clear(ChangedFlag(e.Relation))
	}
	return nil
}
