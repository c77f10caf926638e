// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package facts

import (
	"reflect"
	"sort"

	"github.com/juju/collections/set"

	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/core/status"
)

// Payload is the optional structured data carried by a fact.
type Payload map[string]string

func (p Payload) copy() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Store holds the facts known to the unit: named flags and their payloads,
// the settings published by related units, the settings this unit owns on
// each relation, and the charm option values. Relation data is kept per
// relation id; several ids may share a relation name.
//
// A Store is only ever touched from within a single convergence tick and
// is not safe for concurrent use.
type Store struct {
	flags     map[string]Payload
	transient set.Strings
	relations map[string]map[string]map[string]relation.Settings
	local     map[string]map[string]relation.Settings
	config    map[string]interface{}
	status    status.StatusInfo
}

// NewStore returns an empty fact store.
func NewStore() *Store {
	return &Store{
		flags:     make(map[string]Payload),
		transient: set.NewStrings(),
		relations: make(map[string]map[string]map[string]relation.Settings),
		local:     make(map[string]map[string]relation.Settings),
	}
}

// Set records the named fact with an optional payload. Setting a fact
// that is already present replaces its payload.
func (s *Store) Set(name string, payload Payload) {
	s.flags[name] = payload.copy()
}

// SetTransient records a fact that only lives until ClearTransient is
// called at the end of the tick.
func (s *Store) SetTransient(name string) {
	s.flags[name] = nil
	s.transient.Add(name)
}

// Clear removes the named fact.
func (s *Store) Clear(name string) {
	delete(s.flags, name)
	s.transient.Remove(name)
}

// IsSet reports whether the named fact is present.
func (s *Store) IsSet(name string) bool {
	_, ok := s.flags[name]
	return ok
}

// Payload returns the payload of the named fact.
func (s *Store) Payload(name string) (Payload, bool) {
	p, ok := s.flags[name]
	return p.copy(), ok
}

// Flags returns the names of all present facts, sorted.
func (s *Store) Flags() []string {
	names := make([]string, 0, len(s.flags))
	for name := range s.flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsTransient reports whether the named fact was set with SetTransient.
func (s *Store) IsTransient(name string) bool {
	return s.transient.Contains(name)
}

// ClearTransient removes every transient fact and returns their names.
func (s *Store) ClearTransient() []string {
	names := s.transient.SortedValues()
	for _, name := range names {
		delete(s.flags, name)
	}
	s.transient = set.NewStrings()
	return names
}

// SetRelationUnit records the settings published by a remote unit (or
// contributor) on the relation with the given id. It reports whether
// anything changed.
func (s *Store) SetRelationUnit(rel, id, unit string, settings relation.Settings) bool {
	ids, ok := s.relations[rel]
	if !ok {
		ids = make(map[string]map[string]relation.Settings)
		s.relations[rel] = ids
	}
	units, ok := ids[id]
	if !ok {
		units = make(map[string]relation.Settings)
		ids[id] = units
	}
	old, existed := units[unit]
	units[unit] = settings.Copy()
	return !existed || !old.Equal(settings)
}

// RemoveRelationUnit drops a remote unit from the relation with the given
// id. It reports whether the unit was known. The relation id stays
// established until ClearRelation.
func (s *Store) RemoveRelationUnit(rel, id, unit string) bool {
	units, ok := s.relations[rel][id]
	if !ok {
		return false
	}
	if _, ok := units[unit]; !ok {
		return false
	}
	delete(units, unit)
	return true
}

// ClearRelation drops the remote and local data of one relation id. When
// it was the last established id of that name, every local setting of the
// name goes too. It reports whether other ids of the name remain.
func (s *Store) ClearRelation(rel, id string) bool {
	delete(s.relations[rel], id)
	delete(s.local[rel], id)
	if len(s.relations[rel]) > 0 {
		return true
	}
	delete(s.relations, rel)
	delete(s.local, rel)
	return false
}

// RelationIDs returns the sorted ids of the relation that hold remote or
// local data.
func (s *Store) RelationIDs(rel string) []string {
	ids := set.NewStrings()
	for id := range s.relations[rel] {
		ids.Add(id)
	}
	for id := range s.local[rel] {
		ids.Add(id)
	}
	return ids.SortedValues()
}

// RelationUnits returns a copy of the settings of every remote unit of the
// relation, across all of its ids, keyed by unit name.
func (s *Store) RelationUnits(rel string) map[string]relation.Settings {
	out := make(map[string]relation.Settings)
	for _, units := range s.relations[rel] {
		for unit, settings := range units {
			out[unit] = settings.Copy()
		}
	}
	return out
}

// RelationUnitsOf returns a copy of the settings of the remote units of a
// single relation id.
func (s *Store) RelationUnitsOf(rel, id string) map[string]relation.Settings {
	units := s.relations[rel][id]
	out := make(map[string]relation.Settings, len(units))
	for unit, settings := range units {
		out[unit] = settings.Copy()
	}
	return out
}

// RelationUnitNames returns the sorted names of the remote units of the
// relation.
func (s *Store) RelationUnitNames(rel string) []string {
	names := set.NewStrings()
	for _, units := range s.relations[rel] {
		for unit := range units {
			names.Add(unit)
		}
	}
	return names.SortedValues()
}

// Relations returns the sorted names of every relation the store holds
// data for.
func (s *Store) Relations() []string {
	names := set.NewStrings()
	for rel := range s.relations {
		names.Add(rel)
	}
	for rel := range s.local {
		names.Add(rel)
	}
	return names.SortedValues()
}

// LocalSettings returns the settings this unit owns on the relation,
// merged across its ids.
func (s *Store) LocalSettings(rel string) relation.Settings {
	out := make(relation.Settings)
	for _, id := range s.RelationIDs(rel) {
		for k, v := range s.local[rel][id] {
			out[k] = v
		}
	}
	return out
}

// LocalSettingsOf returns a copy of the settings this unit owns on a
// single relation id.
func (s *Store) LocalSettingsOf(rel, id string) relation.Settings {
	return s.local[rel][id].Copy()
}

// SetLocalSettings replaces this unit's settings on a relation id. Empty
// settings remove the entry.
func (s *Store) SetLocalSettings(rel, id string, settings relation.Settings) {
	if len(settings) == 0 {
		delete(s.local[rel], id)
		if len(s.local[rel]) == 0 {
			delete(s.local, rel)
		}
		return
	}
	ids, ok := s.local[rel]
	if !ok {
		ids = make(map[string]relation.Settings)
		s.local[rel] = ids
	}
	ids[id] = settings.Copy()
}

// MergeLocal merges settings into this unit's settings on every id of the
// relation and reports whether any id changed. An id joined after the
// settings were last merged reports a change. With no known id the
// settings are kept under the relation name.
func (s *Store) MergeLocal(rel string, settings relation.Settings) bool {
	if len(settings) == 0 {
		return false
	}
	ids := s.RelationIDs(rel)
	if len(ids) == 0 {
		ids = []string{rel}
	}
	changed := false
	for _, id := range ids {
		current := s.local[rel][id]
		if current != nil && current.Contains(settings) {
			continue
		}
		merged := current.Copy()
		for k, v := range settings {
			merged[k] = v
		}
		s.SetLocalSettings(rel, id, merged)
		changed = true
	}
	return changed
}

// LocalSnapshot returns the per-id local settings of the relation.
func (s *Store) LocalSnapshot(rel string) map[string]relation.Settings {
	out := make(map[string]relation.Settings, len(s.local[rel]))
	for id, settings := range s.local[rel] {
		out[id] = settings.Copy()
	}
	return out
}

// RestoreLocal replaces the local settings of the relation with a
// snapshot taken by LocalSnapshot.
func (s *Store) RestoreLocal(rel string, snapshot map[string]relation.Settings) {
	delete(s.local, rel)
	for id, settings := range snapshot {
		s.SetLocalSettings(rel, id, settings)
	}
}

// Config returns a copy of the charm option values.
func (s *Store) Config() map[string]interface{} {
	out := make(map[string]interface{}, len(s.config))
	for k, v := range s.config {
		out[k] = v
	}
	return out
}

// HasConfig reports whether option values were ever recorded.
func (s *Store) HasConfig() bool {
	return s.config != nil
}

// SetConfig replaces the charm option values and reports whether they
// differ from the previous values. The first call always reports a
// change.
func (s *Store) SetConfig(cfg map[string]interface{}) bool {
	next := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		next[k] = v
	}
	changed := s.config == nil || !reflect.DeepEqual(s.config, next)
	s.config = next
	return changed
}

// Status returns the last computed workload status.
func (s *Store) Status() status.StatusInfo {
	return s.status
}

// SetStatus records the workload status computed by the last tick.
func (s *Store) SetStatus(info status.StatusInfo) {
	s.status = info
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	out := NewStore()
	for name, p := range s.flags {
		out.flags[name] = p.copy()
	}
	out.transient = set.NewStrings(s.transient.Values()...)
	for rel, ids := range s.relations {
		for id, units := range ids {
			out.relations[rel] = ensure(out.relations[rel])
			out.relations[rel][id] = make(map[string]relation.Settings, len(units))
			for unit, settings := range units {
				out.relations[rel][id][unit] = settings.Copy()
			}
		}
	}
	for rel := range s.local {
		out.RestoreLocal(rel, s.LocalSnapshot(rel))
	}
	if s.config != nil {
		out.SetConfig(s.config)
	}
	out.status = s.status
	return out
}

func ensure(ids map[string]map[string]relation.Settings) map[string]map[string]relation.Settings {
	if ids == nil {
		return make(map[string]map[string]relation.Settings)
	}
	return ids
}
