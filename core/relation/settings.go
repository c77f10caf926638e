// Copyright 2017 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"sort"

	"github.com/juju/errors"
)

// Settings holds the key/value settings one side of a relation exposes.
type Settings map[string]string

// Copy returns a copy of the settings. A nil receiver yields an empty,
// non-nil map.
func (s Settings) Copy() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal reports whether both settings hold the same keys and values.
func (s Settings) Equal(other Settings) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Contains reports whether every key of sub is present in s with the
// same value.
func (s Settings) Contains(sub Settings) bool {
	for k, v := range sub {
		if sv, ok := s[k]; !ok || sv != v {
			return false
		}
	}
	return true
}

// Keys returns the sorted keys of the settings.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Update is a single change to a relation. Local bundles are recorded as
// state owned by this unit; Remote bundles are advertised to the units on
// the other side. Both sides are applied together.
type Update struct {
	Relation string
	Local    []Settings
	Remote   []Settings
}

// Validate returns an error if the update names no relation or carries
// bundles whose keys collide.
func (u Update) Validate() error {
	if u.Relation == "" {
		return errors.NotValidf("relation update without relation name")
	}
	for _, side := range [][]Settings{u.Local, u.Remote} {
		seen := make(map[string]int)
		for i, bundle := range side {
			for k := range bundle {
				if j, ok := seen[k]; ok && j != i {
					return errors.NotValidf("key %q in more than one bundle", k)
				}
				seen[k] = i
			}
		}
	}
	return nil
}

// Flatten merges the bundles into one settings map.
func Flatten(bundles []Settings) Settings {
	out := make(Settings)
	for _, b := range bundles {
		for k, v := range b {
			out[k] = v
		}
	}
	return out
}
