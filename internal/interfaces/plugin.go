// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package interfaces

import (
	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/internal/render"
)

// Keys used on the backend plugin relations.
const (
	PluginNameKey   = "_name"
	PluginConfigKey = "_configuration_data"
	PluginAuthKey   = "_authentication_data"
)

// pluginConfig is the document a plugin publishes under PluginConfigKey.
// Plugins usually emit JSON, which parses as YAML.
type pluginConfig struct {
	Complete bool              `yaml:"complete"`
	Data     map[string]string `yaml:"data"`
}

// Contributions returns the backend contributions published on the given
// plugin relations, in relation order and then unit name order. A name
// claimed by more than one unit keeps the first complete contribution.
// Malformed configuration documents are treated as incomplete.
func Contributions(r RelationReader, rels ...string) []render.Contribution {
	var out []render.Contribution
	index := make(map[string]int)
	for _, rel := range rels {
		units := r.RelationUnits(rel)
		for _, unit := range r.RelationUnitNames(rel) {
			s := units[unit]
			name := s[PluginNameKey]
			if name == "" {
				continue
			}
			contrib := render.Contribution{Name: name}
			if raw := s[PluginConfigKey]; raw != "" {
				var doc pluginConfig
				if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
					logger.Warningf("ignoring configuration of backend %q from %s: %v", name, unit, err)
				} else {
					contrib.Complete = doc.Complete
					contrib.Files = doc.Data
				}
			}
			if i, ok := index[name]; ok {
				if !out[i].Complete && contrib.Complete {
					out[i] = contrib
				}
				continue
			}
			index[name] = len(out)
			out = append(out, contrib)
		}
	}
	return out
}

// EncodePluginConfig renders a plugin configuration document. It is the
// inverse of the parsing done by Contributions.
func EncodePluginConfig(complete bool, files map[string]string) (string, error) {
	out, err := yaml.Marshal(pluginConfig{Complete: complete, Data: files})
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(out), nil
}

// PluginAuthSettings returns the local settings that share the identity
// credentials with the backend plugins.
func PluginAuthSettings(id Identity) (relation.Settings, error) {
	out, err := yaml.Marshal(map[string]interface{}{"data": id.PluginAuthData()})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return relation.Settings{PluginAuthKey: string(out)}, nil
}
