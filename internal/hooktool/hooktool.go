// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooktool talks to the unit agent through its hook tools.
package hooktool

import (
	"context"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"gopkg.in/yaml.v2"

	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/core/status"
)

var logger = loggo.GetLogger("manila.hooktool")

// Runner runs a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Tools wraps the hook tools.
type Tools struct {
	runner Runner
}

// New returns Tools that run the hook tools with runner.
func New(runner Runner) *Tools {
	return &Tools{runner: runner}
}

// RelationIDs returns the ids of the established relations with the
// given name.
func (t *Tools) RelationIDs(ctx context.Context, rel string) ([]string, error) {
	out, err := t.runner.Run(ctx, "relation-ids", "--format=yaml", rel)
	if err != nil {
		return nil, errors.Annotatef(err, "listing %q relations", rel)
	}
	var ids []string
	if err := yaml.Unmarshal([]byte(out), &ids); err != nil {
		return nil, errors.Annotatef(err, "parsing relation ids of %q", rel)
	}
	return ids, nil
}

// RelationSet publishes settings on one relation.
func (t *Tools) RelationSet(ctx context.Context, relID string, settings relation.Settings) error {
	if len(settings) == 0 {
		return nil
	}
	args := []string{"-r", relID}
	for _, k := range settings.Keys() {
		args = append(args, k+"="+settings[k])
	}
	if _, err := t.runner.Run(ctx, "relation-set", args...); err != nil {
		return errors.Annotatef(err, "setting relation data on %s", relID)
	}
	return nil
}

// Submit publishes the remote bundles of the update on every established
// relation with the update's name, merged into one relation-set call per
// relation.
func (t *Tools) Submit(ctx context.Context, update relation.Update) error {
	if err := update.Validate(); err != nil {
		return errors.Trace(err)
	}
	settings := relation.Flatten(update.Remote)
	if len(settings) == 0 {
		return nil
	}
	ids, err := t.RelationIDs(ctx, update.Relation)
	if err != nil {
		return errors.Trace(err)
	}
	if len(ids) == 0 {
		logger.Debugf("no %q relation to publish to", update.Relation)
	}
	for _, id := range ids {
		if err := t.RelationSet(ctx, id, settings); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// SetStatus sets the workload status of the unit.
func (t *Tools) SetStatus(ctx context.Context, info status.StatusInfo) error {
	if !status.ValidWorkloadStatus(info.Status) {
		return errors.NotValidf("workload status %q", info.Status)
	}
	if _, err := t.runner.Run(ctx, "status-set", info.Status.String(), info.Message); err != nil {
		return errors.Annotate(err, "setting workload status")
	}
	return nil
}

// UnitAddress returns the private address of the unit.
func (t *Tools) UnitAddress(ctx context.Context) (string, error) {
	out, err := t.runner.Run(ctx, "unit-get", "private-address")
	if err != nil {
		return "", errors.Annotate(err, "getting unit address")
	}
	return strings.TrimSpace(out), nil
}

// ConfigGet returns the charm options.
func (t *Tools) ConfigGet(ctx context.Context) (map[string]interface{}, error) {
	out, err := t.runner.Run(ctx, "config-get", "--all", "--format=yaml")
	if err != nil {
		return nil, errors.Annotate(err, "reading charm config")
	}
	cfg := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(out), &cfg); err != nil {
		return nil, errors.Annotate(err, "parsing charm config")
	}
	return cfg, nil
}

// RelationGet returns the settings a remote unit published on a
// relation.
func (t *Tools) RelationGet(ctx context.Context, relID, unit string) (relation.Settings, error) {
	out, err := t.runner.Run(ctx, "relation-get", "--format=yaml", "-r", relID, "-", unit)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s settings on %s", unit, relID)
	}
	settings := make(relation.Settings)
	if err := yaml.Unmarshal([]byte(out), &settings); err != nil {
		return nil, errors.Annotatef(err, "parsing %s settings on %s", unit, relID)
	}
	return settings, nil
}

// ApplicationVersionSet records the workload version.
func (t *Tools) ApplicationVersionSet(ctx context.Context, version string) error {
	_, err := t.runner.Run(ctx, "application-version-set", version)
	return errors.Annotate(err, "setting application version")
}
