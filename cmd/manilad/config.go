// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

const defaultConfigPath = "/etc/manila-charm/manilad.yaml"

// daemonConfig holds the settings shared by every manilad subcommand.
type daemonConfig struct {
	Unit                 string
	StatePath            string
	MetricsPath          string
	SpoolDir             string
	Root                 string
	UpdateStatusInterval time.Duration
	LockTimeout          time.Duration
}

var daemonFields = schema.Fields{
	"unit":                   schema.String(),
	"state-path":             schema.String(),
	"metrics-path":           schema.String(),
	"spool-dir":              schema.String(),
	"root":                   schema.String(),
	"update-status-interval": schema.TimeDuration(),
	"lock-timeout":           schema.TimeDuration(),
}

var daemonDefaults = schema.Defaults{
	"unit":                   "",
	"state-path":             "/var/lib/manila-charm/state.db",
	"metrics-path":           "",
	"spool-dir":              "/var/lib/manila-charm/spool",
	"root":                   "/",
	"update-status-interval": 5 * time.Minute,
	"lock-timeout":           5 * time.Minute,
}

var daemonChecker = schema.FieldMap(daemonFields, daemonDefaults)

// parseDaemonConfig coerces YAML into a daemonConfig. Missing keys take
// their defaults; a missing unit falls back to JUJU_UNIT_NAME via
// getenv.
func parseDaemonConfig(data []byte, getenv func(string) string) (daemonConfig, error) {
	attrs := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return daemonConfig{}, errors.Annotate(err, "parsing daemon config")
	}
	coerced, err := daemonChecker.Coerce(attrs, nil)
	if err != nil {
		return daemonConfig{}, errors.NewNotValid(err, "invalid daemon config")
	}
	m := coerced.(map[string]interface{})
	cfg := daemonConfig{
		Unit:                 m["unit"].(string),
		StatePath:            m["state-path"].(string),
		MetricsPath:          m["metrics-path"].(string),
		SpoolDir:             m["spool-dir"].(string),
		Root:                 m["root"].(string),
		UpdateStatusInterval: m["update-status-interval"].(time.Duration),
		LockTimeout:          m["lock-timeout"].(time.Duration),
	}
	if cfg.Unit == "" {
		cfg.Unit = getenv("JUJU_UNIT_NAME")
	}
	if err := cfg.Validate(); err != nil {
		return daemonConfig{}, errors.Trace(err)
	}
	return cfg, nil
}

// Validate returns an error if the config is unusable.
func (c daemonConfig) Validate() error {
	if !names.IsValidUnit(c.Unit) {
		return errors.NotValidf("unit name %q", c.Unit)
	}
	if c.StatePath == "" {
		return errors.NotValidf("empty state-path")
	}
	if c.SpoolDir == "" {
		return errors.NotValidf("empty spool-dir")
	}
	if c.UpdateStatusInterval <= 0 {
		return errors.NotValidf("non-positive update-status-interval")
	}
	if c.LockTimeout <= 0 {
		return errors.NotValidf("non-positive lock-timeout")
	}
	return nil
}

// readDaemonConfig reads the config file at path. A missing file is the
// same as an empty one.
func readDaemonConfig(path string, getenv func(string) string) (daemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return daemonConfig{}, errors.Annotatef(err, "reading %s", path)
	}
	return parseDaemonConfig(data, getenv)
}
