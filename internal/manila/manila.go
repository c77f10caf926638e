// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package manila implements the manila charm: the rules that drive it, the
// handlers they invoke, and the dispatcher that runs one convergence tick
// per event.
package manila

import (
	"context"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/names/v5"

	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/internal/render"
)

var logger = loggo.GetLogger("manila")

// Files manila renders.
const (
	ManilaDir       = "/etc/manila/"
	ManilaConf      = ManilaDir + "manila.conf"
	LoggingConf     = ManilaDir + "logging.conf"
	APIPasteConf    = ManilaDir + "api-paste.ini"
	WSGIConf        = "/etc/apache2/sites-available/manila-api.conf"
	HAProxyConf     = "/etc/haproxy/haproxy.cfg"
	WebserverSite   = "manila-api"
	DefaultService  = "manila-api"
	ReleasePackage  = "manila-common"
	ServiceType     = "manila"
	ServiceTypeV2   = "manilav2"
	APIPort         = 8786
	apacheAPIPort   = APIPort - 10
	tenantURLSuffix = "/%(tenant_id)s"
)

// Facts set and read by the manila handlers.
const (
	InstalledFlag      = "charm.installed"
	ConfigRenderedFlag = "manila.config.rendered"
	DBSyncedFlag       = "db.synced"
	ReadyFlag          = "config.rendered"
	ServicesFlag       = "services.started"

	// ConfigAppliedFlag carries the digest of every rendered file the
	// running services have been restarted on, keyed by path.
	ConfigAppliedFlag = "manila.config.applied"
)

// RequiredRelations must all be available before manila is configured.
var RequiredRelations = []string{"shared-db", "amqp", "identity-service"}

// ServiceManager controls system services.
type ServiceManager interface {
	IsRunning(ctx context.Context, service string) (bool, error)
	Start(ctx context.Context, service string) error
	Stop(ctx context.Context, service string) error
	Restart(ctx context.Context, service string) error
	Reload(ctx context.Context, service string, restartOnFailure bool) error
}

// CommandRunner runs external commands.
type CommandRunner interface {
	// Run returns the standard output of a successful command.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// Call returns the exit code of the command without treating a
	// non-zero code as an error.
	Call(ctx context.Context, name string, args ...string) (int, string, error)
}

// UnitTools publishes data to the orchestrator.
type UnitTools interface {
	Submit(ctx context.Context, update relation.Update) error
	ApplicationVersionSet(ctx context.Context, version string) error
}

// Materializer writes configuration artifacts.
type Materializer interface {
	Materialize(artifacts []render.Artifact, facts render.FactReader) (render.Result, error)
	Path(path string) string
}

// ArtifactRecorder is told about configuration writes.
type ArtifactRecorder interface {
	ArtifactsWritten(paths, restarted []string)
}

// Deps holds what the charm needs from the machine it runs on.
type Deps struct {
	// Unit is the name of the local unit, such as "manila/0".
	Unit string

	// Address is the private address of the unit.
	Address string

	// CPUs is the number of processors, used to size worker pools.
	CPUs int

	Services     ServiceManager
	Runner       CommandRunner
	Tools        UnitTools
	Materializer Materializer
	Clock        clock.Clock

	// Recorder may be nil.
	Recorder ArtifactRecorder
}

// Validate returns an error if the deps cannot be used.
func (d Deps) Validate() error {
	if !names.IsValidUnit(d.Unit) {
		return errors.NotValidf("unit name %q", d.Unit)
	}
	if d.Services == nil {
		return errors.NotValidf("nil Services")
	}
	if d.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if d.Tools == nil {
		return errors.NotValidf("nil Tools")
	}
	if d.Materializer == nil {
		return errors.NotValidf("nil Materializer")
	}
	if d.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Hostname returns the name the unit uses when requesting access from
// other services.
func (d Deps) Hostname() string {
	return d.Address
}
