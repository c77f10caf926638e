// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/core/status"
	"github.com/openstack-charmers/charm-manila/internal/assess"
	"github.com/openstack-charmers/charm-manila/internal/charm/config"
	"github.com/openstack-charmers/charm-manila/internal/interfaces"
	"github.com/openstack-charmers/charm-manila/internal/render"
)

type manilaConfData struct {
	Verbose             bool
	Debug               bool
	UseSyslog           bool
	ShareProtocols      string
	Backends            string
	DefaultShareBackend string
	Workers             int
	ListenPort          int
	TransportURL        string
	DatabaseURL         string
	AuthURI             string
	AuthURL             string
	ServiceTenant       string
	ServiceUsername     string
	ServicePassword     string
	BackendLines        []string
}

type loggingConfData struct {
	UseSyslog    bool
	RootLogLevel string
}

type wsgiConfData struct {
	ListenPort int
	Workers    int
}

type haproxyConfData struct {
	APIPort    int
	UnitSlug   string
	Address    string
	ListenPort int
}

// rootLogLevel maps the debug level onto a python logging level.
func rootLogLevel(cfg *config.Config) string {
	if level := config.DebugLevel(cfg); level != "NONE" {
		return level
	}
	return "ERROR"
}

// artifacts returns the files manila renders. The manila configuration
// needs every required relation to be available.
func (c *Charm) artifacts(db interfaces.Database, broker interfaces.Broker, id interfaces.Identity) []render.Artifact {
	restart := c.RestartMap()
	var required []string
	for _, rel := range RequiredRelations {
		required = append(required, facts.AvailableFlag(rel))
	}
	workers := config.Workers(c.config, c.deps.CPUs)
	return []render.Artifact{{
		Path:     ManilaConf,
		Requires: required,
		Services: restart[ManilaConf],
		Format:   render.INI,
		Render: render.Template(manilaConfT, func() (interface{}, error) {
			user, vhost := c.AMQPCredentials()
			return manilaConfData{
				Verbose:             c.config.Verbose,
				Debug:               c.config.Debug,
				UseSyslog:           c.config.UseSyslog,
				ShareProtocols:      config.ShareProtocols(c.config),
				Backends:            strings.Join(c.ConfiguredBackends(), ","),
				DefaultShareBackend: c.config.DefaultShareBackend,
				Workers:             workers,
				ListenPort:          apacheAPIPort,
				TransportURL:        broker.TransportURL(user, vhost),
				DatabaseURL:         db.ConnectionURL(c.config.Database, c.config.DatabaseUser),
				AuthURI:             id.AuthURI(),
				AuthURL:             id.AuthURL(),
				ServiceTenant:       id.Tenant,
				ServiceUsername:     id.Username,
				ServicePassword:     id.Password,
				BackendLines:        c.ConfigLinesFor(ManilaConf),
			}, nil
		}),
	}, {
		Path:     APIPasteConf,
		Services: restart[APIPasteConf],
		Format:   render.INI,
		Render: render.Template(apiPasteT, func() (interface{}, error) {
			return nil, nil
		}),
	}, {
		Path:     LoggingConf,
		Services: restart[LoggingConf],
		Format:   render.INI,
		Render: render.Template(loggingConfT, func() (interface{}, error) {
			return loggingConfData{
				UseSyslog:    c.config.UseSyslog,
				RootLogLevel: rootLogLevel(c.config),
			}, nil
		}),
	}, {
		Path:     WSGIConf,
		Services: restart[WSGIConf],
		Perm:     0644,
		Render: render.Template(wsgiConfT, func() (interface{}, error) {
			return wsgiConfData{ListenPort: apacheAPIPort, Workers: workers}, nil
		}),
	}, {
		Path:     HAProxyConf,
		Services: restart[HAProxyConf],
		Perm:     0644,
		Render: render.Template(haproxyConfT, func() (interface{}, error) {
			return haproxyConfData{
				APIPort:    APIPort,
				UnitSlug:   strings.Replace(c.deps.Unit, "/", "-", -1),
				Address:    c.deps.Address,
				ListenPort: apacheAPIPort,
			}, nil
		}),
	}}
}

// RenderWithInterfaces writes the manila configuration from the data of
// the required relations. Services whose files changed are restarted once
// they have been started and the unit is not paused.
func (c *Charm) RenderWithInterfaces(ctx context.Context) error {
	db, ok := interfaces.DatabaseInfo(c.store, c.deps.Unit)
	if !ok {
		return errors.NotValidf("render without database")
	}
	broker, ok := interfaces.BrokerInfo(c.store)
	if !ok {
		return errors.NotValidf("render without message broker")
	}
	id, ok := interfaces.IdentityInfo(c.store)
	if !ok {
		return errors.NotValidf("render without identity service")
	}
	logger.Debugf("share backend files: %v", c.ConfigFiles())

	result, err := c.deps.Materializer.Materialize(c.artifacts(db, broker, id), c.store)
	if err != nil {
		return errors.Annotate(err, "writing configuration")
	}
	// Restart for every file not yet applied, including files an aborted
	// tick already wrote.
	applied, _ := c.store.Payload(ConfigAppliedFlag)
	var restarted []string
	if c.store.IsSet(ServicesFlag) && !c.store.IsSet(facts.PausedFlag) {
		for _, svc := range result.RestartSince(applied) {
			if err := c.deps.Services.Restart(ctx, svc); err != nil {
				return errors.Trace(err)
			}
			restarted = append(restarted, svc)
		}
	}
	if c.deps.Recorder != nil {
		c.deps.Recorder.ArtifactsWritten(result.Changed, restarted)
	}
	c.store.Set(ConfigAppliedFlag, result.Digests)
	c.store.Set(ConfigRenderedFlag, nil)
	return nil
}

// CustomAssessStatusCheck validates the share backend configuration.
func (c *Charm) CustomAssessStatusCheck() (status.Status, string) {
	return assess.CheckBackends(c.ConfiguredBackends, func() string {
		return c.config.DefaultShareBackend
	})(c.store)
}

// invalidConfig blocks the unit while the charm options are rejected.
func (c *Charm) invalidConfig(assess.Snapshot) (status.Status, string) {
	if c.configErr == nil {
		return status.Unset, ""
	}
	return status.Blocked, fmt.Sprintf("Invalid configuration: %v", errors.Cause(c.configErr))
}

type runningChecker struct {
	ctx      context.Context
	services ServiceManager
}

func (r runningChecker) IsRunning(name string) (bool, error) {
	return r.services.IsRunning(r.ctx, name)
}

// AssessStatus computes the workload status of the unit.
func (c *Charm) AssessStatus(ctx context.Context) status.StatusInfo {
	e := assess.Evaluator{Checks: []assess.Check{
		assess.Paused(),
		c.invalidConfig,
		assess.RequiredRelations(RequiredRelations...),
		func(assess.Snapshot) (status.Status, string) { return c.CustomAssessStatusCheck() },
		assess.ServicesRunning(ReadyFlag, c.Services, runningChecker{ctx: ctx, services: c.deps.Services}),
	}}
	return e.Evaluate(c.store)
}

func vipResourceName(vip string) string {
	sum := sha1.Sum([]byte(vip))
	return "res_manila_" + hex.EncodeToString(sum[:])[:7] + "_vip"
}

// ConfigureHA describes the manila resources to the cluster manager: one
// address resource per VIP and a haproxy clone on every unit.
func (c *Charm) ConfigureHA() error {
	resources := map[string]string{"res_manila_haproxy": "lsb:haproxy"}
	params := map[string]string{"res_manila_haproxy": `op monitor interval="5s"`}
	for _, vip := range c.config.VIPs() {
		name := vipResourceName(vip)
		if net.ParseIP(vip).To4() == nil {
			resources[name] = "ocf:heartbeat:IPv6addr"
			params[name] = fmt.Sprintf(`params ipv6addr="%s" op monitor timeout="20s" interval="10s" depth="0"`, vip)
		} else {
			resources[name] = "ocf:heartbeat:IPaddr2"
			params[name] = fmt.Sprintf(`params ip="%s" op monitor timeout="20s" interval="10s" depth="0"`, vip)
		}
	}
	settings := relation.Settings{}
	for key, value := range map[string]interface{}{
		"json_resources":       resources,
		"json_resource_params": params,
		"json_clones":          map[string]string{"cl_manila_haproxy": "res_manila_haproxy"},
		"json_init_services":   []string{"haproxy"},
	} {
		out, err := json.Marshal(value)
		if err != nil {
			return errors.Trace(err)
		}
		settings[key] = string(out)
	}
	return errors.Trace(c.Submit(relation.Update{
		Relation: interfaces.HACluster,
		Remote:   []relation.Settings{settings},
	}))
}
