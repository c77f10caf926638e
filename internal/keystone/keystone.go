// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package keystone registers API endpoints with the identity service.
//
// The identity-service relation only carries one endpoint set per
// service. Services exposing more than one API version publish each
// version as a bundle of settings whose keys carry a version prefix, and
// publish all bundles in one update so the catalog never sees a partial
// registration.
package keystone

import (
	"fmt"
	"net"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/openstack-charmers/charm-manila/core/relation"
)

var logger = loggo.GetLogger("manila.keystone")

// Relation is the name of the identity service relation.
const Relation = "identity-service"

// Endpoint is one versioned API surface of a service.
type Endpoint struct {
	Service     string
	Region      string
	PublicURL   string
	InternalURL string
	AdminURL    string
}

// Validate checks that every field of the endpoint is set.
func (e Endpoint) Validate() error {
	for name, v := range map[string]string{
		"service":      e.Service,
		"region":       e.Region,
		"public URL":   e.PublicURL,
		"internal URL": e.InternalURL,
		"admin URL":    e.AdminURL,
	} {
		if v == "" {
			return errors.NotValidf("endpoint with empty %s", name)
		}
	}
	return nil
}

// Bundle returns the relation settings for ep, each key prefixed with
// "<prefix>_".
func Bundle(prefix string, ep Endpoint) relation.Settings {
	return relation.Settings{
		prefix + "_service":      ep.Service,
		prefix + "_region":       ep.Region,
		prefix + "_public_url":   ep.PublicURL,
		prefix + "_internal_url": ep.InternalURL,
		prefix + "_admin_url":    ep.AdminURL,
	}
}

// Submitter applies a relation update.
type Submitter interface {
	Submit(relation.Update) error
}

// RegisterEndpoints publishes the v1 and v2 endpoints of a service as
// both local and remote settings of the identity relation, in a single
// update.
func RegisterEndpoints(sub Submitter, v1, v2 Endpoint) error {
	for _, ep := range []Endpoint{v1, v2} {
		if err := ep.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	bundles := []relation.Settings{Bundle("v1", v1), Bundle("v2", v2)}
	update := relation.Update{
		Relation: Relation,
		Local:    bundles,
		Remote:   []relation.Settings{bundles[0].Copy(), bundles[1].Copy()},
	}
	if err := update.Validate(); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("registering endpoints %q and %q in region %q", v1.Service, v2.Service, v1.Region)
	return errors.Annotate(sub.Submit(update), "registering endpoints")
}

// EndpointType is the kind of network an endpoint is published on.
type EndpointType string

const (
	Public   EndpointType = "public"
	Internal EndpointType = "internal"
	Admin    EndpointType = "admin"
)

// Addresses holds what is known about how the unit can be reached.
type Addresses struct {
	// Hostnames are the os-<type>-hostname overrides.
	Hostnames map[EndpointType]string

	// VIPs are the virtual addresses of the clustered service.
	VIPs []string

	// Private is the unit's own address.
	Private string
}

// Host resolves the host for an endpoint type. A configured hostname
// wins over a VIP, which wins over the unit address.
func (a Addresses) Host(t EndpointType) string {
	if h := a.Hostnames[t]; h != "" {
		return h
	}
	if len(a.VIPs) > 0 {
		return a.VIPs[0]
	}
	return a.Private
}

// BaseURL returns "<scheme>://<host>:<port>".
func BaseURL(scheme, host string, port int) string {
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)))
}
