// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package interfaces

import (
	"fmt"

	"github.com/openstack-charmers/charm-manila/core/relation"
)

// Identity is the service account and endpoint information the identity
// service publishes once manila's endpoints are registered.
type Identity struct {
	ServiceHost     string
	ServicePort     string
	ServiceProtocol string
	AuthHost        string
	AuthPort        string
	AuthProtocol    string
	Username        string
	Password        string
	Tenant          string
}

// IdentityInfo returns the identity information once a unit has published
// both endpoints and credentials.
func IdentityInfo(r RelationReader) (Identity, bool) {
	s, ok := firstUnit(r, IdentityService, func(s relation.Settings) bool {
		return hasAll(s,
			"service_host", "service_port",
			"auth_host", "auth_port",
			"service_username", "service_password",
		)
	})
	if !ok {
		return Identity{}, false
	}
	return Identity{
		ServiceHost:     s["service_host"],
		ServicePort:     s["service_port"],
		ServiceProtocol: orDefault(s["service_protocol"], "http"),
		AuthHost:        s["auth_host"],
		AuthPort:        s["auth_port"],
		AuthProtocol:    orDefault(s["auth_protocol"], "http"),
		Username:        s["service_username"],
		Password:        s["service_password"],
		Tenant:          orDefault(s["service_tenant"], "services"),
	}, true
}

// AuthURI is the public identity endpoint.
func (i Identity) AuthURI() string {
	return fmt.Sprintf("%s://%s:%s", i.ServiceProtocol, i.ServiceHost, i.ServicePort)
}

// AuthURL is the identity endpoint used to obtain tokens.
func (i Identity) AuthURL() string {
	return fmt.Sprintf("%s://%s:%s", i.AuthProtocol, i.AuthHost, i.AuthPort)
}

// PluginAuthData returns the credentials shared with every backend plugin.
func (i Identity) PluginAuthData() map[string]string {
	return map[string]string{
		"username":          i.Username,
		"password":          i.Password,
		"project_domain_id": "default",
		"project_name":      "services",
		"user_domain_id":    "default",
		"auth_uri":          i.AuthURI(),
		"auth_url":          i.AuthURL(),
		"auth_type":         "password",
	}
}

func orDefault(v, dflt string) string {
	if v == "" {
		return dflt
	}
	return v
}
