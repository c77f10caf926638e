// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package interfaces

import (
	"fmt"
	"strings"

	"github.com/juju/collections/set"

	"github.com/openstack-charmers/charm-manila/core/relation"
)

// DefaultAMQPPort is used when the broker does not advertise an SSL port.
const DefaultAMQPPort = "5672"

// Broker is the access information the message broker publishes.
type Broker struct {
	Hosts    []string
	Password string
	SSLPort  string
}

// BrokerInfo returns the broker access information once a unit has
// published a password. Hosts come from an explicit "hosts" list when one
// is given, otherwise from the hostname of every unit that has published
// the password.
func BrokerInfo(r RelationReader) (Broker, bool) {
	s, ok := firstUnit(r, AMQP, func(s relation.Settings) bool {
		return s["password"] != "" && (s["hostname"] != "" || s["hosts"] != "")
	})
	if !ok {
		return Broker{}, false
	}
	b := Broker{
		Password: s["password"],
		SSLPort:  s["ssl_port"],
	}
	if hosts := s["hosts"]; hosts != "" {
		for _, h := range strings.Split(hosts, ",") {
			if h = strings.TrimSpace(h); h != "" {
				b.Hosts = append(b.Hosts, h)
			}
		}
		return b, true
	}
	seen := set.NewStrings()
	units := r.RelationUnits(AMQP)
	for _, name := range r.RelationUnitNames(AMQP) {
		u := units[name]
		if u["password"] != b.Password || u["hostname"] == "" || seen.Contains(u["hostname"]) {
			continue
		}
		seen.Add(u["hostname"])
		b.Hosts = append(b.Hosts, u["hostname"])
	}
	return b, true
}

// Port returns the port used to reach the broker.
func (b Broker) Port() string {
	if b.SSLPort != "" {
		return b.SSLPort
	}
	return DefaultAMQPPort
}

// TransportURL returns the oslo.messaging transport URL for the broker.
func (b Broker) TransportURL(user, vhost string) string {
	parts := make([]string, len(b.Hosts))
	for i, h := range b.Hosts {
		parts[i] = fmt.Sprintf("%s:%s@%s:%s", user, b.Password, h, b.Port())
	}
	return fmt.Sprintf("rabbit://%s/%s", strings.Join(parts, ","), vhost)
}

// AccessRequest returns the settings manila publishes to request a broker
// account.
func AccessRequest(user, vhost string) relation.Settings {
	return relation.Settings{
		"username": user,
		"vhost":    vhost,
	}
}
