// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package interfaces

import (
	"net/url"
	"strings"

	"github.com/openstack-charmers/charm-manila/core/relation"
)

// Database is the access information the database provider publishes.
type Database struct {
	Host     string
	Password string
	SSLCA    string
}

// DatabaseInfo returns the first complete database access offer. If the
// provider restricts access with allowed_units, the local unit must be
// listed.
func DatabaseInfo(r RelationReader, localUnit string) (Database, bool) {
	s, ok := firstUnit(r, SharedDB, func(s relation.Settings) bool {
		if !hasAll(s, "db_host", "password") {
			return false
		}
		allowed, restricted := s["allowed_units"]
		if !restricted || localUnit == "" {
			return true
		}
		for _, u := range strings.Fields(allowed) {
			if u == localUnit {
				return true
			}
		}
		return false
	})
	if !ok {
		return Database{}, false
	}
	return Database{
		Host:     s["db_host"],
		Password: s["password"],
		SSLCA:    s["ssl_ca"],
	}, true
}

// ConnectionURL returns the SQLAlchemy URL manila uses to reach the
// database.
func (d Database) ConnectionURL(database, user string) string {
	u := url.URL{
		Scheme: "mysql+pymysql",
		User:   url.UserPassword(user, d.Password),
		Host:   d.Host,
		Path:   "/" + database,
	}
	return u.String()
}

// DatabaseRequest returns the settings manila publishes to request its
// database.
func DatabaseRequest(database, user, hostname string) relation.Settings {
	return relation.Settings{
		"database": database,
		"username": user,
		"hostname": hostname,
	}
}
