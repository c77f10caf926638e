// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the manila charm options as a typed struct, the
// schema they are validated against, and the values derived from them.
package config

import (
	"net"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

var logger = loggo.GetLogger("manila.charm.config")

// Option names as they appear in the charm's config.yaml.
const (
	DebugKey               = "debug"
	VerboseKey             = "verbose"
	UseSyslogKey           = "use-syslog"
	OpenStackOriginKey     = "openstack-origin"
	RabbitUserKey          = "rabbit-user"
	RabbitVHostKey         = "rabbit-vhost"
	DatabaseKey            = "database"
	DatabaseUserKey        = "database-user"
	RegionKey              = "region"
	DefaultShareBackendKey = "default-share-backend"
	ShareProtocolsKey      = "share-protocols"
	VIPKey                 = "vip"
	PublicHostnameKey      = "os-public-hostname"
	InternalHostnameKey    = "os-internal-hostname"
	AdminHostnameKey       = "os-admin-hostname"
	WorkerMultiplierKey    = "worker-multiplier"
)

// KnownShareProtocols are the protocols manila can enable.
var KnownShareProtocols = []string{"NFS", "CIFS", "GLUSTERFS", "HDFS", "CEPHFS", "MAPRFS"}

var configFields = environschema.Fields{
	DebugKey: {
		Description: "Enable debug logging.",
		Type:        environschema.Tbool,
	},
	VerboseKey: {
		Description: "Enable verbose logging.",
		Type:        environschema.Tbool,
	},
	UseSyslogKey: {
		Description: "Setting this to true will allow supporting services to log to syslog.",
		Type:        environschema.Tbool,
	},
	OpenStackOriginKey: {
		Description: "Repository from which to install OpenStack.",
		Type:        environschema.Tstring,
	},
	RabbitUserKey: {
		Description: "Username to request access on rabbitmq-server.",
		Type:        environschema.Tstring,
	},
	RabbitVHostKey: {
		Description: "RabbitMQ virtual host to request access on rabbitmq-server.",
		Type:        environschema.Tstring,
	},
	DatabaseKey: {
		Description: "Database name for Manila.",
		Type:        environschema.Tstring,
	},
	DatabaseUserKey: {
		Description: "Username for Manila database access.",
		Type:        environschema.Tstring,
	},
	RegionKey: {
		Description: "OpenStack Region.",
		Type:        environschema.Tstring,
	},
	DefaultShareBackendKey: {
		Description: "The default backend for this manila set. Must be one of the configured backends.",
		Type:        environschema.Tstring,
	},
	ShareProtocolsKey: {
		Description: "Space or comma separated list of share protocols to enable.",
		Type:        environschema.Tstring,
	},
	VIPKey: {
		Description: "Virtual IP(s) to use to front API services in HA configuration.",
		Type:        environschema.Tstring,
	},
	PublicHostnameKey: {
		Description: "Hostname to use for the public endpoint in the identity catalog.",
		Type:        environschema.Tstring,
	},
	InternalHostnameKey: {
		Description: "Hostname to use for the internal endpoint in the identity catalog.",
		Type:        environschema.Tstring,
	},
	AdminHostnameKey: {
		Description: "Hostname to use for the admin endpoint in the identity catalog.",
		Type:        environschema.Tstring,
	},
	WorkerMultiplierKey: {
		Description: "The CPU core multiplier to use when configuring worker processes. 0 uses the default.",
		Type:        environschema.Tint,
	},
}

var configDefaults = schema.Defaults{
	DebugKey:               false,
	VerboseKey:             false,
	UseSyslogKey:           false,
	OpenStackOriginKey:     "distro",
	RabbitUserKey:          "manila",
	RabbitVHostKey:         "openstack",
	DatabaseKey:            "manila",
	DatabaseUserKey:        "manila",
	RegionKey:              "RegionOne",
	DefaultShareBackendKey: "",
	ShareProtocolsKey:      "CIFS NFS",
	VIPKey:                 "",
	PublicHostnameKey:      "",
	InternalHostnameKey:    "",
	AdminHostnameKey:       "",
	WorkerMultiplierKey:    0,
}

var configChecker = func() schema.Checker {
	fields, _, err := configFields.ValidationSchema()
	if err != nil {
		panic(err)
	}
	return schema.FieldMap(fields, configDefaults)
}()

// Schema returns the option schema of the charm.
func Schema() environschema.Fields {
	out := make(environschema.Fields, len(configFields))
	for k, v := range configFields {
		out[k] = v
	}
	return out
}

// Config is the validated set of charm options.
type Config struct {
	Debug               bool
	Verbose             bool
	UseSyslog           bool
	OpenStackOrigin     string
	RabbitUser          string
	RabbitVHost         string
	Database            string
	DatabaseUser        string
	Region              string
	DefaultShareBackend string
	ShareProtocols      string
	VIP                 string
	PublicHostname      string
	InternalHostname    string
	AdminHostname       string
	WorkerMultiplier    int
}

// New coerces raw option values into a Config, filling in defaults, and
// validates the result. Unknown options are logged and ignored.
func New(attrs map[string]interface{}) (*Config, error) {
	known := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if _, ok := configFields[k]; !ok {
			logger.Warningf("unknown config option %q", k)
			continue
		}
		if v == nil {
			// A nil value is an unset option; fall back to the default.
			continue
		}
		known[k] = v
	}
	coerced, err := configChecker.Coerce(known, nil)
	if err != nil {
		return nil, errors.NewNotValid(err, "invalid charm config")
	}
	m := coerced.(map[string]interface{})
	cfg := &Config{
		Debug:               m[DebugKey].(bool),
		Verbose:             m[VerboseKey].(bool),
		UseSyslog:           m[UseSyslogKey].(bool),
		OpenStackOrigin:     m[OpenStackOriginKey].(string),
		RabbitUser:          m[RabbitUserKey].(string),
		RabbitVHost:         m[RabbitVHostKey].(string),
		Database:            m[DatabaseKey].(string),
		DatabaseUser:        m[DatabaseUserKey].(string),
		Region:              m[RegionKey].(string),
		DefaultShareBackend: m[DefaultShareBackendKey].(string),
		ShareProtocols:      m[ShareProtocolsKey].(string),
		VIP:                 m[VIPKey].(string),
		PublicHostname:      m[PublicHostnameKey].(string),
		InternalHostname:    m[InternalHostnameKey].(string),
		AdminHostname:       m[AdminHostnameKey].(string),
		WorkerMultiplier:    toInt(m[WorkerMultiplierKey]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Default returns the configuration with every option at its default.
func Default() *Config {
	cfg, err := New(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate returns an error if the options are not usable.
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.NotValidf("empty %q", RegionKey)
	}
	if c.RabbitUser == "" || c.RabbitVHost == "" {
		return errors.NotValidf("empty %q or %q", RabbitUserKey, RabbitVHostKey)
	}
	if c.Database == "" || c.DatabaseUser == "" {
		return errors.NotValidf("empty %q or %q", DatabaseKey, DatabaseUserKey)
	}
	if c.WorkerMultiplier < 0 {
		return errors.NotValidf("negative %q", WorkerMultiplierKey)
	}
	for _, vip := range strings.Fields(c.VIP) {
		if net.ParseIP(vip) == nil {
			return errors.NotValidf("%q address %q", VIPKey, vip)
		}
	}
	for _, proto := range strings.Split(ShareProtocols(c), ",") {
		if proto == "" {
			continue
		}
		if !isKnownProtocol(proto) {
			return errors.NotValidf("share protocol %q", proto)
		}
	}
	return nil
}

// toInt normalises the integer types the schema checkers may produce.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func isKnownProtocol(proto string) bool {
	for _, known := range KnownShareProtocols {
		if proto == known {
			return true
		}
	}
	return false
}

// VIPs returns the configured virtual IPs.
func (c *Config) VIPs() []string {
	return strings.Fields(c.VIP)
}
