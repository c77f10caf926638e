// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/internal/charm/config"
	"github.com/openstack-charmers/charm-manila/internal/interfaces"
	"github.com/openstack-charmers/charm-manila/internal/keystone"
	"github.com/openstack-charmers/charm-manila/internal/render"
)

// Charm is the manila charm as seen by one handler invocation. It is
// only valid inside the function passed to Provide.
type Charm struct {
	deps    Deps
	store   *facts.Store
	config  *config.Config
	release string

	// configErr is set when the charm options are invalid; config then
	// holds the defaults.
	configErr error

	pending []relation.Update
}

func newCharm(ctx context.Context, deps Deps, store *facts.Store) (*Charm, error) {
	cfg, err := config.New(store.Config())
	c := &Charm{deps: deps, store: store, config: cfg}
	if err != nil {
		logger.Warningf("%v", err)
		c.configErr = err
		c.config = config.Default()
	}
	c.release, err = SelectRelease(ctx, deps.Runner, c.config.OpenStackOrigin)
	if err != nil {
		return nil, errors.Annotate(err, "selecting release")
	}
	return c, nil
}

// Config returns the charm options.
func (c *Charm) Config() *config.Config {
	return c.config
}

// ConfigError returns the reason the charm options were rejected, if they
// were.
func (c *Charm) ConfigError() error {
	return c.configErr
}

// Release returns the OpenStack release the unit runs.
func (c *Charm) Release() string {
	return c.release
}

// Services returns the services manila runs on the unit. manila-share
// runs in a remote plugin when one is available.
func (c *Charm) Services() []string {
	services := []string{"apache2", "haproxy", "manila-scheduler", "manila-data"}
	if !c.store.IsSet(facts.AvailableFlag(interfaces.RemoteManilaPlugin)) {
		services = append(services, "manila-share")
	}
	return services
}

// RestartMap returns the services restarted when each file changes.
func (c *Charm) RestartMap() map[string][]string {
	services := c.Services()
	return map[string][]string{
		ManilaConf:   services,
		APIPasteConf: {"apache2"},
		LoggingConf:  services,
		WSGIConf:     {"apache2"},
		HAProxyConf:  {"haproxy"},
	}
}

// contributions returns the share backend contributions from both plugin
// relations.
func (c *Charm) contributions() []render.Contribution {
	return interfaces.Contributions(c.store, interfaces.ManilaPlugin, interfaces.RemoteManilaPlugin)
}

// ConfiguredBackends returns the names of the share backends that have
// supplied complete configuration.
func (c *Charm) ConfiguredBackends() []string {
	return render.Names(c.contributions())
}

// ConfigLinesFor returns the lines the share backends want in file.
func (c *Charm) ConfigLinesFor(file string) []string {
	return render.LinesFor(c.contributions(), file)
}

// ConfigFiles returns every file the share backends supply lines for.
func (c *Charm) ConfigFiles() []string {
	return render.FilesOf(c.contributions())
}

func (c *Charm) addresses() keystone.Addresses {
	return keystone.Addresses{
		Hostnames: map[keystone.EndpointType]string{
			keystone.Public:   c.config.PublicHostname,
			keystone.Internal: c.config.InternalHostname,
			keystone.Admin:    c.config.AdminHostname,
		},
		VIPs:    c.config.VIPs(),
		Private: c.deps.Address,
	}
}

func (c *Charm) endpointURL(t keystone.EndpointType, version string) string {
	return keystone.BaseURL("http", c.addresses().Host(t), APIPort) + "/" + version + tenantURLSuffix
}

// PublicURL returns the public v1 endpoint.
func (c *Charm) PublicURL() string { return c.endpointURL(keystone.Public, "v1") }

// InternalURL returns the internal v1 endpoint.
func (c *Charm) InternalURL() string { return c.endpointURL(keystone.Internal, "v1") }

// AdminURL returns the admin v1 endpoint.
func (c *Charm) AdminURL() string { return c.endpointURL(keystone.Admin, "v1") }

// PublicURLV2 returns the public v2 endpoint.
func (c *Charm) PublicURLV2() string { return c.endpointURL(keystone.Public, "v2") }

// InternalURLV2 returns the internal v2 endpoint.
func (c *Charm) InternalURLV2() string { return c.endpointURL(keystone.Internal, "v2") }

// AdminURLV2 returns the admin v2 endpoint.
func (c *Charm) AdminURLV2() string { return c.endpointURL(keystone.Admin, "v2") }

// Submit queues a relation update. Queued updates are published when the
// enclosing Provide returns.
func (c *Charm) Submit(update relation.Update) error {
	if err := update.Validate(); err != nil {
		return errors.Trace(err)
	}
	c.pending = append(c.pending, update)
	return nil
}

// flush publishes the queued updates. An update whose settings this unit
// already owns on every id of the relation has been published before and
// is skipped.
func (c *Charm) flush(ctx context.Context) error {
	pending := c.pending
	c.pending = nil
	for _, update := range pending {
		previous := c.store.LocalSnapshot(update.Relation)
		published := relation.Flatten(append(append([]relation.Settings{}, update.Local...), update.Remote...))
		if !c.store.MergeLocal(update.Relation, published) {
			logger.Tracef("%q settings unchanged", update.Relation)
			continue
		}
		if err := c.deps.Tools.Submit(ctx, update); err != nil {
			// Forget what was not published so the next tick retries.
			c.store.RestoreLocal(update.Relation, previous)
			return errors.Annotatef(err, "publishing %q settings", update.Relation)
		}
	}
	return nil
}

// RegisterEndpoints registers the v1 and v2 API endpoints with the
// identity service.
func (c *Charm) RegisterEndpoints() error {
	v1 := keystone.Endpoint{
		Service:     ServiceType,
		Region:      c.config.Region,
		PublicURL:   c.PublicURL(),
		InternalURL: c.InternalURL(),
		AdminURL:    c.AdminURL(),
	}
	v2 := keystone.Endpoint{
		Service:     ServiceTypeV2,
		Region:      c.config.Region,
		PublicURL:   c.PublicURLV2(),
		InternalURL: c.InternalURLV2(),
		AdminURL:    c.AdminURLV2(),
	}
	return errors.Trace(keystone.RegisterEndpoints(c, v1, v2))
}

// AMQPCredentials returns the username and vhost to request from the
// message broker.
func (c *Charm) AMQPCredentials() (string, string) {
	return c.config.RabbitUser, c.config.RabbitVHost
}

// DatabaseSetup returns the database request.
func (c *Charm) DatabaseSetup() relation.Settings {
	return interfaces.DatabaseRequest(c.config.Database, c.config.DatabaseUser, c.deps.Hostname())
}

// RequestAMQPAccess asks the broker for an account.
func (c *Charm) RequestAMQPAccess() error {
	user, vhost := c.AMQPCredentials()
	req := interfaces.AccessRequest(user, vhost)
	return errors.Trace(c.Submit(relation.Update{
		Relation: interfaces.AMQP,
		Remote:   []relation.Settings{req},
	}))
}

// RequestDatabase asks the database provider for manila's database.
func (c *Charm) RequestDatabase() error {
	return errors.Trace(c.Submit(relation.Update{
		Relation: interfaces.SharedDB,
		Remote:   []relation.Settings{c.DatabaseSetup()},
	}))
}

// ShareAuthToPlugins gives every connected backend plugin the credentials
// manila uses with the identity service.
func (c *Charm) ShareAuthToPlugins() error {
	id, ok := interfaces.IdentityInfo(c.store)
	if !ok {
		logger.Debugf("identity credentials not yet available")
		return nil
	}
	settings, err := interfaces.PluginAuthSettings(id)
	if err != nil {
		return errors.Trace(err)
	}
	for _, rel := range []string{interfaces.ManilaPlugin, interfaces.RemoteManilaPlugin} {
		if !c.store.IsSet(facts.ConnectedFlag(rel)) {
			continue
		}
		if err := c.Submit(relation.Update{
			Relation: rel,
			Remote:   []relation.Settings{settings},
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// DBSync migrates the database schema. Migrations are idempotent, so
// running it on every unit is safe.
func (c *Charm) DBSync(ctx context.Context) error {
	if _, err := c.deps.Runner.Run(ctx, "manila-manage", "db", "sync"); err != nil {
		return errors.Annotate(err, "syncing database")
	}
	return nil
}

// EnableWebserverSite enables the manila API site once its configuration
// has been written.
func (c *Charm) EnableWebserverSite(ctx context.Context) error {
	if _, err := os.Stat(c.deps.Materializer.Path(WSGIConf)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Trace(err)
	}
	code, _, err := c.deps.Runner.Call(ctx, "a2query", "-s", WebserverSite)
	if err != nil {
		return errors.Trace(err)
	}
	if code == 0 {
		return nil
	}
	if _, err := c.deps.Runner.Run(ctx, "a2ensite", WebserverSite); err != nil {
		return errors.Annotate(err, "enabling manila API site")
	}
	return errors.Trace(c.deps.Services.Reload(ctx, "apache2", true))
}

// installPackages installs the packages of the unit's release.
func (c *Charm) installPackages(ctx context.Context) error {
	args := append([]string{"--option=Dpkg::Options::=--force-confold", "--assume-yes", "install"}, Packages(c.release)...)
	if _, err := c.deps.Runner.Run(ctx, "apt-get", args...); err != nil {
		return errors.Annotate(err, "installing packages")
	}
	return nil
}

// purgePackages removes the installed packages that the release no
// longer uses.
func (c *Charm) purgePackages(ctx context.Context) error {
	var installed []string
	for _, pkg := range PurgePackages(c.release) {
		ver, err := installedVersion(ctx, c.deps.Runner, pkg)
		if err != nil {
			return errors.Trace(err)
		}
		if ver != "" {
			installed = append(installed, pkg)
		}
	}
	if len(installed) == 0 {
		return nil
	}
	logger.Infof("purging %s", strings.Join(installed, ", "))
	args := append([]string{"--assume-yes", "purge"}, installed...)
	if _, err := c.deps.Runner.Run(ctx, "apt-get", args...); err != nil {
		return errors.Annotate(err, "purging packages")
	}
	return nil
}

// setApplicationVersion reports the installed manila version.
func (c *Charm) setApplicationVersion(ctx context.Context) error {
	ver, err := installedVersion(ctx, c.deps.Runner, ReleasePackage)
	if err != nil || ver == "" {
		return errors.Trace(err)
	}
	if i := strings.Index(ver, ":"); i >= 0 {
		ver = ver[i+1:]
	}
	if i := strings.Index(ver, "-"); i >= 0 {
		ver = ver[:i]
	}
	return errors.Trace(c.deps.Tools.ApplicationVersionSet(ctx, ver))
}

// Install installs manila. The API runs under apache, so the standalone
// manila-api service is stopped.
func (c *Charm) Install(ctx context.Context) error {
	if err := c.installPackages(ctx); err != nil {
		return errors.Trace(err)
	}
	// A neutron-openvswitch subordinate writes into /etc/nova.
	if _, err := c.deps.Runner.Run(ctx, "mkdir", "-p", "/etc/nova"); err != nil {
		return errors.Trace(err)
	}
	if err := c.deps.Services.Stop(ctx, DefaultService); err != nil {
		return errors.Trace(err)
	}
	if err := c.setApplicationVersion(ctx); err != nil {
		logger.Warningf("cannot set application version: %v", err)
	}
	c.store.Set(InstalledFlag, facts.Payload{"release": c.release})
	return nil
}

// UpgradeCharm brings the packages in line with the release and forces
// the configuration to be rendered again.
func (c *Charm) UpgradeCharm(ctx context.Context) error {
	if err := c.installPackages(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := c.purgePackages(ctx); err != nil {
		return errors.Trace(err)
	}
	c.store.Clear(ConfigRenderedFlag)
	return nil
}

// UpdateStatus starts manila-share if it should run locally but has
// stopped.
func (c *Charm) UpdateStatus(ctx context.Context) error {
	if c.store.IsSet(facts.AvailableFlag(interfaces.RemoteManilaPlugin)) {
		return nil
	}
	running, err := c.deps.Services.IsRunning(ctx, "manila-share")
	if err != nil {
		return errors.Trace(err)
	}
	if running {
		return nil
	}
	logger.Infof("manila-share is not running, starting it")
	return errors.Trace(c.deps.Services.Start(ctx, "manila-share"))
}

// ResumeServices starts the manila services.
func (c *Charm) ResumeServices(ctx context.Context) error {
	for _, svc := range c.Services() {
		if err := c.deps.Services.Start(ctx, svc); err != nil {
			return errors.Trace(err)
		}
	}
	c.store.Set(ServicesFlag, nil)
	return nil
}

// PauseServices stops the manila services.
func (c *Charm) PauseServices(ctx context.Context) error {
	for _, svc := range c.Services() {
		if err := c.deps.Services.Stop(ctx, svc); err != nil {
			return errors.Trace(err)
		}
	}
	c.store.Clear(ServicesFlag)
	return nil
}
