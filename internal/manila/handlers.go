// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/internal/interfaces"
	"github.com/openstack-charmers/charm-manila/internal/reactive"
)

// Handler identifiers.
const (
	HandlerUpdateRelationFlags = "update-relation-flags"
	HandlerInstall             = "install"
	HandlerUpgradeCharm        = "upgrade-charm"
	HandlerAMQPRequest         = "amqp-request"
	HandlerSharedDBRequest     = "shared-db-request"
	HandlerRegisterEndpoints   = "register-endpoints"
	HandlerShareAuth           = "share-auth-to-plugins"
	HandlerRender              = "render"
	HandlerDBSync              = "db-sync"
	HandlerConfigRendered      = "config-rendered"
	HandlerResumeServices      = "resume-services"
	HandlerPauseServices       = "pause-services"
	HandlerClusterConnected    = "cluster-connected"
	HandlerUpdateStatus        = "update-status"
)

var (
	sharedDBConnected = facts.ConnectedFlag(interfaces.SharedDB)
	sharedDBAvailable = facts.AvailableFlag(interfaces.SharedDB)
	amqpConnected     = facts.ConnectedFlag(interfaces.AMQP)
	amqpAvailable     = facts.AvailableFlag(interfaces.AMQP)
	identityConnected = facts.ConnectedFlag(interfaces.IdentityService)
	identityAvailable = facts.AvailableFlag(interfaces.IdentityService)
)

// renderTriggers are the changes that make the configuration stale.
var renderTriggers = []string{
	facts.ConfigChangedFlag,
	facts.ChangedFlag(interfaces.SharedDB),
	facts.ChangedFlag(interfaces.AMQP),
	facts.ChangedFlag(interfaces.IdentityService),
	facts.ChangedFlag(interfaces.ManilaPlugin),
	facts.ChangedFlag(interfaces.RemoteManilaPlugin),
}

// Rules returns the manila rule table in evaluation order.
func Rules() []reactive.Rule {
	available := []string{sharedDBAvailable, identityAvailable, amqpAvailable}
	return []reactive.Rule{{
		Name:    "update-relation-flags",
		Handler: HandlerUpdateRelationFlags,
	}, {
		Name:    "install",
		NoneOf:  []string{InstalledFlag},
		Handler: HandlerInstall,
	}, {
		Name:    "upgrade-charm",
		AllOf:   []string{facts.HookFlag(string(facts.UpgradeCharm))},
		Handler: HandlerUpgradeCharm,
	}, {
		Name:    "amqp-request",
		AllOf:   []string{amqpConnected},
		Handler: HandlerAMQPRequest,
	}, {
		Name:    "shared-db-request",
		AllOf:   []string{sharedDBConnected},
		Handler: HandlerSharedDBRequest,
	}, {
		Name:    "register-endpoints",
		AllOf:   []string{identityConnected},
		NoneOf:  []string{identityAvailable},
		Handler: HandlerRegisterEndpoints,
	}, {
		Name:  "share-auth-to-plugins",
		AllOf: []string{identityConnected},
		AnyOf: [][]string{{
			facts.ConnectedFlag(interfaces.ManilaPlugin),
			facts.ConnectedFlag(interfaces.RemoteManilaPlugin),
		}},
		Handler: HandlerShareAuth,
	}, {
		Name:    "render",
		AllOf:   available,
		NoneOf:  []string{ConfigRenderedFlag},
		Handler: HandlerRender,
	}, {
		Name:    "config-changed",
		AllOf:   available,
		AnyOf:   [][]string{renderTriggers},
		Handler: HandlerRender,
	}, {
		Name:    "db-sync",
		AllOf:   []string{sharedDBAvailable, ConfigRenderedFlag},
		NoneOf:  []string{DBSyncedFlag},
		Handler: HandlerDBSync,
	}, {
		Name:    "config-rendered",
		AllOf:   []string{DBSyncedFlag, ConfigRenderedFlag},
		NoneOf:  []string{ReadyFlag},
		Handler: HandlerConfigRendered,
	}, {
		Name:    "resume-services",
		AllOf:   []string{ReadyFlag},
		NoneOf:  []string{ServicesFlag, facts.PausedFlag},
		Handler: HandlerResumeServices,
	}, {
		Name:    "pause-services",
		AllOf:   []string{facts.PausedFlag, ServicesFlag},
		Handler: HandlerPauseServices,
	}, {
		Name:    "cluster-connected",
		AllOf:   []string{facts.ConnectedFlag(interfaces.HACluster)},
		Handler: HandlerClusterConnected,
	}, {
		Name:    "update-status",
		AllOf:   []string{facts.HookFlag(string(facts.UpdateStatus))},
		NoneOf:  []string{facts.PausedFlag},
		Handler: HandlerUpdateStatus,
	}}
}

// withCharm adapts a charm operation to a reactive handler.
func withCharm(deps Deps, fn func(context.Context, *Charm) error) reactive.HandlerFunc {
	return func(ctx context.Context, store *facts.Store) error {
		return Provide(ctx, deps, store, func(c *Charm) error {
			return fn(ctx, c)
		})
	}
}

// needsConfig skips fn while the charm options are invalid. The problem
// is reported through the workload status instead.
func needsConfig(fn func(context.Context, *Charm) error) func(context.Context, *Charm) error {
	return func(ctx context.Context, c *Charm) error {
		if err := c.ConfigError(); err != nil {
			logger.Debugf("skipping: %v", err)
			return nil
		}
		return fn(ctx, c)
	}
}

// NewRegistry returns a registry holding the manila handlers and rules.
func NewRegistry(deps Deps) (*reactive.Registry, error) {
	handlers := map[string]reactive.HandlerFunc{
		HandlerUpdateRelationFlags: func(_ context.Context, store *facts.Store) error {
			interfaces.UpdateFlags(store, deps.Unit)
			return nil
		},
		HandlerInstall: withCharm(deps, func(ctx context.Context, c *Charm) error {
			return c.Install(ctx)
		}),
		HandlerUpgradeCharm: withCharm(deps, func(ctx context.Context, c *Charm) error {
			return c.UpgradeCharm(ctx)
		}),
		HandlerAMQPRequest: withCharm(deps, needsConfig(func(_ context.Context, c *Charm) error {
			return c.RequestAMQPAccess()
		})),
		HandlerSharedDBRequest: withCharm(deps, needsConfig(func(_ context.Context, c *Charm) error {
			return c.RequestDatabase()
		})),
		HandlerRegisterEndpoints: withCharm(deps, needsConfig(func(_ context.Context, c *Charm) error {
			return c.RegisterEndpoints()
		})),
		HandlerShareAuth: withCharm(deps, func(_ context.Context, c *Charm) error {
			return c.ShareAuthToPlugins()
		}),
		HandlerRender: withCharm(deps, needsConfig(renderConfig)),
		HandlerDBSync: withCharm(deps, func(ctx context.Context, c *Charm) error {
			if err := c.DBSync(ctx); err != nil {
				return errors.Trace(err)
			}
			c.store.Set(DBSyncedFlag, nil)
			return nil
		}),
		HandlerConfigRendered: func(_ context.Context, store *facts.Store) error {
			store.Set(ReadyFlag, nil)
			return nil
		},
		HandlerResumeServices: withCharm(deps, func(ctx context.Context, c *Charm) error {
			return c.ResumeServices(ctx)
		}),
		HandlerPauseServices: withCharm(deps, func(ctx context.Context, c *Charm) error {
			return c.PauseServices(ctx)
		}),
		HandlerClusterConnected: withCharm(deps, needsConfig(func(_ context.Context, c *Charm) error {
			return c.ConfigureHA()
		})),
		HandlerUpdateStatus: withCharm(deps, func(ctx context.Context, c *Charm) error {
			return c.UpdateStatus(ctx)
		}),
	}

	registry := reactive.NewRegistry()
	rules := Rules()
	for _, rule := range rules {
		if _, ok := registry.Handler(rule.Handler); ok {
			continue
		}
		if err := registry.RegisterHandler(rule.Handler, handlers[rule.Handler]); err != nil {
			return nil, errors.Trace(err)
		}
	}
	for _, rule := range rules {
		if err := registry.AddRule(rule); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return registry, nil
}

// renderConfig writes the configuration, consumes the changes that made
// it stale and enables the API site.
func renderConfig(ctx context.Context, c *Charm) error {
	if err := c.RenderWithInterfaces(ctx); err != nil {
		return errors.Trace(err)
	}
	for _, flag := range renderTriggers {
		c.store.Clear(flag)
	}
	return errors.Trace(c.EnableWebserverSite(ctx))
}
