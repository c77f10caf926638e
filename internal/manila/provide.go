// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manila

import (
	"context"

	"github.com/juju/errors"

	"github.com/openstack-charmers/charm-manila/core/facts"
)

// Provide builds the charm for store and passes it to fn. Relation
// updates queued by fn are published when fn returns, whether or not it
// failed. The charm must not be used after Provide returns.
func Provide(ctx context.Context, deps Deps, store *facts.Store, fn func(*Charm) error) (err error) {
	if err := deps.Validate(); err != nil {
		return errors.Trace(err)
	}
	c, err := newCharm(ctx, deps, store)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if ferr := c.flush(ctx); ferr != nil {
			if err == nil {
				err = ferr
			} else {
				logger.Errorf("%v", ferr)
			}
		}
	}()
	return fn(c)
}
