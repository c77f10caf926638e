// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package unitstate persists the fact store between ticks in a SQLite
// database.
package unitstate

import (
	"context"
	"database/sql"
	"sort"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v2"

	"github.com/openstack-charmers/charm-manila/core/facts"
	"github.com/openstack-charmers/charm-manila/core/relation"
	"github.com/openstack-charmers/charm-manila/core/status"
)

var logger = loggo.GetLogger("manila.unitstate")

const schema = `
CREATE TABLE IF NOT EXISTS fact (
    name    TEXT NOT NULL PRIMARY KEY,
    payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relation_unit (
    relation    TEXT NOT NULL,
    relation_id TEXT NOT NULL,
    unit        TEXT NOT NULL,
    settings    TEXT NOT NULL,
    PRIMARY KEY (relation_id, unit)
);

CREATE TABLE IF NOT EXISTS relation_local (
    relation    TEXT NOT NULL,
    relation_id TEXT NOT NULL PRIMARY KEY,
    settings    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS charm_config (
    id     INT NOT NULL PRIMARY KEY CHECK (id = 0),
    config TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS unit_status (
    id      INT NOT NULL PRIMARY KEY CHECK (id = 0),
    status  TEXT NOT NULL,
    message TEXT NOT NULL
);`

// State loads and saves the fact store.
type State struct {
	sqldb *sql.DB
	db    *sqlair.DB
}

// Open opens, creating if needed, the state database at path.
func Open(ctx context.Context, path string) (*State, error) {
	sqldb, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Annotatef(err, "opening state database %q", path)
	}
	if _, err := sqldb.ExecContext(ctx, schema); err != nil {
		_ = sqldb.Close()
		return nil, errors.Annotatef(err, "creating state schema in %q", path)
	}
	return &State{
		sqldb: sqldb,
		db:    sqlair.NewDB(sqldb),
	}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return errors.Trace(s.sqldb.Close())
}

var (
	selectFacts         = sqlair.MustPrepare(`SELECT &fact.* FROM fact`, fact{})
	selectRelationUnits = sqlair.MustPrepare(`SELECT &relationUnit.* FROM relation_unit`, relationUnit{})
	selectRelationLocal = sqlair.MustPrepare(`SELECT &relationLocal.* FROM relation_local`, relationLocal{})
	selectConfig        = sqlair.MustPrepare(`SELECT &charmConfig.* FROM charm_config`, charmConfig{})
	selectStatus        = sqlair.MustPrepare(`SELECT &unitStatus.* FROM unit_status`, unitStatus{})

	deleteFacts         = sqlair.MustPrepare(`DELETE FROM fact`)
	deleteRelationUnits = sqlair.MustPrepare(`DELETE FROM relation_unit`)
	deleteRelationLocal = sqlair.MustPrepare(`DELETE FROM relation_local`)
	deleteConfig        = sqlair.MustPrepare(`DELETE FROM charm_config`)
	deleteStatus        = sqlair.MustPrepare(`DELETE FROM unit_status`)

	insertFact          = sqlair.MustPrepare(`INSERT INTO fact (name, payload) VALUES ($fact.*)`, fact{})
	insertRelationUnit  = sqlair.MustPrepare(`INSERT INTO relation_unit (relation, relation_id, unit, settings) VALUES ($relationUnit.*)`, relationUnit{})
	insertRelationLocal = sqlair.MustPrepare(`INSERT INTO relation_local (relation, relation_id, settings) VALUES ($relationLocal.*)`, relationLocal{})
	insertConfig        = sqlair.MustPrepare(`INSERT INTO charm_config (id, config) VALUES ($charmConfig.*)`, charmConfig{})
	insertStatus        = sqlair.MustPrepare(`INSERT INTO unit_status (id, status, message) VALUES ($unitStatus.*)`, unitStatus{})
)

// getAll runs stmt and fills out, treating no rows as an empty result.
func getAll(ctx context.Context, tx *sqlair.TX, stmt *sqlair.Statement, out any) error {
	err := tx.Query(ctx, stmt).GetAll(out)
	if errors.Is(err, sqlair.ErrNoRows) {
		return nil
	}
	return errors.Trace(err)
}

// Load returns the persisted fact store. An empty database yields an
// empty store.
func (s *State) Load(ctx context.Context) (*facts.Store, error) {
	var (
		factRows   []fact
		unitRows   []relationUnit
		localRows  []relationLocal
		configRows []charmConfig
		statusRows []unitStatus
	)
	tx, err := s.db.Begin(ctx, nil)
	if err != nil {
		return nil, errors.Annotate(err, "starting load transaction")
	}
	for _, q := range []struct {
		stmt *sqlair.Statement
		out  any
	}{
		{selectFacts, &factRows},
		{selectRelationUnits, &unitRows},
		{selectRelationLocal, &localRows},
		{selectConfig, &configRows},
		{selectStatus, &statusRows},
	} {
		if err := getAll(ctx, tx, q.stmt, q.out); err != nil {
			_ = tx.Rollback()
			return nil, errors.Annotate(err, "loading unit state")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Trace(err)
	}

	store := facts.NewStore()
	for _, f := range factRows {
		var payload facts.Payload
		if err := unmarshal(f.Payload, &payload); err != nil {
			return nil, errors.Annotatef(err, "decoding payload of %q", f.Name)
		}
		store.Set(f.Name, payload)
	}
	for _, u := range unitRows {
		var settings relation.Settings
		if err := unmarshal(u.Settings, &settings); err != nil {
			return nil, errors.Annotatef(err, "decoding settings of %s on %q", u.Unit, u.RelationID)
		}
		store.SetRelationUnit(u.Relation, u.RelationID, u.Unit, settings)
	}
	for _, l := range localRows {
		var settings relation.Settings
		if err := unmarshal(l.Settings, &settings); err != nil {
			return nil, errors.Annotatef(err, "decoding local settings on %q", l.RelationID)
		}
		store.SetLocalSettings(l.Relation, l.RelationID, settings)
	}
	for _, cfg := range configRows {
		values := make(map[string]interface{})
		if err := unmarshal(cfg.Config, &values); err != nil {
			return nil, errors.Annotate(err, "decoding charm config")
		}
		store.SetConfig(values)
	}
	for _, st := range statusRows {
		store.SetStatus(status.StatusInfo{Status: status.Status(st.Status), Message: st.Message})
	}
	logger.Tracef("loaded %d facts", len(factRows))
	return store, nil
}

// Save replaces the persisted state with the contents of store. Transient
// facts are not saved.
func (s *State) Save(ctx context.Context, store *facts.Store) error {
	var factRows []fact
	for _, name := range store.Flags() {
		if store.IsTransient(name) {
			continue
		}
		payload, _ := store.Payload(name)
		encoded, err := marshal(payload)
		if err != nil {
			return errors.Annotatef(err, "encoding payload of %q", name)
		}
		factRows = append(factRows, fact{Name: name, Payload: encoded})
	}
	var (
		unitRows  []relationUnit
		localRows []relationLocal
	)
	for _, rel := range store.Relations() {
		for _, id := range store.RelationIDs(rel) {
			units := store.RelationUnitsOf(rel, id)
			for _, unit := range sortedUnits(units) {
				encoded, err := marshal(units[unit])
				if err != nil {
					return errors.Annotatef(err, "encoding settings of %s on %q", unit, id)
				}
				unitRows = append(unitRows, relationUnit{Relation: rel, RelationID: id, Unit: unit, Settings: encoded})
			}
			if local := store.LocalSettingsOf(rel, id); len(local) > 0 {
				encoded, err := marshal(local)
				if err != nil {
					return errors.Annotatef(err, "encoding local settings on %q", id)
				}
				localRows = append(localRows, relationLocal{Relation: rel, RelationID: id, Settings: encoded})
			}
		}
	}

	tx, err := s.db.Begin(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "starting save transaction")
	}
	if err := s.save(ctx, tx, store, factRows, unitRows, localRows); err != nil {
		_ = tx.Rollback()
		return errors.Annotate(err, "saving unit state")
	}
	return errors.Trace(tx.Commit())
}

func (s *State) save(
	ctx context.Context, tx *sqlair.TX, store *facts.Store,
	factRows []fact, unitRows []relationUnit, localRows []relationLocal,
) error {
	for _, stmt := range []*sqlair.Statement{
		deleteFacts, deleteRelationUnits, deleteRelationLocal, deleteConfig, deleteStatus,
	} {
		if err := tx.Query(ctx, stmt).Run(); err != nil {
			return errors.Trace(err)
		}
	}
	for _, f := range factRows {
		if err := tx.Query(ctx, insertFact, f).Run(); err != nil {
			return errors.Annotatef(err, "inserting fact %q", f.Name)
		}
	}
	for _, u := range unitRows {
		if err := tx.Query(ctx, insertRelationUnit, u).Run(); err != nil {
			return errors.Annotatef(err, "inserting settings of %s on %q", u.Unit, u.RelationID)
		}
	}
	for _, l := range localRows {
		if err := tx.Query(ctx, insertRelationLocal, l).Run(); err != nil {
			return errors.Annotatef(err, "inserting local settings on %q", l.RelationID)
		}
	}
	if store.HasConfig() {
		encoded, err := marshal(store.Config())
		if err != nil {
			return errors.Annotate(err, "encoding charm config")
		}
		if err := tx.Query(ctx, insertConfig, charmConfig{Config: encoded}).Run(); err != nil {
			return errors.Annotate(err, "inserting charm config")
		}
	}
	if st := store.Status(); st.Status != status.Unset {
		row := unitStatus{Status: st.Status.String(), Message: st.Message}
		if err := tx.Query(ctx, insertStatus, row).Run(); err != nil {
			return errors.Annotate(err, "inserting unit status")
		}
	}
	return nil
}

func sortedUnits(units map[string]relation.Settings) []string {
	names := make([]string, 0, len(units))
	for unit := range units {
		names = append(names, unit)
	}
	sort.Strings(names)
	return names
}

func marshal(v interface{}) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(out), nil
}

func unmarshal(s string, v interface{}) error {
	return errors.Trace(yaml.Unmarshal([]byte(s), v))
}
