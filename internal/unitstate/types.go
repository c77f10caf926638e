// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package unitstate

// fact is a persisted flag. Payload is a YAML mapping, empty when the
// flag carries no payload.
type fact struct {
	Name    string `db:"name"`
	Payload string `db:"payload"`
}

// relationUnit holds the YAML settings a remote unit published.
type relationUnit struct {
	Relation   string `db:"relation"`
	RelationID string `db:"relation_id"`
	Unit       string `db:"unit"`
	Settings   string `db:"settings"`
}

// relationLocal holds the YAML settings this unit owns on a relation id.
type relationLocal struct {
	Relation   string `db:"relation"`
	RelationID string `db:"relation_id"`
	Settings   string `db:"settings"`
}

// charmConfig holds the YAML charm option values.
type charmConfig struct {
	ID     int    `db:"id"`
	Config string `db:"config"`
}

// unitStatus is the last computed workload status.
type unitStatus struct {
	ID      int    `db:"id"`
	Status  string `db:"status"`
	Message string `db:"message"`
}
