package keystore

import (
	"database/sql"

	"github.com/teranos/ctxeng/errors"
)

// SQLTier stores values in the kv_store table, scoped by origin so that
// different browser origins never see each other's keys.
type SQLTier struct {
	db     *sql.DB
	origin string
}

// NewSQLTier returns a durable tier backed by db for the given origin.
func NewSQLTier(db *sql.DB, origin string) *SQLTier {
	return &SQLTier{db: db, origin: origin}
}

// Name implements Tier.
func (t *SQLTier) Name() string { return "durable" }

// Set implements Tier.
func (t *SQLTier) Set(key, value string) error {
	if t.db == nil {
		return errors.New("durable tier has no database")
	}
	_, err := t.db.Exec(`
		INSERT INTO kv_store (origin, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(origin, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		t.origin, key, value,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert %s", key)
	}
	return nil
}

// Get implements Tier.
func (t *SQLTier) Get(key string) (string, bool, error) {
	if t.db == nil {
		return "", false, errors.New("durable tier has no database")
	}
	var value string
	err := t.db.QueryRow(
		`SELECT value FROM kv_store WHERE origin = ? AND key = ?`,
		t.origin, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "select %s", key)
	}
	return value, true, nil
}

// Remove implements Tier.
func (t *SQLTier) Remove(key string) error {
	if t.db == nil {
		return errors.New("durable tier has no database")
	}
	if _, err := t.db.Exec(`DELETE FROM kv_store WHERE origin = ? AND key = ?`, t.origin, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}
