// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/oops"
)

const schema = `
CREATE TABLE IF NOT EXISTS plugins (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	author TEXT,
	description TEXT,
	install_date TEXT,
	enabled INTEGER DEFAULT 1,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS plugin_configs (
	plugin_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT,
	PRIMARY KEY (plugin_id, key),
	FOREIGN KEY (plugin_id) REFERENCES plugins(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_preferences (
	key TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	value TEXT,
	expiry INTEGER
);
`

// SQLite is a Store backed by an embedded SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (and if needed creates) the database at path and
// applies the schema. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLite, error) {
	errb := oops.Code("STORE_OPEN_FAILED").In("store").With("path", path)

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, errb.Wrap(err)
	}
	// WAL gives concurrent readers a consistent view while the manager
	// writes. In-memory databases reject it, which is fine.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil && path != ":memory:" {
		db.Close()
		return nil, errb.Hint("is the data directory writable?").Wrap(err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errb.Wrap(err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SavePlugin(ctx context.Context, rec PluginRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").
			With("plugin_id", rec.ID).Wrap(err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plugins
			(id, name, version, author, description, install_date, enabled, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Version, rec.Author, rec.Description,
		rec.InstallDate.UTC().Format(time.RFC3339), boolToInt(rec.Enabled), string(meta))
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").
			With("plugin_id", rec.ID).Wrap(err)
	}
	return nil
}

func (s *SQLite) GetPlugin(ctx context.Context, id string) (PluginRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, author, description, install_date, enabled, metadata
		FROM plugins WHERE id = ?`, id)
	return scanPlugin(row)
}

func (s *SQLite) ListPlugins(ctx context.Context) ([]PluginRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, author, description, install_date, enabled, metadata
		FROM plugins ORDER BY id`)
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").In("store").Wrap(err)
	}
	defer rows.Close()

	var recs []PluginRecord
	for rows.Next() {
		rec, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_READ_FAILED").In("store").Wrap(err)
	}
	return recs, nil
}

func (s *SQLite) DeletePlugin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").
			With("plugin_id", id).Wrap(err)
	}
	return nil
}

func (s *SQLite) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").
			With("plugin_id", id).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").Wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) SetConfig(ctx context.Context, pluginID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO plugin_configs (plugin_id, key, value)
		VALUES (?, ?, ?)`, pluginID, key, value)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").
			With("plugin_id", pluginID).With("key", key).Wrap(err)
	}
	return nil
}

func (s *SQLite) GetConfig(ctx context.Context, pluginID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM plugin_configs WHERE plugin_id = ? AND key = ?`,
		pluginID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oops.Code("STORE_READ_FAILED").In("store").
			With("plugin_id", pluginID).With("key", key).Wrap(err)
	}
	return value, nil
}

func (s *SQLite) AllConfig(ctx context.Context, pluginID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM plugin_configs WHERE plugin_id = ?`, pluginID)
	if err != nil {
		return nil, oops.Code("STORE_READ_FAILED").In("store").
			With("plugin_id", pluginID).Wrap(err)
	}
	defer rows.Close()

	cfg := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, oops.Code("STORE_READ_FAILED").In("store").Wrap(err)
		}
		cfg[k] = v
	}
	return cfg, rows.Err()
}

func (s *SQLite) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_preferences (key, value)
		VALUES (?, ?)`, key, value)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").With("key", key).Wrap(err)
	}
	return nil
}

func (s *SQLite) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oops.Code("STORE_READ_FAILED").In("store").With("key", key).Wrap(err)
	}
	return value, nil
}

func (s *SQLite) CachePut(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiry int64
	if ttl != 0 {
		expiry = time.Now().Add(ttl).Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache (key, value, expiry)
		VALUES (?, ?, ?)`, key, value, expiry)
	if err != nil {
		return oops.Code("STORE_WRITE_FAILED").In("store").With("key", key).Wrap(err)
	}
	return nil
}

func (s *SQLite) CacheGet(ctx context.Context, key string) (string, error) {
	var value string
	var expiry int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expiry FROM cache WHERE key = ?`, key).Scan(&value, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oops.Code("STORE_READ_FAILED").In("store").With("key", key).Wrap(err)
	}
	if expiry > 0 && expiry <= time.Now().Unix() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key)
		return "", ErrNotFound
	}
	return value, nil
}

func (s *SQLite) CachePrune(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expiry > 0 AND expiry <= ?`, time.Now().Unix())
	if err != nil {
		return 0, oops.Code("STORE_WRITE_FAILED").In("store").Wrap(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row scanner) (PluginRecord, error) {
	var rec PluginRecord
	var author, description, installDate, meta sql.NullString
	var enabled int

	err := row.Scan(&rec.ID, &rec.Name, &rec.Version,
		&author, &description, &installDate, &enabled, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return PluginRecord{}, ErrNotFound
	}
	if err != nil {
		return PluginRecord{}, oops.Code("STORE_READ_FAILED").In("store").Wrap(err)
	}

	rec.Author = author.String
	rec.Description = description.String
	rec.Enabled = enabled != 0
	if installDate.Valid && installDate.String != "" {
		if t, err := time.Parse(time.RFC3339, installDate.String); err == nil {
			rec.InstallDate = t
		}
	}
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return PluginRecord{}, oops.Code("STORE_READ_FAILED").In("store").
				With("plugin_id", rec.ID).Wrap(err)
		}
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
