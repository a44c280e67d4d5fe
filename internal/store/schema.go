package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const schemaVersion = "1"

const filesTableSQL = `
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	mtime      INTEGER NOT NULL,
	size       INTEGER NOT NULL,
	hash       TEXT NOT NULL,
	file_ext   TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'pending'
)`

const chunksTableSQL = `
CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	file_path     TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
	ordinal       INTEGER NOT NULL,
	start_offset  INTEGER NOT NULL,
	end_offset    INTEGER NOT NULL,
	kind          TEXT NOT NULL,
	symbol        TEXT NOT NULL DEFAULT '',
	heading_path  TEXT NOT NULL DEFAULT '',
	page          INTEGER NOT NULL DEFAULT 0,
	text          TEXT NOT NULL,
	embedding     BLOB,
	model_name    TEXT NOT NULL DEFAULT '',
	model_dim     INTEGER NOT NULL DEFAULT 0,
	stale         INTEGER NOT NULL DEFAULT 0
)`

const chunksIndexSQL = `CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path)`

// chunks_fts mirrors chunks.text, kept synchronized by triggers within the
// same transaction as any chunk write, per §3's "Lexical entry" record.
const chunksFTSTableSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	id UNINDEXED,
	text,
	tokenize = "unicode61"
)`

const cacheMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS cache_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

func createFTSTriggers(db *sql.DB) error {
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(id, text) VALUES (new.id, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE OF text ON chunks BEGIN
			DELETE FROM chunks_fts WHERE id = old.id;
			INSERT INTO chunks_fts(id, text) VALUES (new.id, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
			DELETE FROM chunks_fts WHERE id = old.id;
		END`,
	}
	for _, t := range triggers {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("create fts trigger: %w", err)
		}
	}
	return nil
}

// CreateSchema creates every table this store needs if absent, then records
// the schema version in cache_metadata. FTS5 and vec0 are virtual tables and
// cannot be created inside the same transaction as ordinary DDL on some
// SQLite builds, so they run as separate statements outside the tx, matching
// the teacher's own sequencing.
func CreateSchema(db *sql.DB, dimensions int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}

	for _, stmt := range []string{filesTableSQL, chunksTableSQL, chunksIndexSQL, cacheMetadataTableSQL} {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("create table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}

	if _, err := db.Exec(chunksFTSTableSQL); err != nil {
		return fmt.Errorf("create chunks_fts: %w", err)
	}
	if err := CreateVectorIndex(db, dimensions); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	if err := createFTSTriggers(db); err != nil {
		return err
	}

	if err := UpdateSchemaVersion(db, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// GetSchemaVersion returns "0" if cache_metadata does not exist yet (a brand
// new database file), or the stored schema_version otherwise.
func GetSchemaVersion(db *sql.DB) (string, error) {
	var version string
	err := db.QueryRow(`SELECT value FROM cache_metadata WHERE key = 'schema_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return "0", nil
		}
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func UpdateSchemaVersion(db *sql.DB, version string) error {
	_, err := db.Exec(
		`INSERT INTO cache_metadata(key, value) VALUES('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, version)
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

