package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dhashfinder/fingerprint"
	"dhashfinder/index"
	"dhashfinder/logging"
	"dhashfinder/types"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaVersion is bumped whenever the on-disk layout changes
const SchemaVersion = 1

const createSchemaSQL = `
	CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE fingerprints (
		hash TEXT NOT NULL,
		position INTEGER NOT NULL,
		image_id TEXT NOT NULL,
		PRIMARY KEY (hash, position)
	);`

// Persist writes idx to a new SQLite store at location. Any store already
// there is replaced, never merged. The store is first written next to the
// target and renamed into place once the transaction has committed.
func Persist(ctx context.Context, idx *index.Index, location string) error {
	tmpPath := location + ".tmp"
	if err := removeStore(tmpPath); err != nil {
		return &types.IndexIOError{Op: "prepare", Path: tmpPath, Err: err}
	}

	if err := writeStore(ctx, idx, tmpPath); err != nil {
		removeStore(tmpPath)
		return &types.IndexIOError{Op: "write", Path: location, Err: err}
	}

	if err := os.Rename(tmpPath, location); err != nil {
		removeStore(tmpPath)
		return &types.IndexIOError{Op: "rename", Path: location, Err: err}
	}
	// A journal left by the replaced store must not be replayed into the new one
	if err := os.Remove(location + "-journal"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &types.IndexIOError{Op: "replace", Path: location, Err: err}
	}

	logging.DebugLog("Persisted %d fingerprints (%d images) to %s", idx.Count(), idx.ImageCount(), location)
	return nil
}

// InitDatabase creates an empty store at dbPath, discarding any existing file
func InitDatabase(dbPath string) (*sql.DB, error) {
	if err := removeStore(dbPath); err != nil {
		return nil, err
	}

	dsn, err := connString(dbPath, "rwc")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema: %w", err)
	}
	return db, nil
}

func writeStore(ctx context.Context, idx *index.Index, dbPath string) error {
	db, err := InitDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"hash_size":      strconv.Itoa(idx.HashSize()),
		"resampler":      idx.Resampler(),
		"created_at":     time.Now().Format(time.RFC3339),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx, "INSERT INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("cannot write %s: %w", key, err)
		}
	}

	// Prepare statement to avoid SQL injection
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO fingerprints (hash, position, image_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("cannot prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, fp := range idx.Keys() {
		for pos, id := range idx.Lookup(fp) {
			if _, err := stmt.ExecContext(ctx, fp.String(), pos, string(id)); err != nil {
				return fmt.Errorf("cannot insert %s for %s: %w", fp, id, err)
			}
		}
	}

	return tx.Commit()
}

// OpenDatabase opens an existing store read-only
func OpenDatabase(dbPath string) (*sql.DB, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrStoreNotFound, dbPath)
		}
		return nil, fmt.Errorf("cannot access %s: %w", dbPath, err)
	}
	if info.IsDir() {
		return nil, types.StoreCorruptf("%s is a directory", dbPath)
	}

	dsn, err := connString(dbPath, "ro")
	if err != nil {
		return nil, err
	}
	return sql.Open("sqlite3", dsn)
}

// connString builds a file: URI for dbPath. The path is escaped so that
// characters such as '?', '#' and '%' stay part of the file name.
func connString(dbPath, mode string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: url.Values{"mode": {mode}}.Encode(),
	}
	return u.String(), nil
}

// Open loads the store at location into memory for querying. The database
// handle is closed before Open returns.
func Open(ctx context.Context, location string) (*index.Index, error) {
	db, err := OpenDatabase(location)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	idx, err := index.New(meta.HashSize, meta.Resampler)
	if err != nil {
		return nil, types.StoreCorruptf("%v", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT hash, image_id FROM fingerprints ORDER BY hash, position")
	if err != nil {
		return nil, types.StoreCorruptf("cannot read fingerprints: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, imageID string
		if err := rows.Scan(&hash, &imageID); err != nil {
			return nil, types.StoreCorruptf("cannot scan row: %v", err)
		}
		fp, err := fingerprint.Parse(hash, meta.HashSize)
		if err != nil {
			return nil, types.StoreCorruptf("%v", err)
		}
		if imageID == "" {
			return nil, types.StoreCorruptf("empty image id under %s", hash)
		}
		if err := idx.Add(fp, types.ImageID(imageID)); err != nil {
			return nil, types.StoreCorruptf("%v", err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.StoreCorruptf("cannot read fingerprints: %v", err)
	}

	logging.DebugLog("Loaded %d fingerprints (%d images) from %s", idx.Count(), idx.ImageCount(), location)
	return idx, nil
}

// Meta holds the store metadata
type Meta struct {
	SchemaVersion int
	HashSize      int
	Resampler     string
	CreatedAt     string
}

func readMeta(ctx context.Context, db *sql.DB) (Meta, error) {
	var meta Meta

	rows, err := db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return meta, types.StoreCorruptf("cannot read metadata: %v", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, types.StoreCorruptf("cannot scan metadata: %v", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return meta, types.StoreCorruptf("cannot read metadata: %v", err)
	}

	if meta.SchemaVersion, err = strconv.Atoi(values["schema_version"]); err != nil || meta.SchemaVersion != SchemaVersion {
		return meta, types.StoreCorruptf("unsupported schema version %q", values["schema_version"])
	}
	if meta.HashSize, err = strconv.Atoi(values["hash_size"]); err != nil || meta.HashSize < 1 {
		return meta, types.StoreCorruptf("invalid hash size %q", values["hash_size"])
	}
	meta.Resampler = values["resampler"]
	meta.CreatedAt = values["created_at"]
	return meta, nil
}

// ScanStats contains statistics about a persisted store
type ScanStats struct {
	Meta
	UniqueHashes int
	TotalImages  int
}

// GetScanStats retrieves statistics about the store at location
func GetScanStats(ctx context.Context, location string) (*ScanStats, error) {
	db, err := OpenDatabase(location)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var stats ScanStats
	if stats.Meta, err = readMeta(ctx, db); err != nil {
		return nil, err
	}

	err = db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT hash), COUNT(*) FROM fingerprints").
		Scan(&stats.UniqueHashes, &stats.TotalImages)
	if err != nil {
		return nil, types.StoreCorruptf("failed to count fingerprints: %v", err)
	}
	return &stats, nil
}

// removeStore deletes a store file and the journal SQLite may leave beside it
func removeStore(path string) error {
	for _, p := range []string{path, path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
