// Package sqlitestore implements a SQLite-backed leaf storage: one
// database file per instance, metatiles stored as BLOB rows keyed by
// (style, z, x, y). It is grounded on the teacher's
// internal/mbtiles.Writer/Reader — same pragmas, same transactional
// upsert under a mutex, same open-in-immutable-mode-for-reads idea
// adapted here to a single read/write handle since metatiles (unlike
// MBTiles exports) are mutated in place.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/metatile"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "sqlite"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		path := cfg.GetString("db_path", "")
		if path == "" {
			return nil, fmt.Errorf("sqlitestore: config key %q is required", "db_path")
		}
		return New(path)
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS metatiles (
	style TEXT NOT NULL,
	z INTEGER NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	format_mask INTEGER NOT NULL,
	data BLOB NOT NULL,
	mtime INTEGER NOT NULL,
	PRIMARY KEY (style, z, x, y)
);
`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = 50000",
	"PRAGMA temp_store = MEMORY",
}

// Store is the SQLite-backed leaf storage. Construct with New or
// NewFromDB.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (creating if absent) a SQLite database at path and ensures
// its schema exists.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB, creating the schema if
// absent. Used by tests that want an in-memory database.
func NewFromDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	x, y := tile.MetaOrigin()
	var data []byte
	var mtime int64
	err := s.db.QueryRowContext(ctx,
		`SELECT data, mtime FROM metatiles WHERE style=? AND z=? AND x=? AND y=?`,
		tile.Style, tile.Z, x, y,
	).Scan(&data, &mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.NullHandle, nil
	}
	if err != nil {
		slog.Error("sqlitestore: query failed", "err", err)
		return storage.NullHandle, nil
	}

	container, err := metatile.Decode(data)
	if err != nil {
		slog.Error("sqlitestore: corrupt metatile", "err", err)
		return storage.NullHandle, nil
	}
	_, _, idx := tile.Offset()
	payload, ok := container.Get(tile.Format, idx)
	if !ok {
		return storage.NullHandle, nil
	}

	return storage.NewHandle(time.Unix(mtime, 0), payload, mtime == 0), nil
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	x, y := tile.MetaOrigin()
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM metatiles WHERE style=? AND z=? AND x=? AND y=?`,
		tile.Style, tile.Z, x, y,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		slog.Error("sqlitestore: query failed", "err", err)
		return nil, false, nil
	}
	return data, true, nil
}

// PutMeta upserts the metatile row inside a transaction, mirroring
// mbtiles.Writer's flush discipline.
func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	if !tile.IsMetaAligned() {
		slog.Error("sqlitestore: attempt to save tile at non-metatile boundary", "tile", tile.String())
		return false, nil
	}

	container, err := metatile.Decode(buf)
	if err != nil {
		slog.Error("sqlitestore: refusing to store malformed metatile", "err", err)
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("sqlitestore: begin tx failed", "err", err)
		return false, nil
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO metatiles (style, z, x, y, format_mask, data, mtime)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (style, z, x, y) DO UPDATE SET
		   format_mask=excluded.format_mask, data=excluded.data, mtime=excluded.mtime`,
		tile.Style, tile.Z, tile.X, tile.Y, uint32(container.Formats()), buf, time.Now().Unix(),
	)
	if err != nil {
		tx.Rollback()
		slog.Error("sqlitestore: upsert failed", "err", err)
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		slog.Error("sqlitestore: commit failed", "err", err)
		return false, nil
	}
	return true, nil
}

// Expire sets mtime = 0 for the covering row, the same epoch
// convention as the disk backend (spec §4.3).
func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	x, y := tile.MetaOrigin()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE metatiles SET mtime=0 WHERE style=? AND z=? AND x=? AND y=?`,
		tile.Style, tile.Z, x, y,
	)
	if err != nil {
		slog.Error("sqlitestore: expire failed", "err", err)
		return false, nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Error("sqlitestore: rows affected failed", "err", err)
		return false, nil
	}
	return n > 0, nil
}
