// Package store is the Local Instance Store: a typed key/value layer over a
// single-user embedded database, tracking which provider instance (if any)
// the controller currently considers active. The database/sql usage here
// follows the teacher's own pattern in control-plane/internal/vm/manager.go
// (context-scoped queries, wrapped errors); only the driver differs —
// modernc.org/sqlite, a pure-Go embedded store appropriate for a
// single-writer local tool, in place of the teacher's server-side
// lib/pq+Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LocalInstance is the controller's view of a provisioned instance,
// distinct from provider.Instance (the provider's view). Grounded in
// original_source's state.go LocalInstance.
type LocalInstance struct {
	ID        string
	Name      string
	IP        string
	Provider  string
	Region    string
	Size      string
	CreatedAt time.Time
}

// Store is the sqlite-backed Local Instance Store. Exactly one instance may
// be marked active at a time; concurrent access from multiple controller
// invocations is serialized by sqlite's own transaction discipline, which
// is acceptable because there is at most one user per workstation.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	ip         TEXT NOT NULL,
	provider   TEXT NOT NULL,
	region     TEXT NOT NULL,
	size       TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active (
	singleton   INTEGER PRIMARY KEY CHECK (singleton = 0),
	instance_id TEXT NOT NULL REFERENCES instances(id)
);
`

// Open creates dbPath's parent directory if needed, opens (or creates) the
// sqlite database there, and applies the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveInstance inserts or replaces instance and marks it the sole active
// instance, matching the original implementation's save_instance behavior.
func (s *Store) SaveInstance(ctx context.Context, instance *LocalInstance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO instances (id, name, ip, provider, region, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			ip = excluded.ip,
			provider = excluded.provider,
			region = excluded.region,
			size = excluded.size,
			created_at = excluded.created_at
	`, instance.ID, instance.Name, instance.IP, instance.Provider, instance.Region, instance.Size,
		instance.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save instance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO active (singleton, instance_id) VALUES (0, ?)
		ON CONFLICT(singleton) DO UPDATE SET instance_id = excluded.instance_id
	`, instance.ID)
	if err != nil {
		return fmt.Errorf("mark instance active: %w", err)
	}

	return tx.Commit()
}

// GetActiveInstance returns the currently active instance, or nil if none
// has been saved (or the active one was removed).
func (s *Store) GetActiveInstance(ctx context.Context) (*LocalInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT i.id, i.name, i.ip, i.provider, i.region, i.size, i.created_at
		FROM active a JOIN instances i ON i.id = a.instance_id
		WHERE a.singleton = 0
	`)
	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active instance: %w", err)
	}
	return instance, nil
}

// RemoveInstance deletes id, clearing the active pointer if id was active.
func (s *Store) RemoveInstance(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM active WHERE singleton = 0 AND instance_id = ?`, id); err != nil {
		return fmt.Errorf("clear active pointer: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove instance: %w", err)
	}

	return tx.Commit()
}

// ListInstances returns every saved instance, most recently created first.
func (s *Store) ListInstances(ctx context.Context) ([]*LocalInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, ip, provider, region, size, created_at
		FROM instances ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []*LocalInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out = append(out, instance)
	}
	return out, rows.Err()
}

// UpdateInstanceIP updates id's recorded IP address.
func (s *Store) UpdateInstanceIP(ctx context.Context, id, ip string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE instances SET ip = ? WHERE id = ?`, ip, id)
	if err != nil {
		return fmt.Errorf("update instance ip: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instance ip: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update instance ip: instance %q not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*LocalInstance, error) {
	var instance LocalInstance
	var createdAt string
	if err := row.Scan(&instance.ID, &instance.Name, &instance.IP, &instance.Provider,
		&instance.Region, &instance.Size, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	instance.CreatedAt = parsed
	return &instance, nil
}
