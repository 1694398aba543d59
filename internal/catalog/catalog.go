// Public domain.

// Package catalog records written map products in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Entry describes one map file and its hits file.
type Entry struct {
	RunID      string
	Path       string
	HitsPath   string
	Mode       string
	Freq       int
	Resolution int // npix or nside
	Split      string
	Samples    int
	Created    time.Time
}

// Catalog is an open catalog database.
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the catalog at path.  ":memory:" is accepted.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// each connection would get its own database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	return &Catalog{db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error { return c.db.Close() }

// Record adds an entry.  A zero Created is set to the current time.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO maps (run_id, path, hits_path, mode, freq, resolution,
			split, nsamples, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Path, e.HitsPath, e.Mode, e.Freq, e.Resolution,
		e.Split, e.Samples, e.Created.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record map %s: %w", e.Path, err)
	}
	return nil
}

// Filter selects entries.  Zero fields match anything.
type Filter struct {
	RunID string
	Freq  int
	Mode  string
}

// List returns matching entries, oldest first.
func (c *Catalog) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Freq != 0 {
		where = append(where, "freq = ?")
		args = append(args, f.Freq)
	}
	if f.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, f.Mode)
	}
	q := `SELECT run_id, path, hits_path, mode, freq, resolution, split,
		nsamples, created FROM maps`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created, id"
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	defer rows.Close()
	var list []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.RunID, &e.Path, &e.HitsPath, &e.Mode, &e.Freq,
			&e.Resolution, &e.Split, &e.Samples, &created); err != nil {
			return nil, err
		}
		e.Created = time.Unix(0, created)
		list = append(list, e)
	}
	return list, rows.Err()
}
