// Package db mirrors fetched reading tables into SQLite so the dashboard can
// run from the last known data when the spreadsheet is unreachable.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/reading"
)

// ErrNoSnapshot is returned when the mirror holds no table yet.
var ErrNoSnapshot = errors.New("no snapshot in mirror")

type DB struct {
	*sql.DB
	path string
}

// Snapshot is one mirrored table. Labels, when set, hold one prediction per
// row in row order.
type Snapshot struct {
	ID        uuid.UUID
	Source    string
	FetchedAt time.Time
	ModelKind string
	Table     *reading.Table
	Labels    []string
}

// SnapshotInfo describes a stored snapshot without its rows.
type SnapshotInfo struct {
	ID        uuid.UUID
	Source    string
	FetchedAt time.Time
	Rows      int
	ModelKind string
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; the mirror is small and this avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SaveSnapshot stores s in a single transaction.
func (db *DB) SaveSnapshot(ctx context.Context, s Snapshot) error {
	if s.Table == nil {
		return errors.New("snapshot has no table")
	}
	if s.Labels != nil && len(s.Labels) != len(s.Table.Rows) {
		return fmt.Errorf("snapshot has %d labels for %d rows", len(s.Labels), len(s.Table.Rows))
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	columns, err := json.Marshal(s.Table.Columns)
	if err != nil {
		return fmt.Errorf("failed to encode columns: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (snapshot_id, source, fetched_unix, columns_json, row_count, model_kind)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.Source, s.FetchedAt.UnixNano(), string(columns), len(s.Table.Rows), nullString(s.ModelKind),
	); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO readings (snapshot_id, row_index, pm25, pm10, co, cells_json, label)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range s.Table.Rows {
		cells, err := json.Marshal(row.Cells)
		if err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		var label sql.NullString
		if s.Labels != nil {
			label = nullString(s.Labels[i])
		}
		if _, err := stmt.ExecContext(ctx, s.ID.String(), i,
			row.Reading.PM25, row.Reading.PM10, row.Reading.CO, string(cells), label); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Logf("db: mirrored %d rows from %s as snapshot %s", len(s.Table.Rows), s.Source, s.ID)
	return nil
}

// LatestSnapshot loads the most recently fetched snapshot.
func (db *DB) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var (
		id, source, columnsJSON string
		fetched                 int64
		kind                    sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT snapshot_id, source, fetched_unix, columns_json, model_kind
		 FROM snapshots ORDER BY fetched_unix DESC, rowid DESC LIMIT 1`,
	).Scan(&id, &source, &fetched, &columnsJSON, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	s := &Snapshot{
		Source:    source,
		FetchedAt: time.Unix(0, fetched).UTC(),
		ModelKind: kind.String,
		Table:     &reading.Table{Rows: []reading.Row{}},
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt snapshot id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(columnsJSON), &s.Table.Columns); err != nil {
		return nil, fmt.Errorf("corrupt columns for snapshot %s: %w", id, err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT row_index, pm25, pm10, co, cells_json, label
		 FROM readings WHERE snapshot_id = ? ORDER BY row_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	labelled := false
	var labels []string
	for rows.Next() {
		var (
			row   reading.Row
			cells string
			label sql.NullString
		)
		if err := rows.Scan(&row.Index, &row.Reading.PM25, &row.Reading.PM10, &row.Reading.CO, &cells, &label); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cells), &row.Cells); err != nil {
			return nil, fmt.Errorf("corrupt cells in row %d: %w", row.Index, err)
		}
		labelled = labelled || label.Valid
		labels = append(labels, label.String)
		s.Table.Rows = append(s.Table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if labelled {
		s.Labels = labels
	}
	return s, nil
}

// Snapshots lists stored snapshots, newest first.
func (db *DB) Snapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT snapshot_id, source, fetched_unix, row_count, model_kind
		 FROM snapshots ORDER BY fetched_unix DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info    SnapshotInfo
			id      string
			fetched int64
			kind    sql.NullString
		)
		if err := rows.Scan(&id, &info.Source, &fetched, &info.Rows, &kind); err != nil {
			return nil, err
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt snapshot id %q: %w", id, err)
		}
		info.FetchedAt = time.Unix(0, fetched).UTC()
		info.ModelKind = kind.String
		out = append(out, info)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (db *DB) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM snapshots ORDER BY fetched_unix DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Name reports the mirror as a reading source.
func (db *DB) Name() string { return "sqlite" }

// Fetch returns the table of the latest snapshot, so the mirror can stand in
// for the spreadsheet.
func (db *DB) Fetch(ctx context.Context) (*reading.Table, error) {
	s, err := db.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.replay(db.Name()), nil
}

// replay returns a shallow copy of the snapshot table marked as stored data.
func (s *Snapshot) replay(name string) *reading.Table {
	t := *s.Table
	t.Stored = &reading.Provenance{Name: name, FetchedAt: s.FetchedAt}
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
