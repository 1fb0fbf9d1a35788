/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package sqlite implements the timestamp store on a SQLite database file.
This is the default backend of the daemon.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store"
)

const createTableStmt = `CREATE TABLE IF NOT EXISTS timestamps (
	sid TEXT NOT NULL,
	vid TEXT NOT NULL,
	pcount INTEGER NOT NULL,
	pid INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	"offset" INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS timestamps_instance_idx ON timestamps (sid, vid, timestamp);`

// sqliteStore implements the timestamp store backed up by SQLite.
type sqliteStore struct {
	db   *sql.DB
	path string
}

var _ store.TimestampStore = (*sqliteStore)(nil)

// NewTimestampStore opens (creating if needed) the SQLite database at
// path and prepares the timestamps table.
func NewTimestampStore(path string) (store.TimestampStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory, %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %q, %w", path, err)
	}
	// The database is shared with other subsystems, serialize access on
	// one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal_mode, %w", err)
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create timestamps table, %w", err)
	}
	return &sqliteStore{db: db, path: path}, nil
}

func (s *sqliteStore) MaxTimestamp(ctx context.Context) (uint64, error) {
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(timestamp), 0) FROM timestamps")
	var max int64
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to query max timestamp, %w", err)
	}
	return uint64(max), nil
}

func (s *sqliteStore) Insert(ctx context.Context, r store.TimestampRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timestamps (sid, vid, pcount, pid, timestamp, "offset") VALUES (?, ?, ?, ?, ?, ?)`,
		r.SourceID, r.ViewID, r.PartitionCount, r.PartitionID, int64(r.Timestamp), r.Offset)
	if err != nil {
		return fmt.Errorf("failed to insert timestamp record, %w", err)
	}
	return nil
}

func (s *sqliteStore) ReplaySource(ctx context.Context, id dataflow.SourceInstanceID) ([]store.TimestampRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pcount, pid, timestamp, "offset" FROM timestamps WHERE sid = ? AND vid = ? ORDER BY timestamp`,
		id.SourceID, id.ViewID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamp records for %q, %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	var records []store.TimestampRecord
	for rows.Next() {
		r := store.TimestampRecord{SourceID: id.SourceID, ViewID: id.ViewID}
		var ts int64
		if err := rows.Scan(&r.PartitionCount, &r.PartitionID, &ts, &r.Offset); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp record, %w", err)
		}
		r.Timestamp = uint64(ts)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timestamp records, %w", err)
	}
	return records, nil
}

func (s *sqliteStore) DeleteSource(ctx context.Context, id dataflow.SourceInstanceID) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM timestamps WHERE sid = ? AND vid = ?", id.SourceID, id.ViewID); err != nil {
		return fmt.Errorf("failed to delete timestamp records for %q, %w", id, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
