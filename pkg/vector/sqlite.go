// Copyright 2026 CodeAtlas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package vector

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteStore implements Store backed by SQLite with the sqlite-vec
// extension. Chunk metadata lives in a regular table; embeddings live in a
// vec0 virtual table keyed by the chunk's rowid.
type SQLiteStore struct {
	db         *sql.DB
	dimensions int
}

// Open creates or opens the database at path and initializes the schema.
// The embedding dimensionality is fixed at creation; reopening with a
// different value fails on the first insert.
func Open(path string, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector store needs a positive dimension, got %d", dimensions)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
    rid         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT NOT NULL UNIQUE,
    repository  TEXT NOT NULL,
    path        TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    start_line  INTEGER NOT NULL,
    end_line    INTEGER NOT NULL,
    content     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_repo_path ON chunks(repository, path);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_rid INTEGER PRIMARY KEY,
    embedding float[%d]
);
`, dimensions)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

func (s *SQLiteStore) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		if len(r.Embedding) != s.dimensions {
			return fmt.Errorf("chunk %s: embedding has %d dimensions, store expects %d",
				r.ID, len(r.Embedding), s.dimensions)
		}

		_, err := tx.Exec(`
INSERT INTO chunks (id, repository, path, chunk_index, start_line, end_line, content)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    repository = excluded.repository,
    path = excluded.path,
    chunk_index = excluded.chunk_index,
    start_line = excluded.start_line,
    end_line = excluded.end_line,
    content = excluded.content
`, r.ID, r.Repository, r.Path, r.Index, r.StartLine, r.EndLine, r.Content)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.ID, err)
		}

		// LastInsertId is unreliable on the conflict-update path; always
		// resolve the rowid explicitly.
		var rid int64
		if err := tx.QueryRow("SELECT rid FROM chunks WHERE id = ?", r.ID).Scan(&rid); err != nil {
			return fmt.Errorf("resolve rowid for chunk %s: %w", r.ID, err)
		}

		if _, err := tx.Exec("DELETE FROM vec_chunks WHERE chunk_rid = ?", rid); err != nil {
			return fmt.Errorf("clear embedding for chunk %s: %w", r.ID, err)
		}
		blob, err := sqlite_vec.SerializeFloat32(r.Embedding)
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %s: %w", r.ID, err)
		}
		if _, err := tx.Exec("INSERT INTO vec_chunks (chunk_rid, embedding) VALUES (?, ?)", rid, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if err := deleteByID(tx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteFile(repository, path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT id FROM chunks WHERE repository = ? AND path = ?", repository, path)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := deleteByID(tx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RenameFile rewrites path and chunk ID in place. The vec_chunks rows key on
// rid, which does not change, so embeddings survive untouched.
func (s *SQLiteStore) RenameFile(repository, oldPath, newPath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT rid, chunk_index FROM chunks WHERE repository = ? AND path = ?", repository, oldPath)
	if err != nil {
		return err
	}
	type row struct {
		rid   int64
		index int
	}
	var moved []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rid, &r.index); err != nil {
			rows.Close()
			return err
		}
		moved = append(moved, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range moved {
		id := fmt.Sprintf("%s:%s:%d", repository, newPath, r.index)
		if _, err := tx.Exec("UPDATE chunks SET path = ?, id = ? WHERE rid = ?", newPath, id, r.rid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func deleteByID(tx *sql.Tx, id string) error {
	var rid int64
	err := tx.QueryRow("SELECT rid FROM chunks WHERE id = ?", id).Scan(&rid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM vec_chunks WHERE chunk_rid = ?", rid); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE rid = ?", rid); err != nil {
		return err
	}
	return nil
}

// Query runs a KNN search. The vec0 MATCH cannot carry extra WHERE clauses,
// so repository filtering happens on the joined rows: the search over-fetches
// and trims to the limit afterwards.
func (s *SQLiteStore) Query(embedding []float32, opts QueryOptions) ([]Match, error) {
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, store expects %d",
			len(embedding), s.dimensions)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	fetch := limit
	if opts.Repository != "" {
		fetch = limit * 8
		if fetch > 512 {
			fetch = 512
		}
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	rows, err := s.db.Query(`
SELECT c.id, c.repository, c.path, c.chunk_index, c.start_line, c.end_line, c.content, v.distance
FROM vec_chunks v
JOIN chunks c ON c.rid = v.chunk_rid
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance
`, blob, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Repository, &m.Path, &m.Index, &m.StartLine, &m.EndLine, &m.Content, &m.Distance); err != nil {
			return nil, err
		}
		if opts.Repository != "" && m.Repository != opts.Repository {
			continue
		}
		if opts.MaxDistance > 0 && m.Distance > opts.MaxDistance {
			continue
		}
		matches = append(matches, m)
		if len(matches) == limit {
			break
		}
	}
	return matches, rows.Err()
}

func (s *SQLiteStore) Count(repository string) (int, error) {
	var n int
	var err error
	if repository == "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE repository = ?", repository).Scan(&n)
	}
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
