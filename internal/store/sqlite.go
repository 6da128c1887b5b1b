package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"flyapp/internal/pipeline"
)

const schema = `CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	protein_id TEXT NOT NULL,
	protein_length INTEGER NOT NULL,
	total_peptides INTEGER NOT NULL,
	flyer_peptides INTEGER NOT NULL,
	sequence_coverage REAL NOT NULL,
	created_at TEXT NOT NULL,
	body TEXT NOT NULL
)`

// SQLiteStore keeps one row per analysis; the full analysis is stored as
// JSON in body, the summary columns serve List.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating when needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// createdLayout is fixed width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (s *SQLiteStore) Save(ctx context.Context, a *pipeline.Analysis) error {
	ensureID(a)
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO analyses
		(id, protein_id, protein_length, total_peptides, flyer_peptides, sequence_coverage, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ProteinID, a.Stats.ProteinLength, a.Stats.TotalPeptides, a.Stats.FlyerPeptides,
		a.Stats.SequenceCoverage, a.CreatedAt.UTC().Format(createdLayout), string(body))
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*pipeline.Analysis, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM analyses WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a pipeline.Analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, protein_id, protein_length, total_peptides, flyer_peptides, sequence_coverage, created_at
		FROM analyses ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var sm Summary
		var created string
		if err := rows.Scan(&sm.ID, &sm.ProteinID, &sm.ProteinLength, &sm.TotalPeptides, &sm.FlyerPeptides, &sm.SequenceCoverage, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(createdLayout, created); err == nil {
			sm.CreatedAt = t.Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
