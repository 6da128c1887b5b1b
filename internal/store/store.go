// Package store persists finished analyses for the web UI so results can be
// revisited and downloaded later. Two backends are available: a JSON file
// (read-modify-write, fine for a single user) and SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"flyapp/internal/pipeline"
)

// ErrNotFound is returned when an analysis id is unknown.
var ErrNotFound = errors.New("analysis not found")

// Summary is the listing view of a stored analysis.
type Summary struct {
	ID               string  `json:"id"`
	ProteinID        string  `json:"protein_id"`
	ProteinLength    int     `json:"protein_length"`
	TotalPeptides    int     `json:"total_peptides"`
	FlyerPeptides    int     `json:"flyer_peptides"`
	SequenceCoverage float64 `json:"sequence_coverage"`
	CreatedAt        string  `json:"created_at"`
}

// Store saves and loads analyses.
type Store interface {
	// Save assigns a.ID when empty and stores a, replacing any analysis with the same id.
	Save(ctx context.Context, a *pipeline.Analysis) error
	Get(ctx context.Context, id string) (*pipeline.Analysis, error)
	// List returns summaries, newest first.
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the backend named by kind ("json" or "sqlite") at path.
func Open(kind, path string) (Store, error) {
	switch strings.ToLower(kind) {
	case "json":
		return NewJSONStore(path), nil
	case "sqlite", "":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

func ensureID(a *pipeline.Analysis) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
}

func summarize(a *pipeline.Analysis) Summary {
	return Summary{
		ID:               a.ID,
		ProteinID:        a.ProteinID,
		ProteinLength:    a.Stats.ProteinLength,
		TotalPeptides:    a.Stats.TotalPeptides,
		FlyerPeptides:    a.Stats.FlyerPeptides,
		SequenceCoverage: a.Stats.SequenceCoverage,
		CreatedAt:        a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
