package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"flyapp/internal/coverage"
	"flyapp/internal/pipeline"
)

func sample(id, protein string, at time.Time) *pipeline.Analysis {
	return &pipeline.Analysis{
		ID:        id,
		ProteinID: protein,
		Sequence:  "MVLSPADK",
		Options:   pipeline.DefaultOptions(),
		Stats:     coverage.Stats{TotalPeptides: 1, ProteinLength: 8, SequenceCoverage: 100},
		CreatedAt: at,
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	defer s.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := sample("", "P1", base)
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected an id to be assigned")
	}
	if err := s.Save(ctx, sample("j2", "P2", base.Add(time.Hour))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ProteinID != "P1" || got.Stats.ProteinLength != 8 || got.Options.Enzyme != "trypsin" {
		t.Fatalf("unexpected analysis loaded: %#v", got)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "j2" || list[1].ID != first.ID {
		t.Fatalf("unexpected listing: %#v", list)
	}

	// replace keeps a single entry
	again := sample("j2", "P2-renamed", base.Add(time.Hour))
	if err := s.Save(ctx, again); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if list, _ = s.List(ctx); len(list) != 2 {
		t.Fatalf("expected 2 analyses after replace, got %d", len(list))
	}

	// same second, whole and fractional timestamps
	if err := s.Save(ctx, sample("j3", "P3", base.Add(time.Hour+100*time.Millisecond))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if list, _ = s.List(ctx); len(list) != 3 || list[0].ID != "j3" || list[1].ID != "j2" {
		t.Fatalf("sub-second ordering wrong: %#v", list)
	}
	if err := s.Delete(ctx, "j3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := s.Delete(ctx, "j2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "j2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "j2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestJSONStore(t *testing.T) {
	testStore(t, NewJSONStore(filepath.Join(t.TempDir(), "analyses.json")))
}

func TestSQLiteStore(t *testing.T) {
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "analyses.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	testStore(t, s)
}

func TestJSONStoreMissingFile(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "none.json"))
	list, err := s.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty listing, got %v, %v", list, err)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("redis", "x"); err == nil {
		t.Fatalf("expected error for unknown store")
	}
}
