package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"

	"flyapp/internal/pipeline"
)

// JSONStore keeps all analyses in one JSON array file.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// load reads the file; a missing file is an empty store.
func (s *JSONStore) load() ([]*pipeline.Analysis, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var all []*pipeline.Analysis
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *JSONStore) save(all []*pipeline.Analysis) error {
	out, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONStore) Save(_ context.Context, a *pipeline.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	ensureID(a)
	replaced := false
	for i, x := range all {
		if x.ID == a.ID {
			all[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, a)
	}
	return s.save(all)
}

func (s *JSONStore) Get(_ context.Context, id string) (*pipeline.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *JSONStore) List(_ context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	out := make([]Summary, 0, len(all))
	for _, a := range all {
		out = append(out, summarize(a))
	}
	return out, nil
}

func (s *JSONStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.load()
	if err != nil {
		return err
	}
	for i, a := range all {
		if a.ID == id {
			return s.save(append(all[:i], all[i+1:]...))
		}
	}
	return ErrNotFound
}

func (s *JSONStore) Close() error { return nil }
