// Package memory is an in-process spreadsheet used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"affsync/internal/sheets"
)

type Store struct {
	mu    sync.Mutex
	order []string
	tabs  map[string][][]string
}

var _ sheets.Spreadsheet = (*Store)(nil)

// New returns a store that already holds the given empty tabs.
func New(tabs ...string) *Store {
	s := &Store{tabs: map[string][][]string{}}
	for _, t := range tabs {
		s.addTab(t)
	}
	return s
}

func (s *Store) addTab(name string) {
	if _, ok := s.tabs[name]; ok {
		return
	}
	s.order = append(s.order, name)
	s.tabs[name] = nil
}

// ListTabs returns tab names in creation order.
func (s *Store) ListTabs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *Store) CreateTab(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[name]; ok {
		return fmt.Errorf("tab %q already exists", name)
	}
	s.addTab(name)
	return nil
}

func (s *Store) ReadRange(_ context.Context, tab, rng string) ([][]string, error) {
	r, err := sheets.ParseRange(rng)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	grid, ok := s.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("unknown tab %q", tab)
	}
	return r.Slice(grid), nil
}

func (s *Store) WriteHeaderRow(_ context.Context, tab string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, ok := s.tabs[tab]
	if !ok {
		return fmt.Errorf("unknown tab %q", tab)
	}
	if len(grid) == 0 {
		grid = [][]string{nil}
	}
	grid[sheets.HeaderRow-1] = append([]string(nil), fields...)
	s.tabs[tab] = grid
	return nil
}

// WriteRows replaces the body below the header row.
func (s *Store) WriteRows(_ context.Context, tab string, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, ok := s.tabs[tab]
	if !ok {
		return fmt.Errorf("unknown tab %q", tab)
	}

	header := []string(nil)
	if len(grid) > 0 {
		header = grid[sheets.HeaderRow-1]
	}
	next := make([][]string, 0, len(rows)+1)
	next = append(next, header)
	for _, row := range rows {
		next = append(next, append([]string(nil), row...))
	}
	s.tabs[tab] = next
	return nil
}

// Tab returns a copy of a tab's grid, header row first.
func (s *Store) Tab(name string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid := s.tabs[name]
	out := make([][]string, len(grid))
	for i, row := range grid {
		out[i] = append([]string(nil), row...)
	}
	return out
}
