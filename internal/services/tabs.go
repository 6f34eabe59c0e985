package services

import (
	"context"
	"fmt"

	"affsync/internal/core"
	"affsync/internal/log"
	"affsync/internal/sheets"
)

// headerRange is the A1 range of a tab's header row.
var headerRange = fmt.Sprintf("A%d:%d", sheets.HeaderRow, sheets.HeaderRow)

// TabRegistry is the set of tab names known to exist in the spreadsheet.
type TabRegistry struct {
	names map[string]struct{}
	order []string
}

func NewTabRegistry(names []string) *TabRegistry {
	r := &TabRegistry{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		r.Add(n)
	}
	return r
}

func (r *TabRegistry) Has(name string) bool {
	_, ok := r.names[name]
	return ok
}

func (r *TabRegistry) Add(name string) {
	if r.Has(name) {
		return
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, name)
}

// Names returns the registered tabs in the order they were added.
func (r *TabRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// TabState reports what EnsureTab had to do.
type TabState struct {
	Created       bool
	HeaderWritten bool
}

// EnsureTab makes tab ready to receive rows under header. A missing tab is
// created, registered and given the header. An existing tab whose header row
// is blank, left behind by a run that stopped between the two calls, gets
// the header. A tab with a header is left alone.
func (s *SyncService) EnsureTab(ctx context.Context, reg *TabRegistry, tab string, header []string) (TabState, error) {
	var state TabState

	if !reg.Has(tab) {
		if err := s.sheet.CreateTab(ctx, tab); err != nil {
			return state, fmt.Errorf("create tab %q: %w", tab, err)
		}
		reg.Add(tab)
		state.Created = true
		s.logger.InfoContext(ctx, "Created tab", log.FieldTab, tab)
	} else {
		existing, err := s.sheet.ReadRange(ctx, tab, headerRange)
		if err != nil {
			return state, fmt.Errorf("read header of %q: %w", tab, err)
		}
		if !sheets.IsEmpty(existing) {
			return state, nil
		}
		s.logger.WarnContext(ctx, "Tab has no header row, writing it", log.FieldTab, tab)
	}

	if err := s.sheet.WriteHeaderRow(ctx, tab, header); err != nil {
		return state, fmt.Errorf("write header of %q: %w", tab, err)
	}
	state.HeaderWritten = true
	return state, nil
}

// writeTab ensures tab and writes records below its header. The header
// comes from the first record.
func (s *SyncService) writeTab(ctx context.Context, run *runState, reg *TabRegistry, tab string, records []*core.Record) error {
	if len(records) == 0 {
		return nil
	}

	state, err := s.EnsureTab(ctx, reg, tab, records[0].Keys())
	if err != nil {
		return err
	}

	if err := s.sheet.WriteRows(ctx, tab, core.Rows(records)); err != nil {
		return fmt.Errorf("write rows to %q: %w", tab, err)
	}

	s.logger.InfoContext(ctx, "Wrote tab", log.NewFields().
		WithTab(tab, len(records)).
		WithOperation(log.OpWriteRows).
		ToSlice()...)

	run.tabs = append(run.tabs, tab)
	s.recordTabWrite(ctx, run.id, tab, len(records), state)
	return nil
}
