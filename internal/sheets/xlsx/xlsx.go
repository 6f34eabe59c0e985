// Package xlsx keeps tabs as worksheets of a local .xlsx workbook.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/xuri/excelize/v2"

	"affsync/internal/sheets"
)

// defaultSheet is the worksheet excelize puts in a new workbook.
const defaultSheet = "Sheet1"

type Workbook struct {
	mu   sync.Mutex
	path string
	f    *excelize.File
	// fresh is set while the workbook holds only the placeholder sheet.
	fresh bool
}

var _ sheets.Spreadsheet = (*Workbook)(nil)

// Open loads the workbook at path, or starts an empty one that is written
// there on the first change.
func Open(path string) (*Workbook, error) {
	if path == "" {
		return nil, errors.New("missing workbook path")
	}

	f, err := excelize.OpenFile(path)
	if err == nil {
		return &Workbook{path: path, f: f}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &Workbook{path: path, f: excelize.NewFile(), fresh: true}, nil
}

func (w *Workbook) ListTabs(_ context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fresh {
		return []string{}, nil
	}
	return w.f.GetSheetList(), nil
}

func (w *Workbook) CreateTab(_ context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fresh {
		if err := w.f.SetSheetName(defaultSheet, name); err != nil {
			return fmt.Errorf("add tab %q: %w", name, err)
		}
		w.fresh = false
		return w.save()
	}

	if slices.Contains(w.f.GetSheetList(), name) {
		return fmt.Errorf("tab %q already exists", name)
	}
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("add tab %q: %w", name, err)
	}
	return w.save()
}

func (w *Workbook) ReadRange(_ context.Context, tab, rng string) ([][]string, error) {
	r, err := sheets.ParseRange(rng)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	grid, err := w.rows(tab)
	if err != nil {
		return nil, err
	}
	return r.Slice(grid), nil
}

func (w *Workbook) WriteHeaderRow(_ context.Context, tab string, fields []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.rows(tab); err != nil {
		return err
	}
	if err := w.setRow(tab, sheets.HeaderRow, fields); err != nil {
		return err
	}
	return w.save()
}

// WriteRows clears the body below the header and writes rows in its place.
func (w *Workbook) WriteRows(_ context.Context, tab string, rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, err := w.rows(tab)
	if err != nil {
		return err
	}
	for r := len(existing); r >= sheets.BodyStartRow; r-- {
		if err := w.f.RemoveRow(tab, r); err != nil {
			return fmt.Errorf("clear %q row %d: %w", tab, r, err)
		}
	}

	for i, row := range rows {
		if err := w.setRow(tab, sheets.BodyStartRow+i, row); err != nil {
			return err
		}
	}
	return w.save()
}

// Close releases the workbook. Changes are already on disk.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *Workbook) rows(tab string) ([][]string, error) {
	if w.fresh || !slices.Contains(w.f.GetSheetList(), tab) {
		return nil, fmt.Errorf("unknown tab %q", tab)
	}
	grid, err := w.f.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("read tab %q: %w", tab, err)
	}
	return grid, nil
}

func (w *Workbook) setRow(tab string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := w.f.SetSheetRow(tab, cell, &values); err != nil {
		return fmt.Errorf("write %q row %d: %w", tab, row, err)
	}
	return nil
}

func (w *Workbook) save() error {
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", w.path, err)
	}
	return nil
}
