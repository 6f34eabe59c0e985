package sheets

import (
	"context"
)

// HeaderRow and BodyStartRow are the 1-based rows a tab's header and body
// occupy.
const (
	HeaderRow    = 1
	BodyStartRow = 2
)

// Ports for outbound spreadsheet adapters.
type (
	// TabLister returns the names of every tab in the spreadsheet.
	TabLister interface {
		ListTabs(ctx context.Context) ([]string, error)
	}

	// TabCreator adds an empty tab.
	TabCreator interface {
		CreateTab(ctx context.Context, name string) error
	}

	// RangeReader reads an A1-notation range (without the tab prefix) from a
	// tab. Trailing empty rows and cells are omitted.
	RangeReader interface {
		ReadRange(ctx context.Context, tab, rng string) ([][]string, error)
	}

	// RowWriter writes a tab's header row and its body.
	RowWriter interface {
		// WriteHeaderRow writes fields into the header row.
		WriteHeaderRow(ctx context.Context, tab string, fields []string) error
		// WriteRows writes rows from BodyStartRow down, overwriting whatever
		// body is already there.
		WriteRows(ctx context.Context, tab string, rows [][]string) error
	}

	// Spreadsheet is everything a sync pass needs from the destination.
	Spreadsheet interface {
		TabLister
		TabCreator
		RangeReader
		RowWriter
	}
)
