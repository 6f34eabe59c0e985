package sources

import (
	"context"
	"fmt"

	"affsync/internal/core"
	"affsync/internal/log"
)

// Fetcher drains a source feed page by page.
type Fetcher struct {
	commissions CommissionSource
	entrants    EntrantSource
	logger      *log.Logger
}

func NewFetcher(commissions CommissionSource, entrants EntrantSource, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Fetcher{
		commissions: commissions,
		entrants:    entrants,
		logger:      logger.WithComponent(log.ComponentFetcher),
	}
}

// Commissions fetches every commission page until one comes back shorter
// than CommissionPageSize.
func (f *Fetcher) Commissions(ctx context.Context) ([]*core.Record, error) {
	if f.commissions == nil {
		return nil, fmt.Errorf("no commission source configured")
	}

	var out []*core.Record
	for page := 1; ; page++ {
		items, err := f.commissions.CommissionPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("commission page %d: %w", page, err)
		}
		if page == 1 && len(items) == 0 {
			return nil, fmt.Errorf("commission page 1: %w", core.ErrEmptyFirstPage)
		}

		f.logger.DebugContext(ctx, "Fetched page",
			log.FieldSource, log.SourceCommissions,
			log.FieldPage, page,
			log.FieldItems, len(items))

		out = append(out, core.NormalizeAll(items)...)
		if len(items) < CommissionPageSize {
			break
		}
	}

	f.logger.InfoContext(ctx, "Fetched commissions", log.FieldRecords, len(out))
	return out, nil
}

// Entrants fetches pages until the declared page count is exhausted, then
// checks the number of records against the declared total. A short count is
// an error rather than a partial result.
func (f *Fetcher) Entrants(ctx context.Context) ([]*core.Record, error) {
	if f.entrants == nil {
		return nil, fmt.Errorf("no entrant source configured")
	}

	var (
		out   []*core.Record
		pages int
		total int
	)
	for page := 1; page == 1 || page <= pages; page++ {
		result, err := f.entrants.EntrantPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("entrant page %d: %w", page, err)
		}
		if page == 1 && (result == nil || len(result.Results) == 0) {
			return nil, fmt.Errorf("entrant page 1: %w", core.ErrEmptyFirstPage)
		}
		if result == nil {
			return nil, fmt.Errorf("entrant page %d: %w", page, core.ErrMissingPayload)
		}

		pages = result.NumberOfPages
		total = result.TotalNumberOfRecords

		f.logger.DebugContext(ctx, "Fetched page",
			log.FieldSource, log.SourceEntrants,
			log.FieldPage, page,
			log.FieldPages, pages,
			log.FieldItems, len(result.Results))

		out = append(out, core.NormalizeAll(result.Results)...)
	}

	if len(out) != total {
		return nil, fmt.Errorf("extracted %d of %d entrants: %w", len(out), total, core.ErrRecordCountMismatch)
	}

	f.logger.InfoContext(ctx, "Fetched entrants", log.FieldRecords, len(out), log.FieldPages, pages)
	return out, nil
}
