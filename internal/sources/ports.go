// Package sources defines the paged source feeds and the fetcher that drains
// them into normalized records.
package sources

import (
	"context"

	"affsync/internal/core"
)

const (
	// CommissionPageSize is the fixed page size of the commission feed. A
	// shorter page is the last one.
	CommissionPageSize = 100

	// EntrantPageSize is the page size requested from the entrant feed.
	EntrantPageSize = 1000
)

// EntrantPage is one page of the entrant feed together with the totals the
// feed declares up front.
type EntrantPage struct {
	Results              []*core.RawRecord
	PageNumber           int
	NumberOfPages        int
	TotalNumberOfRecords int
}

// Ports for the inbound feeds.
type (
	// CommissionSource returns one page of commissions, numbered from 1.
	CommissionSource interface {
		CommissionPage(ctx context.Context, page int) ([]*core.RawRecord, error)
	}

	// EntrantSource returns one page of active entrants, numbered from 1.
	EntrantSource interface {
		EntrantPage(ctx context.Context, page int) (*EntrantPage, error)
	}
)
