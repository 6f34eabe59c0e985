// Package campaignmonitor reads active list subscribers (contest entrants)
// from the Campaign Monitor v3.3 API.
package campaignmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"affsync/internal/core"
	"affsync/internal/sources"
)

const (
	DefaultBaseURL = "https://api.createsend.com"

	orderField     = "date"
	orderDirection = "asc"
)

// Config holds what the client needs to list active subscribers.
type Config struct {
	BaseURL string
	APIKey  string
	ListID  string

	// Since is the earliest subscription date, "YYYY-MM-DD HH:MM:SS".
	Since    string
	PageSize int

	HTTPClient *http.Client
}

type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	since    string
	pageSize int
}

var _ sources.EntrantSource = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing Campaign Monitor API key")
	}
	if strings.TrimSpace(cfg.ListID) == "" {
		return nil, errors.New("missing Campaign Monitor list ID")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = sources.EntrantPageSize
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = sources.NewHTTPClient(0)
	}

	return &Client{
		http:     hc,
		endpoint: fmt.Sprintf("%s/api/v3.3/lists/%s/active.json", base, url.PathEscape(cfg.ListID)),
		apiKey:   cfg.APIKey,
		since:    cfg.Since,
		pageSize: pageSize,
	}, nil
}

type result struct {
	Results              []*core.RawRecord `json:"Results"`
	ResultsOrderedBy     string            `json:"ResultsOrderedBy"`
	OrderDirection       string            `json:"OrderDirection"`
	PageNumber           int               `json:"PageNumber"`
	PageSize             int               `json:"PageSize"`
	RecordsOnThisPage    int               `json:"RecordsOnThisPage"`
	TotalNumberOfRecords int               `json:"TotalNumberOfRecords"`
	NumberOfPages        int               `json:"NumberOfPages"`
}

type apiError struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

// EntrantPage returns one page of active subscribers, oldest first.
func (c *Client) EntrantPage(ctx context.Context, page int) (*sources.EntrantPage, error) {
	q := url.Values{}
	q.Set("date", c.since)
	q.Set("page", strconv.Itoa(page))
	q.Set("pagesize", strconv.Itoa(c.pageSize))
	q.Set("orderfield", orderField)
	q.Set("orderdirection", orderDirection)

	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	rq.SetBasicAuth(c.apiKey, "x")
	rq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(rq)
	if err != nil {
		return nil, fmt.Errorf("request entrants: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read entrants response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return nil, fmt.Errorf("HTTP %d, code %d (%s): %w", resp.StatusCode, e.Code, e.Message, core.ErrUpstreamStatus)
		}
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, core.ErrUpstreamStatus)
	}

	var r result
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode entrants response: %w", err)
	}

	return &sources.EntrantPage{
		Results:              r.Results,
		PageNumber:           r.PageNumber,
		NumberOfPages:        r.NumberOfPages,
		TotalNumberOfRecords: r.TotalNumberOfRecords,
	}, nil
}
