package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "affsync/internal/sheets"
)

const (
	// Header cells are stored as typed; body cells are parsed the way the
	// Sheets UI would parse them.
	headerInputOption = "RAW"
	bodyInputOption   = "USER_ENTERED"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var _ ports.Spreadsheet = (*Client)(nil)

// New creates a Sheets client that authenticates with ts. appName is sent as
// the user agent.
func New(ctx context.Context, spreadsheetID, appName string, ts oauth2.TokenSource) (*Client, error) {
	if ts == nil {
		return nil, errors.New("missing token source")
	}

	opts := []goption.ClientOption{goption.WithTokenSource(ts)}
	if strings.TrimSpace(appName) != "" {
		opts = append(opts, goption.WithUserAgent(appName))
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.DebugContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return NewWithService(svc, spreadsheetID)
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, spreadsheetID string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) ListTabs(ctx context.Context) ([]string, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetch spreadsheet %s: %w", c.spreadsheetID, err)
	}

	tabs := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			tabs = append(tabs, s.Properties.Title)
		}
	}
	return tabs, nil
}

func (c *Client) CreateTab(ctx context.Context, name string) error {
	rq := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: name},
			},
		}},
	}

	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, rq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %q: %w", name, err)
	}
	return nil
}

func (c *Client) ReadRange(ctx context.Context, tab, rng string) ([][]string, error) {
	area := a1(tab, rng)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, area).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", area, err)
	}

	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

func (c *Client) WriteHeaderRow(ctx context.Context, tab string, fields []string) error {
	area := a1(tab, fmt.Sprintf("A%d", ports.HeaderRow))
	vr := &gsheet.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]any{toValues(fields)},
	}

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, area, vr).
		ValueInputOption(headerInputOption).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", area, err)
	}
	return nil
}

func (c *Client) WriteRows(ctx context.Context, tab string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	area, err := bodyRange(tab, rows)
	if err != nil {
		return err
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = toValues(row)
	}

	rq := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: bodyInputOption,
		Data: []*gsheet.ValueRange{{
			Range:          area,
			MajorDimension: "ROWS",
			Values:         values,
		}},
	}

	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, rq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write rows %s: %w", area, err)
	}
	return nil
}

// bodyRange spans the body from BodyStartRow, as wide as the widest row.
func bodyRange(tab string, rows [][]string) (string, error) {
	width := 1
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	last, err := excelize.ColumnNumberToName(width)
	if err != nil {
		return "", fmt.Errorf("body of %q is %d columns wide: %w", tab, width, err)
	}
	return a1(tab, fmt.Sprintf("A%d:%s", ports.BodyStartRow, last)), nil
}

// a1 prefixes rng with a quoted tab name.
func a1(tab, rng string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(tab, "'", "''"), rng)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func toValues(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
