package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type call struct {
	method string
	path   string
	query  string
	body   map[string]any
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []call
	reply func(r *http.Request) string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: body})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.reply != nil {
		io.WriteString(w, f.reply(r))
		return
	}
	io.WriteString(w, `{}`)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	c, err := NewWithService(svc, "sheet-1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestListTabs(t *testing.T) {
	api := &fakeAPI{reply: func(*http.Request) string {
		return `{"sheets":[{"properties":{"title":"Contestants"}},{"properties":{"title":"August"}}]}`
	}}
	c := newTestClient(t, api)

	tabs, err := c.ListTabs(context.Background())
	if err != nil {
		t.Fatalf("list tabs: %v", err)
	}
	if !reflect.DeepEqual(tabs, []string{"Contestants", "August"}) {
		t.Fatalf("tabs: got %v", tabs)
	}
	if got := api.calls[0]; got.method != http.MethodGet || got.path != "/v4/spreadsheets/sheet-1" {
		t.Fatalf("unexpected call %s %s", got.method, got.path)
	}
	if !strings.Contains(api.calls[0].query, "fields=") {
		t.Errorf("expected a field mask, got %q", api.calls[0].query)
	}
}

func TestCreateTab(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.CreateTab(context.Background(), "October"); err != nil {
		t.Fatalf("create tab: %v", err)
	}

	got := api.calls[0]
	if got.method != http.MethodPost || got.path != "/v4/spreadsheets/sheet-1:batchUpdate" {
		t.Fatalf("unexpected call %s %s", got.method, got.path)
	}
	reqs := got.body["requests"].([]any)
	add := reqs[0].(map[string]any)["addSheet"].(map[string]any)
	if title := add["properties"].(map[string]any)["title"]; title != "October" {
		t.Errorf("title: got %v", title)
	}
}

func TestReadRange(t *testing.T) {
	api := &fakeAPI{reply: func(*http.Request) string {
		return `{"range":"'Contestants'!A2:Z3","majorDimension":"ROWS","values":[["a@example.com","Ann"],["b@example.com",3]]}`
	}}
	c := newTestClient(t, api)

	rows, err := c.ReadRange(context.Background(), "Contestants", "A2:Z")
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	want := [][]string{{"a@example.com", "Ann"}, {"b@example.com", "3"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows: got %v, want %v", rows, want)
	}
	if got := api.calls[0].path; got != "/v4/spreadsheets/sheet-1/values/'Contestants'!A2:Z" {
		t.Errorf("path: got %s", got)
	}
}

func TestReadRangeEmpty(t *testing.T) {
	c := newTestClient(t, &fakeAPI{reply: func(*http.Request) string { return `{"range":"'October'!A1:1"}` }})

	rows, err := c.ReadRange(context.Background(), "October", "A1:1")
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}
}

func TestWriteHeaderRow(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.WriteHeaderRow(context.Background(), "October", []string{"id", "amount"}); err != nil {
		t.Fatalf("write header: %v", err)
	}

	got := api.calls[0]
	if got.method != http.MethodPut || got.path != "/v4/spreadsheets/sheet-1/values/'October'!A1" {
		t.Fatalf("unexpected call %s %s", got.method, got.path)
	}
	if !strings.Contains(got.query, "valueInputOption=RAW") {
		t.Errorf("query: got %q", got.query)
	}
	if values := got.body["values"]; !reflect.DeepEqual(values, []any{[]any{"id", "amount"}}) {
		t.Errorf("values: got %v", values)
	}
}

func TestWriteRows(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	rows := [][]string{{"1", "5.00"}, {"2", "7.50", "extra"}}
	if err := c.WriteRows(context.Background(), "O'Brien", rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}

	got := api.calls[0]
	if got.method != http.MethodPost || got.path != "/v4/spreadsheets/sheet-1/values:batchUpdate" {
		t.Fatalf("unexpected call %s %s", got.method, got.path)
	}
	if opt := got.body["valueInputOption"]; opt != "USER_ENTERED" {
		t.Errorf("valueInputOption: got %v", opt)
	}
	data := got.body["data"].([]any)[0].(map[string]any)
	if rng := data["range"]; rng != "'O''Brien'!A2:C" {
		t.Errorf("range: got %v", rng)
	}
	if dim := data["majorDimension"]; dim != "ROWS" {
		t.Errorf("majorDimension: got %v", dim)
	}
	if n := len(data["values"].([]any)); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestWriteRowsEmptyIsNoop(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.WriteRows(context.Background(), "October", nil); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("expected no API calls, got %d", len(api.calls))
	}
}

func TestUpstreamErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"message":"The caller does not have permission"}}`)
	}))
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(), goption.WithEndpoint(srv.URL+"/"), goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c, _ := NewWithService(svc, "sheet-1")

	_, err = c.ListTabs(context.Background())
	if err == nil || !strings.Contains(err.Error(), "fetch spreadsheet sheet-1") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewWithServiceValidates(t *testing.T) {
	if _, err := NewWithService(&gsheet.Service{}, " "); err == nil {
		t.Error("expected error for blank spreadsheet ID")
	}
	if _, err := NewWithService(nil, "sheet-1"); err == nil {
		t.Error("expected error for nil service")
	}
}

func TestNewRequiresTokenSource(t *testing.T) {
	if _, err := New(context.Background(), "sheet-1", "affsync", nil); err == nil {
		t.Fatal("expected error without token source")
	}
}

func TestA1QuotesTabNames(t *testing.T) {
	if got := a1("Contestants", "A2:Z"); got != "'Contestants'!A2:Z" {
		t.Errorf("got %s", got)
	}
	if got := a1("It's", "A1"); got != "'It''s'!A1" {
		t.Errorf("got %s", got)
	}
}
