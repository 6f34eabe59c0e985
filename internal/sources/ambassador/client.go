// Package ambassador reads commissions from the GetAmbassador v2 API.
package ambassador

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"affsync/internal/core"
	"affsync/internal/sources"
)

const DefaultBaseURL = "https://getambassador.com"

// Config holds what the client needs to query the commission feed.
type Config struct {
	BaseURL  string
	Username string
	APIKey   string

	// CreatedFrom and CreatedTo bound created_at, inclusive. The API only
	// accepts plain dates (YYYY-MM-DD) for this endpoint.
	CreatedFrom string
	CreatedTo   string

	HTTPClient *http.Client
}

type Client struct {
	http     *http.Client
	endpoint string
	from     string
	to       string
}

var _ sources.CommissionSource = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Username) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing GetAmbassador username or API key")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = sources.NewHTTPClient(0)
	}

	return &Client{
		http:     hc,
		endpoint: fmt.Sprintf("%s/api/v2/%s/%s/json/commission/all/", base, url.PathEscape(cfg.Username), url.PathEscape(cfg.APIKey)),
		from:     cfg.CreatedFrom,
		to:       cfg.CreatedTo,
	}, nil
}

type envelope struct {
	Response *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Data    *struct {
			Commissions *[]*core.RawRecord `json:"commissions"`
		} `json:"data"`
	} `json:"response"`
}

// CommissionPage posts the date filter and page number and returns the page's
// commissions.
func (c *Client) CommissionPage(ctx context.Context, page int) ([]*core.RawRecord, error) {
	form := url.Values{}
	form.Set("created_at__gte", c.from)
	form.Set("created_at__lte", c.to)
	form.Set("page", strconv.Itoa(page))

	rq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	rq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(rq)
	if err != nil {
		return nil, fmt.Errorf("request commissions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read commissions response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty commissions response (HTTP %d): %w", resp.StatusCode, core.ErrMissingPayload)
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, core.ErrUpstreamStatus)
		}
		return nil, fmt.Errorf("decode commissions response: %w", err)
	}

	if env.Response == nil {
		return nil, fmt.Errorf("HTTP %d, no response envelope: %w", resp.StatusCode, core.ErrUpstreamStatus)
	}
	if code := cast.ToString(env.Response.Code); code != "200" {
		return nil, fmt.Errorf("code %q (%s): %w", code, env.Response.Message, core.ErrUpstreamStatus)
	}
	if env.Response.Data == nil || env.Response.Data.Commissions == nil {
		return nil, fmt.Errorf("no commissions returned: %w", core.ErrMissingPayload)
	}

	return *env.Response.Data.Commissions, nil
}
