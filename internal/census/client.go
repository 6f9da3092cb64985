// Package census queries the Census Bureau data API and converts its
// array-of-arrays responses into core records.
package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"rocklandcensus/internal/core"
)

// Default table endpoints.
const (
	DefaultACS5URL    = "https://api.census.gov/data/2021/acs/acs5"
	DefaultSubjectURL = "https://api.census.gov/data/2021/acs/acs5/subject"
	DefaultDHCURL     = "https://api.census.gov/data/2020/dec/dhc"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// Client issues table queries. The zero value uses http.DefaultClient and no
// access key.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	Logger     *zap.Logger
}

// NewClient returns a client using key for every query.
func NewClient(httpClient *http.Client, key string, logger *zap.Logger) *Client {
	return &Client{HTTPClient: httpClient, APIKey: key, Logger: logger}
}

// Table is a decoded response: the header row and the data rows.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// Column returns the position of name in the header.
func (t *Table) Column(name string) (int, bool) {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Header))
		for i, h := range t.Header {
			if _, dup := t.index[h]; !dup {
				t.index[h] = i
			}
		}
	}
	i, ok := t.index[name]
	return i, ok
}

// Cell returns the value of column name in row, or "" when either is missing.
func (t *Table) Cell(row []string, name string) string {
	i, ok := t.Column(name)
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// Query describes one upstream request.
type Query struct {
	// Source names the logical table in errors and logs.
	Source  string
	BaseURL string
	Fields  []string
	Keys    []core.GeoKey
}

// Params returns the query string parameters for q.
func (c *Client) Params(q Query) url.Values {
	keys := make([]string, len(q.Keys))
	for i, k := range q.Keys {
		keys[i] = string(k)
	}
	params := url.Values{}
	params.Set("get", strings.Join(q.Fields, ","))
	params.Set("for", GeoColumn+":"+strings.Join(keys, ","))
	if c.APIKey != "" {
		params.Set("key", c.APIKey)
	}
	return params
}

// Do runs q and decodes the response. A response carrying only the header row
// yields a table without rows. Non-2xx statuses and transport failures are
// returned as *core.UpstreamError.
func (c *Client) Do(ctx context.Context, q Query) (*Table, error) {
	if len(q.Fields) > MaxFieldsPerQuery {
		return nil, fmt.Errorf("%s query requests %d fields, limit is %d", q.Source, len(q.Fields), MaxFieldsPerQuery)
	}
	errKey := ""
	if len(q.Keys) == 1 {
		errKey = string(q.Keys[0])
	}
	fail := func(status int, body string, err error) error {
		return &core.UpstreamError{Source: q.Source, Key: errKey, Status: status, Body: body, Err: err}
	}

	endpoint := q.BaseURL + "?" + c.Params(q).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(0, "", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	c.logger().Debug("census query",
		zap.String("source", q.Source),
		zap.Int("keys", len(q.Keys)),
		zap.Int("fields", len(q.Fields)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fail(resp.StatusCode, string(body), nil)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, "", err)
	}
	table, err := decodeTable(payload)
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
	}
	return table, nil
}

// decodeTable parses an array-of-arrays body. Cells may be strings, numbers
// or null; null becomes "".
func decodeTable(payload []byte) (*Table, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return &Table{}, nil
	}
	var raw [][]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return &Table{}, nil
	}
	table := &Table{Header: cells(raw[0])}
	for _, row := range raw[1:] {
		table.Rows = append(table.Rows, cells(row))
	}
	return table, nil
}

func cells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch val := v.(type) {
		case nil:
		case string:
			out[i] = val
		case float64:
			out[i] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[i] = strconv.FormatBool(val)
		default:
			out[i] = fmt.Sprint(val)
		}
	}
	return out
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
