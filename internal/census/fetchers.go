package census

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
)

// Source names used in errors, logs and metrics.
const (
	SourceIncome     = "income"
	SourceOccupation = "occupation"
	SourceRace       = "race"
)

// KeyedFetcher queries a table once per key. It implements core.KeyFetcher.
type KeyedFetcher struct {
	Client    *Client
	Source    string
	BaseURL   string
	Variables []Variable
	// Registry resolves display names; nil means geo.Rockland().
	Registry *geo.Registry
}

// NewIncomeFetcher queries the ACS 5-year income table at baseURL.
func NewIncomeFetcher(c *Client, baseURL string) *KeyedFetcher {
	if baseURL == "" {
		baseURL = DefaultACS5URL
	}
	return &KeyedFetcher{Client: c, Source: SourceIncome, BaseURL: baseURL, Variables: IncomeVariables}
}

// NewOccupationFetcher queries the ACS 5-year subject table at baseURL.
func NewOccupationFetcher(c *Client, baseURL string) *KeyedFetcher {
	if baseURL == "" {
		baseURL = DefaultSubjectURL
	}
	return &KeyedFetcher{Client: c, Source: SourceOccupation, BaseURL: baseURL, Variables: OccupationVariables}
}

// Fetch returns the record for key, or nil when the table has no row for it.
func (f *KeyedFetcher) Fetch(ctx context.Context, key core.GeoKey) (*core.Record, error) {
	table, err := f.Client.Do(ctx, Query{
		Source:  f.Source,
		BaseURL: f.BaseURL,
		Fields:  append([]string{NameColumn}, Codes(f.Variables)...),
		Keys:    []core.GeoKey{key},
	})
	if err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, nil
	}
	rec := sourceRecord(f.Registry, rowKey(table, table.Rows[0], key))
	applyRow(rec, table, table.Rows[0], f.Variables)
	return rec, nil
}

// RaceFetcher queries the decennial race table for all keys at once, split
// into two queries to stay under the field cap. It implements
// core.BatchFetcher.
type RaceFetcher struct {
	Client    *Client
	BaseURL   string
	Variables []Variable
	SplitAt   int
	Registry  *geo.Registry
}

// NewRaceFetcher queries the 2020 DHC table at baseURL.
func NewRaceFetcher(c *Client, baseURL string) *RaceFetcher {
	if baseURL == "" {
		baseURL = DefaultDHCURL
	}
	return &RaceFetcher{Client: c, BaseURL: baseURL, Variables: RaceVariables, SplitAt: RaceSplitAt}
}

// FetchAll issues both chunk queries concurrently and combines their rows into
// one record per returned key, in first-seen order. A key returned by only one
// chunk carries only that chunk's fields. Any chunk failure fails the fetch.
func (f *RaceFetcher) FetchAll(ctx context.Context, keys []core.GeoKey) ([]*core.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	chunks, err := SplitVariables(f.Variables, f.SplitAt)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			table, err := f.Client.Do(gctx, Query{
				Source:  SourceRace,
				BaseURL: f.BaseURL,
				Fields:  append([]string{NameColumn}, Codes(chunk)...),
				Keys:    keys,
			})
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byKey := make(map[core.GeoKey]*core.Record)
	var out []*core.Record
	for i, table := range tables {
		for _, row := range table.Rows {
			key := rowKey(table, row, "")
			if key == "" {
				continue
			}
			rec, ok := byKey[key]
			if !ok {
				rec = sourceRecord(f.Registry, key)
				byKey[key] = rec
				out = append(out, rec)
			}
			applyRow(rec, table, row, chunks[i])
		}
	}
	return out, nil
}

// SplitVariables cuts vars at index at into two chunks. Each chunk plus the
// NAME column must fit under MaxFieldsPerQuery.
func SplitVariables(vars []Variable, at int) ([][]Variable, error) {
	if at <= 0 || at >= len(vars) {
		return nil, fmt.Errorf("split index %d out of range for %d variables", at, len(vars))
	}
	chunks := [][]Variable{vars[:at], vars[at:]}
	for _, chunk := range chunks {
		if len(chunk)+1 > MaxFieldsPerQuery {
			return nil, fmt.Errorf("chunk of %d variables exceeds field limit %d", len(chunk), MaxFieldsPerQuery)
		}
	}
	return chunks, nil
}

// rowKey reads the geo column, falling back when the table lacks it.
func rowKey(table *Table, row []string, fallback core.GeoKey) core.GeoKey {
	if v := table.Cell(row, GeoColumn); v != "" {
		return core.GeoKey(v)
	}
	return fallback
}

// sourceRecord starts an empty record for key carrying its registry name.
func sourceRecord(reg *geo.Registry, key core.GeoKey) *core.Record {
	if reg == nil {
		reg = geo.Rockland()
	}
	name, _ := reg.Name(key)
	return &core.Record{Key: key, Name: name}
}

// applyRow stores the place name and the numeric value of every variable.
// Missing columns and unparseable values become null.
func applyRow(rec *core.Record, table *Table, row []string, vars []Variable) {
	rec.Set(core.FieldPlaceName, core.Text(table.Cell(row, NameColumn)))
	for _, v := range vars {
		rec.Set(v.Field, core.ParseNumber(table.Cell(row, v.Code)))
	}
}
