// Package testutil hosts helper utilities for dataset adapter tests. It
// provides in-memory statistical sources so adapter tests exercise the real
// builder and merge engine without a census server.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
)

// Sources answers the three census sources from memory. Income carries the
// place name and MedianIncome, Occupation carries Occupation_Total and Race
// carries Total.
type Sources struct {
	calls atomic.Int64

	mu      sync.Mutex
	failKey core.GeoKey
	// NoOccupation lists keys the occupation source has no row for.
	NoOccupation map[core.GeoKey]bool
}

// NewSources returns sources with data for every key.
func NewSources() *Sources {
	return &Sources{NoOccupation: map[core.GeoKey]bool{}}
}

// FailIncomeFor makes the income source fail for key with a 502.
func (s *Sources) FailIncomeFor(key core.GeoKey) {
	s.mu.Lock()
	s.failKey = key
	s.mu.Unlock()
}

// Calls reports how many source queries have run.
func (s *Sources) Calls() int64 { return s.calls.Load() }

// Builder wires the sources into a builder over the Rockland registry.
func (s *Sources) Builder() *core.Builder {
	income := core.KeyFetcherFunc(func(_ context.Context, key core.GeoKey) (*core.Record, error) {
		s.calls.Add(1)
		s.mu.Lock()
		fail := key == s.failKey
		s.mu.Unlock()
		if fail {
			return nil, &core.UpstreamError{Source: "income", Key: string(key), Status: http.StatusBadGateway, Body: "boom"}
		}
		rec := &core.Record{Key: key}
		rec.Set(core.FieldPlaceName, core.Text("ZCTA5 "+string(key)))
		rec.Set("MedianIncome", core.Number(101000))
		return rec, nil
	})
	occupation := core.KeyFetcherFunc(func(_ context.Context, key core.GeoKey) (*core.Record, error) {
		s.calls.Add(1)
		if s.NoOccupation[key] {
			return nil, nil
		}
		rec := &core.Record{Key: key}
		rec.Set("Occupation_Total", core.Number(5000))
		return rec, nil
	})
	race := core.BatchFetcherFunc(func(_ context.Context, keys []core.GeoKey) ([]*core.Record, error) {
		s.calls.Add(1)
		out := make([]*core.Record, 0, len(keys))
		for _, key := range keys {
			rec := &core.Record{Key: key}
			rec.Set("Total", core.Number(12000))
			out = append(out, rec)
		}
		return out, nil
	})
	return core.NewBuilder(geo.Rockland(), income, occupation, race)
}
