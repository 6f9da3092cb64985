package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rocklandcensus/internal/geo"
)

// KeyFetcher queries a source once per key. A nil record with a nil error
// means the source has no row for the key.
type KeyFetcher interface {
	Fetch(ctx context.Context, key GeoKey) (*Record, error)
}

// BatchFetcher queries a source for many keys at once. The returned records
// are in no particular order and may cover only some of the keys.
type BatchFetcher interface {
	FetchAll(ctx context.Context, keys []GeoKey) ([]*Record, error)
}

// KeyFetcherFunc adapts a function to KeyFetcher.
type KeyFetcherFunc func(ctx context.Context, key GeoKey) (*Record, error)

// Fetch implements KeyFetcher.
func (f KeyFetcherFunc) Fetch(ctx context.Context, key GeoKey) (*Record, error) { return f(ctx, key) }

// BatchFetcherFunc adapts a function to BatchFetcher.
type BatchFetcherFunc func(ctx context.Context, keys []GeoKey) ([]*Record, error)

// FetchAll implements BatchFetcher.
func (f BatchFetcherFunc) FetchAll(ctx context.Context, keys []GeoKey) ([]*Record, error) {
	return f(ctx, keys)
}

// Builder assembles datasets by querying every source concurrently and
// merging the results.
type Builder struct {
	Registry   *geo.Registry
	Income     KeyFetcher
	Occupation KeyFetcher
	Race       BatchFetcher

	// Concurrency caps in-flight per-key queries for each source. Zero means
	// no limit.
	Concurrency int

	Logger  *zap.Logger
	Metrics MetricsRecorder
	Tracer  Tracer
}

// NewBuilder constructs a builder over the three sources.
func NewBuilder(reg *geo.Registry, income, occupation KeyFetcher, race BatchFetcher) *Builder {
	return &Builder{Registry: reg, Income: income, Occupation: occupation, Race: race}
}

// Build fetches every source for keys and merges the results in key order.
// The first failing query cancels the rest and its error is returned without
// a dataset. Keys are expected to be validated already.
func (b *Builder) Build(ctx context.Context, keys []GeoKey) (Dataset, error) {
	if b.Registry == nil || b.Income == nil || b.Occupation == nil || b.Race == nil {
		return nil, errors.New("dataset builder not configured")
	}
	logger := b.logger()
	ctx, span := b.tracer().Start(ctx, "dataset.build")
	started := time.Now()

	src := SourceResults{
		Income:     make([]*Record, len(keys)),
		Occupation: make([]*Record, len(keys)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.fanOut(gctx, "income", b.Income, keys, src.Income)
	})
	g.Go(func() error {
		return b.fanOut(gctx, "occupation", b.Occupation, keys, src.Occupation)
	})
	g.Go(func() error {
		records, err := b.observe(gctx, "source.race", func(c context.Context) ([]*Record, error) {
			return b.Race.FetchAll(c, keys)
		})
		if err != nil {
			return err
		}
		src.Race = records
		return nil
	})

	err := g.Wait()
	b.metrics().Observe(ctx, "dataset.build", err == nil, time.Since(started))
	span.End(err)
	if err != nil {
		logger.Warn("dataset build failed", zap.Int("keys", len(keys)), zap.Error(err))
		return nil, err
	}

	dataset := Merge(b.Registry, keys, src)
	logger.Debug("dataset built",
		zap.Int("keys", len(keys)),
		zap.Int("race_rows", len(src.Race)),
		zap.Duration("elapsed", time.Since(started)))
	return dataset, nil
}

// fanOut runs one query per key and stores each result at the key's index.
func (b *Builder) fanOut(ctx context.Context, source string, f KeyFetcher, keys []GeoKey, slots []*Record) error {
	g, gctx := errgroup.WithContext(ctx)
	if b.Concurrency > 0 {
		g.SetLimit(b.Concurrency)
	}
	op := "source." + source
	for i, key := range keys {
		g.Go(func() error {
			start := time.Now()
			rec, err := f.Fetch(gctx, key)
			b.metrics().Observe(gctx, op, err == nil, time.Since(start))
			if err != nil {
				return err
			}
			slots[i] = rec
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) observe(ctx context.Context, op string, fn func(context.Context) ([]*Record, error)) ([]*Record, error) {
	start := time.Now()
	records, err := fn(ctx)
	b.metrics().Observe(ctx, op, err == nil, time.Since(start))
	return records, err
}

func (b *Builder) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func (b *Builder) metrics() MetricsRecorder {
	if b.Metrics == nil {
		return noopMetrics{}
	}
	return b.Metrics
}

func (b *Builder) tracer() Tracer {
	if b.Tracer == nil {
		return noopTracer{}
	}
	return b.Tracer
}
