package main

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"rocklandcensus/internal/blob"
	"rocklandcensus/internal/census"
	"rocklandcensus/internal/config"
	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
	"rocklandcensus/internal/infra/persistence"
	"rocklandcensus/internal/narrative"
	"rocklandcensus/internal/reports"
)

// newBuilder wires the three census sources into a dataset builder.
func newBuilder(cfg *config.Config, httpClient *http.Client, logger *zap.Logger, metrics core.MetricsRecorder, tracer core.Tracer) *core.Builder {
	client := census.NewClient(httpClient, cfg.Census.APIKey, logger.Named("census"))
	b := core.NewBuilder(
		geo.Rockland(),
		census.NewIncomeFetcher(client, cfg.Census.ACS5URL),
		census.NewOccupationFetcher(client, cfg.Census.SubjectURL),
		census.NewRaceFetcher(client, cfg.Census.DHCURL),
	)
	b.Concurrency = cfg.Census.Concurrency
	b.Logger = logger.Named("builder")
	b.Metrics = metrics
	b.Tracer = tracer
	return b
}

func narrativeConfig(cfg *config.Config) narrative.Config {
	n := cfg.Narrative
	return narrative.Config{
		Provider:      n.Provider,
		OpenAIKey:     n.OpenAIKey,
		OpenAIBaseURL: n.OpenAIBaseURL,
		OpenAIModel:   n.OpenAIModel,
		GeminiKey:     n.GeminiKey,
		GeminiBaseURL: n.GeminiBaseURL,
		GeminiModel:   n.GeminiModel,
	}
}

// newNarrator returns nil without error when no provider key is configured.
func newNarrator(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *zap.Logger, metrics core.MetricsRecorder, tracer core.Tracer) (narrative.Narrator, error) {
	n, err := narrative.New(ctx, narrativeConfig(cfg), httpClient, logger.Named("narrative"))
	if errors.Is(err, narrative.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return narrative.Observed{Next: n, Metrics: metrics, Tracer: tracer}, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	b := cfg.Blob
	return blob.Open(ctx, blob.Config{
		Driver: b.Driver,
		FSRoot: b.FSRoot,
		S3: blob.S3Config{
			Bucket:    b.S3Bucket,
			Region:    b.S3Region,
			Endpoint:  b.S3Endpoint,
			PathStyle: b.S3PathStyle,
		},
	})
}

func openReports(ctx context.Context, cfg *config.Config) (reports.Store, error) {
	return persistence.Open(ctx, persistence.Config{
		Driver:      cfg.Store.Driver,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
	})
}
