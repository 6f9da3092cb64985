package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rocklandcensus/internal/adapters/datasets"
	"rocklandcensus/internal/core"
	"rocklandcensus/internal/geo"
)

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// buildHandler assembles the API handler and the archive worker behind it.
// The caller starts and stops the archiver.
func buildHandler(ctx context.Context, c *cli, promReg *prometheus.Registry) (*datasets.Handler, *datasets.Archiver, func() error, error) {
	cfg, logger := c.cfg, c.logger

	prom, err := core.NewPrometheusMetricsRecorder(promReg)
	if err != nil {
		return nil, nil, nil, err
	}
	metrics := core.MultiRecorder{prom, core.NewExpvarMetricsRecorder("")}
	httpClient := &http.Client{}

	narrator, err := newNarrator(ctx, cfg, httpClient, logger, metrics, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("narrative: %w", err)
	}
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("blob store: %w", err)
	}
	store, err := openReports(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("report store: %w", err)
	}
	archiver := datasets.NewArchiver(store, blobs, datasets.ZapAuditLogger{Logger: logger.Named("audit")}, logger.Named("archive"))

	h := datasets.NewHandler(geo.Rockland(), newBuilder(cfg, httpClient, logger, metrics, nil))
	h.Narrator = narrator
	h.NarrativeProvider = narrativeConfig(cfg).ResolvedProvider()
	h.NarrativeKeyName = cfg.NarrativeKeyName()
	h.CensusKeySet = cfg.Census.APIKey != ""
	h.Archive = archiver
	h.ArtifactURLExpiry = cfg.GetURLExpiry()
	h.MetricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	h.Metrics = metrics
	h.AllowedOrigins = cfg.Server.AllowedOrigins
	h.Timeouts = datasets.Timeouts{
		Health:   cfg.GetHealthTimeout(),
		ZipData:  cfg.GetZipDataTimeout(),
		AIReport: cfg.GetAIReportTimeout(),
	}
	h.Logger = logger.Named("http")
	return h, archiver, store.Close, nil
}

func serve(ctx context.Context, c *cli) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, archiver, closeStore, err := buildHandler(ctx, c, promReg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			c.logger.Warn("close report store", zap.Error(err))
		}
	}()
	archiver.Start()

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.Bool("narrative", handler.Narrator != nil),
			zap.String("provider", handler.NarrativeProvider))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = archiver.Stop(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.GetShutdownTimeout())
	defer cancel()
	c.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("http shutdown", zap.Error(err))
	}
	if err := archiver.Stop(shutdownCtx); err != nil {
		c.logger.Warn("archive shutdown", zap.Error(err))
	}
	return nil
}
