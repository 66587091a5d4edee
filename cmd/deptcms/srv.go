package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"deptcms/internal/blobstore"
	"deptcms/internal/config"
	"deptcms/internal/ingest"
	"deptcms/internal/refs"
	"deptcms/internal/server"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the deptcms API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening control database", "path", cfg.ControlDBPath())
			st, err := openControlStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			observer, err := blobstore.NewPrometheusObserver("deptcms_blobstore", reg)
			if err != nil {
				return err
			}
			recorder, err := ingest.NewPrometheusRecorder("deptcms_ingest", reg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry, err := openRegistry(ctx, cfg, st, observer, slog.Default())
			if err != nil {
				return err
			}
			defer func() {
				if err := registry.Close(); err != nil {
					logger.Error("close tenant registry", "error", err)
				}
			}()
			logger.Info("storage configured", "backend", cfg.Storage.Backend, "tenant_dir", cfg.TenantDir())

			pipeline := ingest.New(ingest.Options{
				MaxFieldBytes:     cfg.Uploads.MaxFieldBytes,
				AllowedMediaTypes: cfg.Uploads.AllowedMediaTypes,
				Recorder:          recorder,
				Logger:            slog.Default().With("component", "ingest"),
			})

			srv := server.New(addr, server.Options{
				Auth:           st,
				Registry:       registry,
				Pipeline:       pipeline,
				Refs:           refs.New(slog.Default()),
				MaxUploadBytes: cfg.Uploads.MaxUploadBytes,
				AllowedOrigins: cfg.Public.AllowedOrigins,
				TenantHeader:   cfg.Public.TenantHeader,
				Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
				Logger:         logger,
			})
			return srv.ListenAndServe(ctx)
		},
	}
}
