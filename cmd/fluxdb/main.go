// Package main implements the fluxdb command-line entry point: a
// process that opens the engine and serves its ops HTTP surface. There is
// no interactive read/write REPL here; that surface is an explicit
// non-goal of the engine.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dsjohal14/fluxdb"
	"github.com/dsjohal14/fluxdb/internal/config"
	"github.com/dsjohal14/fluxdb/internal/httpapi"
	"github.com/dsjohal14/fluxdb/internal/obs"
)

var version = "dev"

func main() {
	root := &cobra.Command{Use: "fluxdb", Short: "fluxdb durable document store"}
	root.AddCommand(serveCmd(), versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the fluxdb version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "open the engine and serve its health/metrics surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	obs.InitLogger(cfg.LogLevel)
	logger := obs.Logger("fluxdb")

	db, err := fluxdb.Open(cfg.DataDir, fluxdb.Options{
		SegmentSizeLimit:       cfg.SegmentSizeLimit,
		FsyncInterval:          cfg.FsyncInterval,
		SnapshotInterval:       cfg.SnapshotInterval,
		SnapshotEveryWrites:    cfg.SnapshotEveryWrites,
		CommandChanCapacity:    cfg.CommandChanCapacity,
		SubscriberChanCapacity: cfg.SubscriberChanCapacity,
		Logger:                 &logger,
	})
	if err != nil {
		return fmt.Errorf("open fluxdb at %s: %w", cfg.DataDir, err)
	}

	handler := httpapi.NewHandler(logger, db.Closed)
	router := httpapi.NewRouter(handler, db.Registry())

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info().Str("addr", addr).Str("data_dir", cfg.DataDir).Msg("fluxdb serving")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("ops server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	_ = srv.Close()
	return db.Close()
}
