package main

import (
	"sync"

	"github.com/spf13/cobra"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/intake"
	"github.com/zulandar/minutes/internal/server"
	"github.com/zulandar/minutes/internal/worker"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Serves the meetings API. With --workers > 0, pipeline workers and the watchdog run in the same process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, workers)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of in-process pipeline workers")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port, workers int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Server.Port
	}
	log := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	svc := intake.New(intake.Options{
		DB:       gormDB,
		Blobs:    blobs,
		Prefix:   cfg.Blob.Prefix,
		MaxBytes: cfg.Server.MaxUploadBytes,
		Log:      log,
	})

	var wg sync.WaitGroup
	if workers > 0 {
		orch, err := buildOrchestrator(cfg, gormDB, blobs, log)
		if err != nil {
			return err
		}
		runOpts := workerRunOpts(cfg, gormDB, orch, log)
		runOpts.Concurrency = workers
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx, runOpts); err != nil {
				log.WithError(err).Error("workers stopped")
				cancel()
			}
		}()
		go func() {
			defer wg.Done()
			if err := worker.Watchdog(ctx, watchdogOpts(cfg, gormDB, log)); err != nil {
				log.WithError(err).Error("watchdog stopped")
			}
		}()
	}

	err = server.Start(ctx, server.StartOpts{
		DB:             gormDB,
		Intake:         svc,
		Port:           port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Log:            log,
	})
	cancel()
	wg.Wait()
	return err
}
