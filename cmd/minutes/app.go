package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/config"
	"github.com/zulandar/minutes/internal/db"
	"github.com/zulandar/minutes/internal/logger"
	"github.com/zulandar/minutes/internal/notify"
	"github.com/zulandar/minutes/internal/pipeline"
	"github.com/zulandar/minutes/internal/summarize"
	"github.com/zulandar/minutes/internal/transcode"
	"github.com/zulandar/minutes/internal/transcribe"
	"gorm.io/gorm"
)

// loadConfig loads .env files next to the process and then the YAML config.
func loadConfig(configPath string) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *logrus.Entry {
	return logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
}

// buildOrchestrator wires the pipeline's collaborators from cfg.
func buildOrchestrator(cfg *config.Config, gormDB *gorm.DB, blobs blob.Store, log *logrus.Entry) (*pipeline.Orchestrator, error) {
	notifier, err := notify.New(cfg.Notify, log)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Deps{
		DB:             gormDB,
		Blobs:          blobs,
		Transcoder:     transcode.New(cfg.Encoder),
		Transcriber:    transcribe.New(cfg.OpenAI),
		Summarizer:     summarize.New(cfg.OpenAI),
		Notifier:       notifier,
		Log:            log,
		SegmentSeconds: cfg.Encoder.SegmentSeconds,
	}), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
