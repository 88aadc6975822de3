package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/meeting"
	"github.com/zulandar/minutes/internal/models"
	"github.com/zulandar/minutes/internal/queue"
)

func newProcessCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "process <meeting-id>",
		Short: "Run the pipeline for one meeting in the foreground",
		Long:  "Processes a meeting synchronously, bypassing the work queue. Completed meetings are left untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runProcess(cmd *cobra.Command, configPath, id string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return err
	}
	orch, err := buildOrchestrator(cfg, gormDB, blobs, log)
	if err != nil {
		return err
	}

	if err := orch.Process(ctx, id); err != nil {
		return err
	}
	m, err := meeting.Load(gormDB, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Meeting %s: %s (%d action items)\n", m.ID, m.Status, len(m.ActionItems))
	return nil
}

func newEnqueueCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "enqueue <meeting-id>",
		Short: "Queue a meeting for processing",
		Long:  "Adds a delivery for the meeting to the work queue. A meeting already queued or claimed is not queued twice.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runEnqueue(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if _, err := meeting.Load(gormDB, id); err != nil {
		return err
	}
	item, err := queue.Enqueue(gormDB, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s (item %d, %s)\n", id, item.ID, item.Status)
	return nil
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Work queue commands",
	}
	cmd.AddCommand(newQueueStatsCmd())
	return cmd
}

func newQueueStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueStats(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runQueueStats(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	stats, err := queue.Stats(gormDB)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range []string{models.QueueQueued, models.QueueClaimed, models.QueueDone, models.QueueDead} {
		fmt.Fprintf(out, "%-8s %d\n", s, stats[s])
	}
	return nil
}
