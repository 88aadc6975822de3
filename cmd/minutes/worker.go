package main

import (
	"fmt"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/config"
	"github.com/zulandar/minutes/internal/queue"
	"github.com/zulandar/minutes/internal/worker"
	"gorm.io/gorm"
)

func newWorkerCmd() *cobra.Command {
	var (
		configPath  string
		concurrency int
		noWatchdog  bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run pipeline workers",
		Long:  "Claims queued meetings and runs the transcription pipeline until interrupted. The stale-claim watchdog runs alongside unless --no-watchdog is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, configPath, concurrency, noWatchdog)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "number of worker loops (overrides worker.concurrency)")
	cmd.Flags().BoolVar(&noWatchdog, "no-watchdog", false, "do not run the stale-claim watchdog")

	cmd.AddCommand(newWorkerListCmd())
	return cmd
}

func workerRunOpts(cfg *config.Config, gormDB *gorm.DB, p worker.Processor, log *logrus.Entry) worker.RunOpts {
	return worker.RunOpts{
		DB:                gormDB,
		Processor:         p,
		Concurrency:       cfg.Worker.Concurrency,
		PollInterval:      cfg.Worker.PollInterval,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		Policy: queue.RetryPolicy{
			MaxAttempts:     cfg.Worker.MaxAttempts,
			InitialInterval: queue.DefaultRetryPolicy.InitialInterval,
			MaxInterval:     queue.DefaultRetryPolicy.MaxInterval,
		},
		Log: log,
	}
}

func watchdogOpts(cfg *config.Config, gormDB *gorm.DB, log *logrus.Entry) worker.WatchdogOpts {
	return worker.WatchdogOpts{
		DB:         gormDB,
		Schedule:   cfg.Worker.WatchdogSchedule,
		StaleAfter: cfg.Worker.StaleAfter,
		Log:        log,
	}
}

func runWorker(cmd *cobra.Command, configPath string, concurrency int, noWatchdog bool) error {
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

	runOpts := workerRunOpts(cfg, gormDB, orch, log)
	if concurrency > 0 {
		runOpts.Concurrency = concurrency
	}

	var wg sync.WaitGroup
	if !noWatchdog {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Watchdog(ctx, watchdogOpts(cfg, gormDB, log)); err != nil {
				log.WithError(err).Error("watchdog stopped")
			}
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Running %d worker(s)\n", runOpts.Concurrency)
	err = worker.Run(ctx, runOpts)
	cancel()
	wg.Wait()
	return err
}

func newWorkerListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerList(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runWorkerList(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ws, err := worker.List(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ws) == 0 {
		fmt.Fprintln(out, "No workers found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOST\tSTATUS\tMEETING\tLAST SEEN")
	for _, wk := range ws {
		m := wk.CurrentMeeting
		if m == "" {
			m = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", wk.ID, wk.Hostname, wk.Status, m, timeAgo(wk.LastActivity))
	}
	w.Flush()
	return nil
}

// timeAgo formats how long ago t was, in whole seconds, minutes or hours.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
