package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/minutes/internal/logger"
	"github.com/zulandar/minutes/internal/queue"
	"gorm.io/gorm"
)

// DefaultWatchdogSchedule runs the stale-claim sweep every five minutes.
const DefaultWatchdogSchedule = "*/5 * * * *"

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// WatchdogOpts configures Watchdog.
type WatchdogOpts struct {
	DB         *gorm.DB
	Schedule   string
	StaleAfter time.Duration
	Log        *logrus.Entry
}

// Sweep requeues deliveries held by workers silent for longer than
// staleAfter and returns how many were requeued.
func Sweep(db *gorm.DB, staleAfter time.Duration, log *logrus.Entry) (int64, error) {
	n, err := queue.RequeueStale(db, time.Now().Add(-staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 && log != nil {
		log.WithField("requeued", n).Warn("requeued deliveries from stale workers")
	}
	return n, nil
}

// Watchdog runs Sweep on the cron schedule until ctx is cancelled.
func Watchdog(ctx context.Context, opts WatchdogOpts) error {
	if opts.Schedule == "" {
		opts.Schedule = DefaultWatchdogSchedule
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 15 * time.Minute
	}
	log := logger.Component(opts.Log, "watchdog")

	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(opts.Schedule, func() {
		if _, err := Sweep(opts.DB, opts.StaleAfter, log); err != nil {
			log.WithError(err).Error("sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("worker: watchdog schedule %q: %w", opts.Schedule, err)
	}

	log.WithField("schedule", opts.Schedule).Info("watchdog started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
