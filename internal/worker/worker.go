// Package worker runs pipeline consumers against the work queue and the
// watchdog that recovers deliveries abandoned by crashed workers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/minutes/internal/logger"
	"github.com/zulandar/minutes/internal/meeting"
	"github.com/zulandar/minutes/internal/pipeline"
	"github.com/zulandar/minutes/internal/queue"
	"gorm.io/gorm"
)

// DefaultPollInterval is how long an idle worker sleeps between claims.
const DefaultPollInterval = 2 * time.Second

// Processor runs the pipeline for one meeting.
type Processor interface {
	Process(ctx context.Context, meetingID string) error
}

// RunOpts configures Run.
type RunOpts struct {
	DB                *gorm.DB
	Processor         Processor
	Concurrency       int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	Policy            queue.RetryPolicy
	Log               *logrus.Entry
}

// Run starts Concurrency consumer loops and blocks until ctx is cancelled
// and every loop has returned. Each loop registers its own worker record.
func Run(ctx context.Context, opts RunOpts) error {
	if opts.DB == nil || opts.Processor == nil {
		return fmt.Errorf("worker: db and processor are required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = queue.DefaultRetryPolicy
	}
	log := logger.Component(opts.Log, "worker")
	hostname, _ := os.Hostname()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	for i := 0; i < opts.Concurrency; i++ {
		w, err := Register(opts.DB, hostname)
		if err != nil {
			errCh <- err
			cancel()
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			loop(ctx, opts, log.WithField("worker_id", id), id)
		}(w.ID)
	}
	wg.Wait()
	close(errCh)
	return <-errCh
}

// loop claims and processes items until ctx is done.
func loop(ctx context.Context, opts RunOpts, log *logrus.Entry, id string) {
	defer func() {
		if err := Deregister(opts.DB, id); err != nil {
			log.WithError(err).Warn("deregister")
		}
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	hbErr := StartHeartbeat(hbCtx, opts.DB, id, opts.HeartbeatInterval)

	log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopping")
			return
		case err := <-hbErr:
			log.WithError(err).Warn("heartbeat failed, retrying next tick")
		default:
		}

		item, err := queue.Claim(opts.DB, id)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) {
				log.WithError(err).Warn("claim failed")
			}
			sleepWithContext(ctx, opts.PollInterval)
			continue
		}
		handle(ctx, opts, log.WithFields(logrus.Fields{"meeting_id": item.MeetingID, "attempt": item.Attempts}), item.ID, item.MeetingID)
	}
}

// handle runs one delivery and settles it in the queue.
func handle(ctx context.Context, opts RunOpts, log *logrus.Entry, itemID uint, meetingID string) {
	err := opts.Processor.Process(ctx, meetingID)
	switch {
	case err == nil:
		if err := queue.Ack(opts.DB, itemID); err != nil {
			log.WithError(err).Error("ack")
		}
	case ctx.Err() != nil:
		log.Info("shutting down mid-run, releasing delivery")
		if err := queue.Release(opts.DB, itemID); err != nil {
			log.WithError(err).Error("release")
		}
	case !pipeline.Retryable(err) || errors.Is(err, meeting.ErrNotFound):
		log.WithError(err).Warn("delivery failed permanently")
		if err := queue.Bury(opts.DB, itemID, err); err != nil {
			log.WithError(err).Error("bury")
		}
	default:
		dead, nerr := queue.Nack(opts.DB, itemID, err, opts.Policy)
		if nerr != nil {
			log.WithError(nerr).Error("nack")
			return
		}
		if dead {
			log.WithError(err).Error("delivery exhausted retries")
		} else {
			log.WithError(err).Warn("delivery failed, will retry")
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
