package registration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ReminderJob performs one dues reminder run and reports how many reminders went out.
type ReminderJob func(ctx context.Context) (int, error)

// RunReminderSchedule fires job on the cron spec until ctx is cancelled.
// A run still in progress when the next tick arrives causes that tick to be skipped.
func RunReminderSchedule(ctx context.Context, spec string, runTimeout time.Duration, job ReminderJob, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	cronLog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	_, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()

		started := time.Now()
		sent, err := job(runCtx)
		if err != nil {
			logger.Error("scheduled dues reminder run failed", "error", err)
			return
		}
		logger.Info("scheduled dues reminder run finished", "reminders", sent, "duration", time.Since(started))
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}

	logger.Info("dues reminder schedule started", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("dues reminder schedule stopped")
	return nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
