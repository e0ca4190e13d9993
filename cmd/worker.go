package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digicoders/feeledger/internal/core/common/serial"
	"github.com/digicoders/feeledger/internal/core/common/txretry"
	"github.com/digicoders/feeledger/internal/core/database"
	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/digicoders/feeledger/internal/registration"
	registrationPostgres "github.com/digicoders/feeledger/internal/registration/postgres"
	"github.com/digicoders/feeledger/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background jobs",
	Long:  `Run background jobs such as dues reminders and the notification dispatcher.`,
}

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Send dues reminders to every student with an outstanding balance",
	Long: `Send dues reminders once and exit, or with --schedule keep running and send them on a cron schedule
(for example "0 9 * * *" for every morning at nine) until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDuesReminders()
	},
}

var notifierCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Start the notification worker pool",
	Long:  `Start the email/SMS worker pool and keep it running until interrupted. Useful for checking provider connectivity.`,
	Run: func(cmd *cobra.Command, args []string) {
		startNotificationWorker()
	},
}

var (
	maxWorkers       int
	jobQueueSize     int
	reminderSchedule string
)

func runDuesReminders() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.LoggerWrapper()

	db, err := database.Connect(config.Database)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	gdb, err := database.OpenGorm(db)
	if err != nil {
		log.Error("failed to open gorm", "error", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(log)
	notifier := initNotifications(config.Notification, eventBus, log)

	service := registration.NewService(
		registrationPostgres.NewRegistrationRepository(gdb),
		serial.NewGenerator(config.Ledger.ReceiptPrefix),
		eventBus,
		txretry.Policy{MaxRetries: config.Ledger.MaxWriteRetries, Backoff: config.Ledger.RetryBackoff},
		log,
	)

	job := func(ctx context.Context) (int, error) {
		sent, err := service.SendDuesReminders(ctx)
		eventBus.Wait()
		return sent, err
	}

	if reminderSchedule == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		sent, err := job(ctx)
		if err != nil {
			log.Error("dues reminder run failed", "error", err)
		}
		if notifier != nil {
			drainNotifier(notifier, log)
		}
		log.Info("dues reminder run finished", "reminders", sent)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := registration.RunReminderSchedule(ctx, reminderSchedule, 5*time.Minute, job, log); err != nil {
		log.Error("failed to start dues reminder schedule", "error", err)
		os.Exit(1)
	}
	if notifier != nil {
		drainNotifier(notifier, log)
	}
}

func startNotificationWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.LoggerWrapper()

	notifyCfg := config.Notification
	notifyCfg.Enabled = true
	notifyCfg.MaxWorkers = getIntFlag(maxWorkers, notifyCfg.MaxWorkers)
	notifyCfg.JobQueueSize = getIntFlag(jobQueueSize, notifyCfg.JobQueueSize)

	log.Info("starting notification worker",
		"max_workers", notifyCfg.MaxWorkers,
		"job_queue_size", notifyCfg.JobQueueSize,
		"email_api_url", notifyCfg.EmailAPIURL,
		"sms_api_url", notifyCfg.SMSAPIURL)

	eventBus := events.NewEventBus(log)
	client := initNotifications(notifyCfg, eventBus, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("notification worker is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down notification worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		eventBus.Wait()
		drainNotifier(client, log)
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		log.Info("notification worker pool shutdown complete")
	case <-ctx.Done():
		log.Warn("shutdown timeout reached, forcing exit")
	}
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	remindersCmd.Flags().StringVar(&reminderSchedule, "schedule", "", `Cron schedule for repeated runs, e.g. "0 9 * * *" (runs once when empty)`)
	notifierCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	notifierCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")

	workerCmd.AddCommand(remindersCmd)
	workerCmd.AddCommand(notifierCmd)

	rootCmd.AddCommand(workerCmd)
}
