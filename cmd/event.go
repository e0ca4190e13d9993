package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/digicoders/feeledger/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish sample ledger events to exercise the notification handlers.`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample ledger event",
	Long: fmt.Sprintf("Publish a sample event of one of the types %s, %s, %s or %s.",
		events.EventTypePaymentRecorded, events.EventTypePaymentStatusChanged,
		events.EventTypeRegistrationEnrolled, events.EventTypeDuesReminder),
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var (
	eventEmail  string
	eventMobile string
)

func sampleEvent(eventType string) (events.Event, error) {
	student := events.Student{
		RegistrationID: 0,
		UserID:         "DCT-SAMPLE",
		Name:           "Sample Student",
		Email:          eventEmail,
		Mobile:         eventMobile,
	}
	amount := decimal.NewFromInt(3000)
	due := decimal.NewFromInt(7000)

	switch eventType {
	case events.EventTypePaymentRecorded:
		return events.NewPaymentRecordedEvent(student, 0, "DCTREC-0000-100", amount, amount, due, "cash"), nil
	case events.EventTypePaymentStatusChanged:
		return events.NewPaymentStatusChangedEvent(student, 0, "DCTREC-0000-100", "new", "accepted", amount, false), nil
	case events.EventTypeRegistrationEnrolled:
		return events.NewRegistrationEnrolledEvent(student, amount.Add(due), amount, due), nil
	case events.EventTypeDuesReminder:
		return events.NewDuesReminderEvent(student, due), nil
	}
	return nil, fmt.Errorf("unknown event type %q", eventType)
}

func publishTestEvent(eventType string) {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.LoggerWrapper()

	event, err := sampleEvent(eventType)
	if err != nil {
		log.Error("cannot build event", "error", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(log)
	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		log.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})
	notifier := initNotifications(config.Notification, eventBus, log)

	log.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(context.Background(), event); err != nil {
		log.Error("failed to publish event", "error", err)
	}

	if notifier != nil {
		drainNotifier(notifier, log)
	}
	log.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventEmail, "email", "student@example.com", "recipient email of the sample student")
	publishEventCmd.Flags().StringVar(&eventMobile, "mobile", "", "recipient mobile of the sample student")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
