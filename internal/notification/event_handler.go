package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digicoders/feeledger/internal/core/events"
)

// Sender is satisfied by *Client.
type Sender interface {
	SendEmail(to, subject, body string) error
	SendSMS(to, body string) error
}

// EventHandler turns ledger events into student notifications.
type EventHandler struct {
	sender Sender
	logger *slog.Logger
}

func NewEventHandler(sender Sender, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{sender: sender, logger: logger}
}

func (h *EventHandler) HandlePaymentRecorded(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentRecordedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentRecordedEvent, got %T", event)
	}

	subject := "Payment receipt " + e.ReceiptNo
	body := fmt.Sprintf("Dear %s,\n\nWe have received your payment of Rs. %s (%s).\nReceipt no: %s\nTotal paid: Rs. %s\nRemaining: Rs. %s\n",
		e.Student.Name, e.Amount.StringFixed(2), e.Mode, e.ReceiptNo, e.PaidAmount.StringFixed(2), e.DueAmount.StringFixed(2))

	return h.notify(e.Student, subject, body, "")
}

func (h *EventHandler) HandlePaymentStatusChanged(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentStatusChangedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentStatusChangedEvent, got %T", event)
	}
	if e.OldStatus == e.NewStatus {
		return nil
	}

	subject := "Payment " + e.ReceiptNo + " " + e.NewStatus
	body := fmt.Sprintf("Dear %s,\n\nYour payment of Rs. %s with receipt no %s has been %s.\n",
		e.Student.Name, e.Amount.StringFixed(2), e.ReceiptNo, e.NewStatus)
	if e.Reversed {
		body += "The amount has been removed from your paid balance. Please contact the office.\n"
	}

	return h.notify(e.Student, subject, body, "")
}

func (h *EventHandler) HandleRegistrationEnrolled(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.RegistrationEnrolledEvent)
	if !ok {
		return fmt.Errorf("expected RegistrationEnrolledEvent, got %T", event)
	}

	subject := "Welcome to DigiCoders"
	body := fmt.Sprintf("Dear %s,\n\nYour registration is confirmed. Your student id is %s.\nCourse fee: Rs. %s\nPaid: Rs. %s\nDue: Rs. %s\n",
		e.Student.Name, e.Student.UserID, e.FinalFee.StringFixed(2), e.PaidAmount.StringFixed(2), e.DueAmount.StringFixed(2))
	sms := fmt.Sprintf("Welcome to DigiCoders %s. Your student id is %s.", e.Student.Name, e.Student.UserID)

	return h.notify(e.Student, subject, body, sms)
}

func (h *EventHandler) HandleDuesReminder(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.DuesReminderEvent)
	if !ok {
		return fmt.Errorf("expected DuesReminderEvent, got %T", event)
	}

	subject := "Fee reminder"
	body := fmt.Sprintf("Dear %s,\n\nRs. %s of your training fee is still due. Please clear it at the earliest.\n",
		e.Student.Name, e.DueAmount.StringFixed(2))
	sms := fmt.Sprintf("Dear %s, Rs. %s of your DigiCoders training fee is due.", e.Student.Name, e.DueAmount.StringFixed(2))

	return h.notify(e.Student, subject, body, sms)
}

// notify sends the email, and the sms when one is given. Both are attempted
// even if the first fails.
func (h *EventHandler) notify(student events.Student, subject, body, sms string) error {
	var firstErr error

	if student.Email != "" {
		if err := h.sender.SendEmail(student.Email, subject, body); err != nil {
			h.logger.Warn("failed to queue email", "error", err, "registration_id", student.RegistrationID)
			firstErr = err
		}
	}
	if sms != "" && student.Mobile != "" {
		if err := h.sender.SendSMS(student.Mobile, sms); err != nil {
			h.logger.Warn("failed to queue sms", "error", err, "registration_id", student.RegistrationID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentRecorded, h.HandlePaymentRecorded)
	eventBus.Subscribe(events.EventTypePaymentStatusChanged, h.HandlePaymentStatusChanged)
	eventBus.Subscribe(events.EventTypeRegistrationEnrolled, h.HandleRegistrationEnrolled)
	eventBus.Subscribe(events.EventTypeDuesReminder, h.HandleDuesReminder)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{
			events.EventTypePaymentRecorded,
			events.EventTypePaymentStatusChanged,
			events.EventTypeRegistrationEnrolled,
			events.EventTypeDuesReminder,
		})
}
