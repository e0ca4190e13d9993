package notification_test

import (
	"context"
	"errors"
	"sync"

	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/digicoders/feeledger/internal/notification"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

type sent struct {
	Channel, To, Subject, Body string
}

type fakeSender struct {
	mu       sync.Mutex
	out      []sent
	emailErr error
}

func (f *fakeSender) SendEmail(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emailErr != nil {
		return f.emailErr
	}
	f.out = append(f.out, sent{"email", to, subject, body})
	return nil
}

func (f *fakeSender) SendSMS(to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{Channel: "sms", To: to, Body: body})
	return nil
}

func (f *fakeSender) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.out...)
}

var _ = Describe("EventHandler", func() {
	var (
		sender  *fakeSender
		handler *notification.EventHandler
		student events.Student
		ctx     context.Context
	)

	BeforeEach(func() {
		sender = &fakeSender{}
		handler = notification.NewEventHandler(sender, testLogger)
		student = events.Student{RegistrationID: 7, UserID: "DCT2025001", Name: "Asha", Email: "asha@example.com", Mobile: "9876543210"}
		ctx = context.Background()
	})

	It("emails a receipt for a recorded payment", func() {
		e := events.NewPaymentRecordedEvent(student, 1, "DCTREC-2025-482", decimal.NewFromInt(3000), decimal.NewFromInt(3000), decimal.NewFromInt(7000), "cash")

		Expect(handler.HandlePaymentRecorded(ctx, e)).To(Succeed())

		Expect(sender.Sent()).To(HaveLen(1))
		msg := sender.Sent()[0]
		Expect(msg.Channel).To(Equal("email"))
		Expect(msg.Subject).To(Equal("Payment receipt DCTREC-2025-482"))
		Expect(msg.Body).To(ContainSubstring("Rs. 3000.00"))
		Expect(msg.Body).To(ContainSubstring("Remaining: Rs. 7000.00"))
	})

	It("mentions the reversal when a payment is rejected", func() {
		e := events.NewPaymentStatusChangedEvent(student, 1, "DCTREC-2025-482", "pending", "rejected", decimal.NewFromInt(3000), true)

		Expect(handler.HandlePaymentStatusChanged(ctx, e)).To(Succeed())

		Expect(sender.Sent()).To(HaveLen(1))
		Expect(sender.Sent()[0].Body).To(ContainSubstring("removed from your paid balance"))
	})

	It("stays quiet when the status did not change", func() {
		e := events.NewPaymentStatusChangedEvent(student, 1, "DCTREC-2025-482", "accepted", "accepted", decimal.NewFromInt(3000), false)
		Expect(handler.HandlePaymentStatusChanged(ctx, e)).To(Succeed())
		Expect(sender.Sent()).To(BeEmpty())
	})

	It("sends both email and sms on enrollment", func() {
		e := events.NewRegistrationEnrolledEvent(student, decimal.NewFromInt(10000), decimal.Zero, decimal.NewFromInt(10000))

		Expect(handler.HandleRegistrationEnrolled(ctx, e)).To(Succeed())

		Expect(sender.Sent()).To(ConsistOf(
			HaveField("Channel", "email"),
			HaveField("Channel", "sms"),
		))
	})

	It("still sends the sms when the email could not be queued", func() {
		sender.emailErr = errors.New("queue full")
		e := events.NewDuesReminderEvent(student, decimal.NewFromInt(2500))

		Expect(handler.HandleDuesReminder(ctx, e)).To(MatchError("queue full"))
		Expect(sender.Sent()).To(ConsistOf(HaveField("To", "9876543210")))
	})

	It("skips channels the student has no address for", func() {
		student.Mobile = ""
		e := events.NewDuesReminderEvent(student, decimal.NewFromInt(2500))

		Expect(handler.HandleDuesReminder(ctx, e)).To(Succeed())
		Expect(sender.Sent()).To(ConsistOf(HaveField("Channel", "email")))
	})

	It("rejects an event of the wrong type", func() {
		e := events.NewDuesReminderEvent(student, decimal.NewFromInt(2500))
		Expect(handler.HandlePaymentRecorded(ctx, e)).To(MatchError(ContainSubstring("expected PaymentRecordedEvent")))
	})

	It("reacts to events published on the bus", func() {
		bus := events.NewEventBus(testLogger)
		handler.RegisterEventHandlers(bus)

		Expect(bus.PublishSync(ctx, events.NewDuesReminderEvent(student, decimal.NewFromInt(100)))).To(Succeed())
		Expect(sender.Sent()).To(HaveLen(2))
	})
})
