package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentRecorded      = "payment.recorded"
	EventTypePaymentStatusChanged = "payment.status_changed"
	EventTypeRegistrationEnrolled = "registration.enrolled"
	EventTypeDuesReminder         = "registration.dues_reminder"
)

// Student carries the contact details notifications are addressed to.
type Student struct {
	RegistrationID int64  `json:"registration_id"`
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Mobile         string `json:"mobile"`
}

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type PaymentRecordedEvent struct {
	BaseEvent
	Student    Student         `json:"student"`
	FeeID      int64           `json:"fee_id"`
	ReceiptNo  string          `json:"receipt_no"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	DueAmount  decimal.Decimal `json:"due_amount"`
	Mode       string          `json:"mode"`
}

func NewPaymentRecordedEvent(student Student, feeID int64, receiptNo string, amount, paid, due decimal.Decimal, mode string) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseEvent: newBase(EventTypePaymentRecorded, map[string]interface{}{
			"registration_id": student.RegistrationID,
			"fee_id":          feeID,
			"receipt_no":      receiptNo,
			"amount":          amount.String(),
			"paid_amount":     paid.String(),
			"due_amount":      due.String(),
			"mode":            mode,
		}),
		Student:    student,
		FeeID:      feeID,
		ReceiptNo:  receiptNo,
		Amount:     amount,
		PaidAmount: paid,
		DueAmount:  due,
		Mode:       mode,
	}
}

type PaymentStatusChangedEvent struct {
	BaseEvent
	Student   Student         `json:"student"`
	FeeID     int64           `json:"fee_id"`
	ReceiptNo string          `json:"receipt_no"`
	OldStatus string          `json:"old_status"`
	NewStatus string          `json:"new_status"`
	Amount    decimal.Decimal `json:"amount"`
	Reversed  bool            `json:"reversed"`
}

func NewPaymentStatusChangedEvent(student Student, feeID int64, receiptNo, oldStatus, newStatus string, amount decimal.Decimal, reversed bool) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseEvent: newBase(EventTypePaymentStatusChanged, map[string]interface{}{
			"registration_id": student.RegistrationID,
			"fee_id":          feeID,
			"receipt_no":      receiptNo,
			"old_status":      oldStatus,
			"new_status":      newStatus,
			"amount":          amount.String(),
			"reversed":        reversed,
		}),
		Student:   student,
		FeeID:     feeID,
		ReceiptNo: receiptNo,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Amount:    amount,
		Reversed:  reversed,
	}
}

type RegistrationEnrolledEvent struct {
	BaseEvent
	Student    Student         `json:"student"`
	FinalFee   decimal.Decimal `json:"final_fee"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	DueAmount  decimal.Decimal `json:"due_amount"`
}

func NewRegistrationEnrolledEvent(student Student, finalFee, paid, due decimal.Decimal) *RegistrationEnrolledEvent {
	return &RegistrationEnrolledEvent{
		BaseEvent: newBase(EventTypeRegistrationEnrolled, map[string]interface{}{
			"registration_id": student.RegistrationID,
			"user_id":         student.UserID,
			"final_fee":       finalFee.String(),
			"paid_amount":     paid.String(),
			"due_amount":      due.String(),
		}),
		Student:    student,
		FinalFee:   finalFee,
		PaidAmount: paid,
		DueAmount:  due,
	}
}

type DuesReminderEvent struct {
	BaseEvent
	Student   Student         `json:"student"`
	DueAmount decimal.Decimal `json:"due_amount"`
}

func NewDuesReminderEvent(student Student, due decimal.Decimal) *DuesReminderEvent {
	return &DuesReminderEvent{
		BaseEvent: newBase(EventTypeDuesReminder, map[string]interface{}{
			"registration_id": student.RegistrationID,
			"due_amount":      due.String(),
		}),
		Student:   student,
		DueAmount: due,
	}
}
