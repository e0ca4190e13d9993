package fee

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentTypeRegistration = "registration"
	PaymentTypeInstallment  = "installment"
	PaymentTypeFull         = "full"

	ModeCash   = "cash"
	ModeOnline = "online"
	ModeCheque = "cheque"

	StatusNew      = "new"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"

	TnxStatusPending  = "pending"
	TnxStatusPaid     = "paid"
	TnxStatusFailed   = "failed"
	TnxStatusFullPaid = "full paid"
)

var (
	PaymentTypes = []string{PaymentTypeRegistration, PaymentTypeInstallment, PaymentTypeFull}
	Modes        = []string{ModeCash, ModeOnline, ModeCheque}
	Statuses     = []string{StatusNew, StatusAccepted, StatusRejected}
	TnxStatuses  = []string{TnxStatusPending, TnxStatusPaid, TnxStatusFailed, TnxStatusFullPaid}
)

// Fee is one row of the append-only payment ledger. Amount columns snapshot
// the registration's state right after the payment was applied.
type Fee struct {
	ID             int64           `gorm:"primaryKey" db:"id"`
	RegistrationID int64           `gorm:"column:registration_id;not null;index" db:"registration_id"`
	ReceiptNo      string          `gorm:"column:receipt_no;uniqueIndex;not null" db:"receipt_no"`
	TnxID          *string         `gorm:"column:tnx_id;uniqueIndex" db:"tnx_id"`
	TotalFee       decimal.Decimal `gorm:"column:total_fee;type:numeric(12,2);not null" db:"total_fee"`
	Discount       decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null" db:"discount"`
	FinalFee       decimal.Decimal `gorm:"column:final_fee;type:numeric(12,2);not null" db:"final_fee"`
	PaidAmount     decimal.Decimal `gorm:"column:paid_amount;type:numeric(12,2);not null" db:"paid_amount"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" db:"amount"`
	DueAmount      decimal.Decimal `gorm:"column:due_amount;type:numeric(12,2);not null" db:"due_amount"`
	PaymentType    string          `gorm:"column:payment_type;not null" db:"payment_type"`
	Mode           string          `gorm:"column:mode;not null" db:"mode"`
	Status         string          `gorm:"column:status;not null" db:"status"`
	TnxStatus      string          `gorm:"column:tnx_status;not null" db:"tnx_status"`
	Reversed       bool            `gorm:"column:reversed;not null" db:"reversed"`
	InstallmentNo  *int            `gorm:"column:installment_no" db:"installment_no"`
	QRCodeID       *int64          `gorm:"column:qr_code_id" db:"qr_code_id"`
	HRID           *int64          `gorm:"column:hr_id" db:"hr_id"`
	PaidBy         *int64          `gorm:"column:paid_by" db:"paid_by"`
	VerifiedBy     *int64          `gorm:"column:verified_by" db:"verified_by"`
	ImageURL       *string         `gorm:"column:image_url" db:"image_url"`
	ImageStorageID *string         `gorm:"column:image_storage_id" db:"image_storage_id"`
	Remark         string          `gorm:"column:remark" db:"remark"`
	PaymentDate    time.Time       `gorm:"column:payment_date;not null;index" db:"payment_date"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" db:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" db:"updated_at"`
}

func (Fee) TableName() string {
	return "fees"
}

// FeeWithRegistration is the shape returned by the fees x registrations join.
type FeeWithRegistration struct {
	Fee
	StudentName          string          `db:"student_name"`
	FatherName           string          `db:"father_name"`
	Email                string          `db:"email"`
	Mobile               string          `db:"mobile"`
	StudentUserID        string          `db:"student_user_id"`
	CollegeName          string          `db:"college_name"`
	Branch               string          `db:"branch"`
	Batch                string          `db:"batch"`
	RegPaidAmount        decimal.Decimal `db:"reg_paid_amount"`
	RegDueAmount         decimal.Decimal `db:"reg_due_amount"`
	RegFinalFee          decimal.Decimal `db:"reg_final_fee"`
	RegTrainingFeeStatus string          `db:"reg_training_fee_status"`
}
