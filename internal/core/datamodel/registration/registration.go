package registration

import (
	"time"

	"github.com/shopspring/decimal"
)

type Registration struct {
	ID                int64           `gorm:"primaryKey" db:"id"`
	UserID            string          `gorm:"column:user_id;uniqueIndex;not null" db:"user_id"`
	StudentName       string          `gorm:"column:student_name;not null" db:"student_name"`
	FatherName        string          `gorm:"column:father_name" db:"father_name"`
	Email             string          `gorm:"column:email" db:"email"`
	Mobile            string          `gorm:"column:mobile" db:"mobile"`
	CollegeName       string          `gorm:"column:college_name" db:"college_name"`
	Branch            string          `gorm:"column:branch;index" db:"branch"`
	Batch             string          `gorm:"column:batch;index" db:"batch"`
	TechnologyID      *int64          `gorm:"column:technology_id" db:"technology_id"`
	TotalFee          decimal.Decimal `gorm:"column:total_fee;type:numeric(12,2);not null" db:"total_fee"`
	Discount          decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null" db:"discount"`
	FinalFee          decimal.Decimal `gorm:"column:final_fee;type:numeric(12,2);not null" db:"final_fee"`
	PaidAmount        decimal.Decimal `gorm:"column:paid_amount;type:numeric(12,2);not null" db:"paid_amount"`
	DueAmount         decimal.Decimal `gorm:"column:due_amount;type:numeric(12,2);not null" db:"due_amount"`
	TrainingFeeStatus string          `gorm:"column:training_fee_status;not null" db:"training_fee_status"`
	Version           int64           `gorm:"column:version;not null" db:"version"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" db:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" db:"updated_at"`
}

func (Registration) TableName() string {
	return "registrations"
}
