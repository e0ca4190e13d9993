package registration

import (
	"time"

	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/shopspring/decimal"
)

const (
	StatusPending  = "pending"
	StatusPartial  = "partial"
	StatusFullPaid = "full paid"
)

type Registration struct {
	ID                int64           `json:"id"`
	UserID            string          `json:"user_id"`
	StudentName       string          `json:"student_name"`
	FatherName        string          `json:"father_name,omitempty"`
	Email             string          `json:"email,omitempty"`
	Mobile            string          `json:"mobile,omitempty"`
	CollegeName       string          `json:"college_name,omitempty"`
	Branch            string          `json:"branch,omitempty"`
	Batch             string          `json:"batch,omitempty"`
	TechnologyID      *int64          `json:"technology_id,omitempty"`
	TotalFee          decimal.Decimal `json:"total_fee"`
	Discount          decimal.Decimal `json:"discount"`
	FinalFee          decimal.Decimal `json:"final_fee"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	DueAmount         decimal.Decimal `json:"due_amount"`
	TrainingFeeStatus string          `json:"training_fee_status"`
	Version           int64           `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RecomputeStatus derives training_fee_status from the running balance.
// An overpaid registration (negative due) stays partial.
func RecomputeStatus(paid, due decimal.Decimal) string {
	switch {
	case due.IsZero():
		return StatusFullPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

// ApplyPayment adds amount to the paid side and recomputes the status.
// Due may go negative on overpayment.
func (r *Registration) ApplyPayment(amount decimal.Decimal) {
	r.PaidAmount = r.PaidAmount.Add(amount)
	r.DueAmount = r.DueAmount.Sub(amount)
	r.TrainingFeeStatus = RecomputeStatus(r.PaidAmount, r.DueAmount)
}

// ReversePayment takes a rejected amount back out of the balance. The status
// is left alone unless recompute is set.
func (r *Registration) ReversePayment(amount decimal.Decimal, recompute bool) {
	r.PaidAmount = r.PaidAmount.Sub(amount)
	r.DueAmount = r.DueAmount.Add(amount)
	if recompute {
		r.TrainingFeeStatus = RecomputeStatus(r.PaidAmount, r.DueAmount)
	}
}

// Balanced reports whether paid + due equals the final fee.
func (r *Registration) Balanced() bool {
	return r.PaidAmount.Add(r.DueAmount).Equal(r.FinalFee)
}

func (r *Registration) HasDues() bool {
	return r.DueAmount.IsPositive()
}

func (r *Registration) Student() events.Student {
	return events.Student{
		RegistrationID: r.ID,
		UserID:         r.UserID,
		Name:           r.StudentName,
		Email:          r.Email,
		Mobile:         r.Mobile,
	}
}

// Dues is the read model returned by the dues check.
type Dues struct {
	RegistrationID int64           `json:"registration_id"`
	StudentName    string          `json:"student_name"`
	TotalFee       decimal.Decimal `json:"total_fee"`
	FinalFee       decimal.Decimal `json:"final_fee"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	RemainingFee   decimal.Decimal `json:"remaining_fee"`
	PaymentStatus  string          `json:"payment_status"`
}

func (r *Registration) Dues() *Dues {
	return &Dues{
		RegistrationID: r.ID,
		StudentName:    r.StudentName,
		TotalFee:       r.TotalFee,
		FinalFee:       r.FinalFee,
		PaidAmount:     r.PaidAmount,
		RemainingFee:   r.DueAmount,
		PaymentStatus:  r.TrainingFeeStatus,
	}
}

// NewRegistration opens the balance for a freshly enrolled student. A "full"
// enrolment is settled immediately; any other type credits the given amount.
func NewRegistration(dto EnrollDTO, totalFee decimal.Decimal, userID string) *Registration {
	now := time.Now()
	finalFee := totalFee.Sub(dto.Discount)

	reg := &Registration{
		UserID:       userID,
		StudentName:  dto.StudentName,
		FatherName:   dto.FatherName,
		Email:        dto.Email,
		Mobile:       dto.Mobile,
		CollegeName:  dto.CollegeName,
		Branch:       dto.Branch,
		Batch:        dto.Batch,
		TechnologyID: dto.TechnologyID,
		TotalFee:     totalFee,
		Discount:     dto.Discount,
		FinalFee:     finalFee,
		PaidAmount:   decimal.Zero,
		DueAmount:    finalFee,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	reg.ApplyPayment(dto.InitialPayment(finalFee))
	return reg
}

func ToDataModel(r *Registration) *registrationDatamodel.Registration {
	return &registrationDatamodel.Registration{
		ID:                r.ID,
		UserID:            r.UserID,
		StudentName:       r.StudentName,
		FatherName:        r.FatherName,
		Email:             r.Email,
		Mobile:            r.Mobile,
		CollegeName:       r.CollegeName,
		Branch:            r.Branch,
		Batch:             r.Batch,
		TechnologyID:      r.TechnologyID,
		TotalFee:          r.TotalFee,
		Discount:          r.Discount,
		FinalFee:          r.FinalFee,
		PaidAmount:        r.PaidAmount,
		DueAmount:         r.DueAmount,
		TrainingFeeStatus: r.TrainingFeeStatus,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func FromDataModel(r *registrationDatamodel.Registration) *Registration {
	return &Registration{
		ID:                r.ID,
		UserID:            r.UserID,
		StudentName:       r.StudentName,
		FatherName:        r.FatherName,
		Email:             r.Email,
		Mobile:            r.Mobile,
		CollegeName:       r.CollegeName,
		Branch:            r.Branch,
		Batch:             r.Batch,
		TechnologyID:      r.TechnologyID,
		TotalFee:          r.TotalFee,
		Discount:          r.Discount,
		FinalFee:          r.FinalFee,
		PaidAmount:        r.PaidAmount,
		DueAmount:         r.DueAmount,
		TrainingFeeStatus: r.TrainingFeeStatus,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func FromDataModelSlice(regs []*registrationDatamodel.Registration) []*Registration {
	result := make([]*Registration, len(regs))
	for i, r := range regs {
		result[i] = FromDataModel(r)
	}
	return result
}
