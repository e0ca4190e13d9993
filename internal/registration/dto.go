package registration

import (
	"strings"

	errors "github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/validation"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	"github.com/shopspring/decimal"
)

// EnrollDTO opens a registration and optionally records the first payment.
// TotalFee is only consulted when no technology is given.
type EnrollDTO struct {
	UserID       string           `json:"user_id,omitempty"`
	StudentName  string           `json:"student_name"`
	FatherName   string           `json:"father_name,omitempty"`
	Email        string           `json:"email,omitempty"`
	Mobile       string           `json:"mobile,omitempty"`
	CollegeName  string           `json:"college_name,omitempty"`
	Branch       string           `json:"branch,omitempty"`
	Batch        string           `json:"batch,omitempty"`
	TechnologyID *int64           `json:"technology_id,omitempty"`
	TotalFee     *decimal.Decimal `json:"total_fee,omitempty"`
	Discount     decimal.Decimal  `json:"discount"`
	PaymentType  string           `json:"payment_type,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	Mode         string           `json:"mode,omitempty"`
	TnxID        *string          `json:"tnx_id,omitempty"`
	TnxStatus    string           `json:"tnx_status,omitempty"`
	QRCodeID     *int64           `json:"qr_code_id,omitempty"`
	HRID         *int64           `json:"hr_id,omitempty"`
	Remark       string           `json:"remark,omitempty"`
}

var enrollPaymentTypes = []string{feeDatamodel.PaymentTypeRegistration, feeDatamodel.PaymentTypeFull}

func (d *EnrollDTO) Normalize() {
	d.StudentName = strings.TrimSpace(d.StudentName)
	d.Email = strings.TrimSpace(d.Email)
	d.Mobile = strings.TrimSpace(d.Mobile)
	d.UserID = strings.TrimSpace(d.UserID)
	if d.PaymentType == "" {
		d.PaymentType = feeDatamodel.PaymentTypeRegistration
	}
	if d.TnxStatus == "" {
		d.TnxStatus = feeDatamodel.TnxStatusPending
	}
	if d.TnxID != nil {
		trimmed := strings.TrimSpace(*d.TnxID)
		if trimmed == "" {
			d.TnxID = nil
		} else {
			d.TnxID = &trimmed
		}
	}
}

func (d EnrollDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("student_name", d.StudentName).Required().MaxLength(150)
	validator.Field("email", d.Email).MaxLength(150).Email()
	validator.Field("mobile", d.Mobile).MaxLength(20)
	validator.Field("technology_id", d.TechnologyID).Custom(func(interface{}) *errors.AppError {
		if d.TechnologyID == nil && d.TotalFee == nil {
			return errors.NewValidationFieldError("technology_id", "technology_id or total_fee is required", errors.ErrCodeValidationFailed)
		}
		return nil
	})
	if d.TotalFee != nil {
		validator.Field("total_fee", *d.TotalFee).NotNegative(errors.ErrCodeInvalidAmount)
	}
	validator.Field("discount", d.Discount).NotNegative(errors.ErrCodeInvalidAmount)
	validator.Field("amount", d.Amount).NotNegative(errors.ErrCodeInvalidAmount)
	validator.Field("payment_type", d.PaymentType).OneOf(enrollPaymentTypes, errors.ErrCodeInvalidPaymentType)
	validator.Field("tnx_status", d.TnxStatus).OneOf(feeDatamodel.TnxStatuses, errors.ErrCodeInvalidTnxStatus)

	mode := validator.Field("mode", d.Mode)
	if d.CollectsPayment() {
		mode.Required()
	}
	mode.OneOf(feeDatamodel.Modes, errors.ErrCodeInvalidMode)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CollectsPayment reports whether enrolment creates an initial ledger entry.
func (d EnrollDTO) CollectsPayment() bool {
	return d.PaymentType == feeDatamodel.PaymentTypeFull || d.Amount.IsPositive()
}

// InitialPayment is the amount credited at enrolment.
func (d EnrollDTO) InitialPayment(finalFee decimal.Decimal) decimal.Decimal {
	if d.PaymentType == feeDatamodel.PaymentTypeFull {
		return finalFee
	}
	return d.Amount
}
