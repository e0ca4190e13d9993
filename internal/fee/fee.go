package fee

import (
	"time"

	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	"github.com/shopspring/decimal"
)

type Fee struct {
	ID             int64           `json:"id"`
	RegistrationID int64           `json:"registration_id"`
	ReceiptNo      string          `json:"receipt_no"`
	TnxID          *string         `json:"tnx_id,omitempty"`
	TotalFee       decimal.Decimal `json:"total_fee"`
	Discount       decimal.Decimal `json:"discount"`
	FinalFee       decimal.Decimal `json:"final_fee"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Amount         decimal.Decimal `json:"amount"`
	DueAmount      decimal.Decimal `json:"due_amount"`
	PaymentType    string          `json:"payment_type"`
	Mode           string          `json:"mode"`
	Status         string          `json:"status"`
	TnxStatus      string          `json:"tnx_status"`
	Reversed       bool            `json:"reversed"`
	InstallmentNo  *int            `json:"installment_no,omitempty"`
	QRCodeID       *int64          `json:"qr_code_id,omitempty"`
	HRID           *int64          `json:"hr_id,omitempty"`
	PaidBy         *int64          `json:"paid_by,omitempty"`
	VerifiedBy     *int64          `json:"verified_by,omitempty"`
	ImageURL       *string         `json:"image_url,omitempty"`
	ImageStorageID *string         `json:"-"`
	Remark         string          `json:"remark,omitempty"`
	PaymentDate    time.Time       `json:"payment_date"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TnxStatusFor maps a verification status onto the transaction status it implies.
func TnxStatusFor(status string) string {
	switch status {
	case feeDatamodel.StatusAccepted:
		return feeDatamodel.TnxStatusPaid
	case feeDatamodel.StatusRejected:
		return feeDatamodel.TnxStatusFailed
	default:
		return feeDatamodel.TnxStatusPending
	}
}

// ApplyStatus records the verifier's decision. It returns true when the entry
// must now be reversed out of the registration balance; an entry is reversed
// at most once.
func (f *Fee) ApplyStatus(status string, verifiedBy *int64) bool {
	f.Status = status
	f.TnxStatus = TnxStatusFor(status)
	f.VerifiedBy = verifiedBy
	f.UpdatedAt = time.Now()

	if status == feeDatamodel.StatusRejected && !f.Reversed {
		f.Reversed = true
		return true
	}
	return false
}

// RegistrationSummary is the slice of the registration shown next to a ledger entry.
type RegistrationSummary struct {
	ID                int64           `json:"id"`
	UserID            string          `json:"user_id"`
	StudentName       string          `json:"student_name"`
	FatherName        string          `json:"father_name,omitempty"`
	Email             string          `json:"email,omitempty"`
	Mobile            string          `json:"mobile,omitempty"`
	CollegeName       string          `json:"college_name,omitempty"`
	Branch            string          `json:"branch,omitempty"`
	Batch             string          `json:"batch,omitempty"`
	FinalFee          decimal.Decimal `json:"final_fee"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	DueAmount         decimal.Decimal `json:"due_amount"`
	TrainingFeeStatus string          `json:"training_fee_status"`
}

type PaymentView struct {
	Fee
	Registration RegistrationSummary `json:"registration"`
}

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func NewPagination(total int64, page, limit int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}

func ToDataModel(f *Fee) *feeDatamodel.Fee {
	return &feeDatamodel.Fee{
		ID:             f.ID,
		RegistrationID: f.RegistrationID,
		ReceiptNo:      f.ReceiptNo,
		TnxID:          f.TnxID,
		TotalFee:       f.TotalFee,
		Discount:       f.Discount,
		FinalFee:       f.FinalFee,
		PaidAmount:     f.PaidAmount,
		Amount:         f.Amount,
		DueAmount:      f.DueAmount,
		PaymentType:    f.PaymentType,
		Mode:           f.Mode,
		Status:         f.Status,
		TnxStatus:      f.TnxStatus,
		Reversed:       f.Reversed,
		InstallmentNo:  f.InstallmentNo,
		QRCodeID:       f.QRCodeID,
		HRID:           f.HRID,
		PaidBy:         f.PaidBy,
		VerifiedBy:     f.VerifiedBy,
		ImageURL:       f.ImageURL,
		ImageStorageID: f.ImageStorageID,
		Remark:         f.Remark,
		PaymentDate:    f.PaymentDate,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func FromDataModel(f *feeDatamodel.Fee) *Fee {
	return &Fee{
		ID:             f.ID,
		RegistrationID: f.RegistrationID,
		ReceiptNo:      f.ReceiptNo,
		TnxID:          f.TnxID,
		TotalFee:       f.TotalFee,
		Discount:       f.Discount,
		FinalFee:       f.FinalFee,
		PaidAmount:     f.PaidAmount,
		Amount:         f.Amount,
		DueAmount:      f.DueAmount,
		PaymentType:    f.PaymentType,
		Mode:           f.Mode,
		Status:         f.Status,
		TnxStatus:      f.TnxStatus,
		Reversed:       f.Reversed,
		InstallmentNo:  f.InstallmentNo,
		QRCodeID:       f.QRCodeID,
		HRID:           f.HRID,
		PaidBy:         f.PaidBy,
		VerifiedBy:     f.VerifiedBy,
		ImageURL:       f.ImageURL,
		ImageStorageID: f.ImageStorageID,
		Remark:         f.Remark,
		PaymentDate:    f.PaymentDate,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func FromDataModelSlice(fees []*feeDatamodel.Fee) []*Fee {
	result := make([]*Fee, len(fees))
	for i, f := range fees {
		result[i] = FromDataModel(f)
	}
	return result
}

func FromJoinedRow(row *feeDatamodel.FeeWithRegistration) *PaymentView {
	return &PaymentView{
		Fee: *FromDataModel(&row.Fee),
		Registration: RegistrationSummary{
			ID:                row.RegistrationID,
			UserID:            row.StudentUserID,
			StudentName:       row.StudentName,
			FatherName:        row.FatherName,
			Email:             row.Email,
			Mobile:            row.Mobile,
			CollegeName:       row.CollegeName,
			Branch:            row.Branch,
			Batch:             row.Batch,
			FinalFee:          row.RegFinalFee,
			PaidAmount:        row.RegPaidAmount,
			DueAmount:         row.RegDueAmount,
			TrainingFeeStatus: row.RegTrainingFeeStatus,
		},
	}
}

func FromJoinedRows(rows []*feeDatamodel.FeeWithRegistration) []*PaymentView {
	result := make([]*PaymentView, len(rows))
	for i, row := range rows {
		result[i] = FromJoinedRow(row)
	}
	return result
}
