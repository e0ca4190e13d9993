package fee

import (
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/validation"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	"github.com/shopspring/decimal"
)

// Attachment is an uploaded payment proof, usually a screenshot of the transfer.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type RecordPaymentDTO struct {
	RegistrationID int64           `json:"registration_id"`
	Amount         decimal.Decimal `json:"amount"`
	Mode           string          `json:"mode"`
	PaymentType    string          `json:"payment_type,omitempty"`
	TnxID          *string         `json:"tnx_id,omitempty"`
	TnxStatus      string          `json:"tnx_status,omitempty"`
	InstallmentNo  *int            `json:"installment_no,omitempty"`
	QRCodeID       *int64          `json:"qr_code_id,omitempty"`
	HRID           *int64          `json:"hr_id,omitempty"`
	Remark         string          `json:"remark,omitempty"`
	PaymentDate    *time.Time      `json:"payment_date,omitempty"`
	Attachment     *Attachment     `json:"-"`
}

func (d *RecordPaymentDTO) Normalize() {
	d.Mode = strings.ToLower(strings.TrimSpace(d.Mode))
	d.PaymentType = strings.ToLower(strings.TrimSpace(d.PaymentType))
	d.TnxStatus = strings.ToLower(strings.TrimSpace(d.TnxStatus))
	d.Remark = strings.TrimSpace(d.Remark)
	if d.PaymentType == "" {
		d.PaymentType = feeDatamodel.PaymentTypeInstallment
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

func (d RecordPaymentDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("registration_id", d.RegistrationID).Required()
	validator.Field("amount", d.Amount).Required().Positive(errors.ErrCodeInvalidAmount)
	validator.Field("mode", d.Mode).Required().OneOf(feeDatamodel.Modes, errors.ErrCodeInvalidMode)
	validator.Field("payment_type", d.PaymentType).OneOf(feeDatamodel.PaymentTypes, errors.ErrCodeInvalidPaymentType)
	validator.Field("tnx_status", d.TnxStatus).OneOf(feeDatamodel.TnxStatuses, errors.ErrCodeInvalidTnxStatus)
	validator.Field("remark", d.Remark).MaxLength(500)
	if d.TnxID != nil {
		validator.Field("tnx_id", *d.TnxID).MaxLength(100)
	}
	if d.PaymentDate != nil {
		validator.Field("payment_date", *d.PaymentDate).NotFuture()
	}

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ChangeStatusDTO struct {
	Status string `json:"status"`
}

func (d ChangeStatusDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("status", d.Status).Required().OneOf(feeDatamodel.Statuses, errors.ErrCodeInvalidStatus)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	DefaultSortBy = "payment_date"
)

// ListFilter narrows the payments listing. Zero values mean "no filter".
type ListFilter struct {
	Page        int
	Limit       int
	Search      string
	Branch      string
	Batch       string
	MinPaid     *decimal.Decimal
	MaxPaid     *decimal.Decimal
	Due         string
	StartDate   *time.Time
	EndDate     *time.Time
	TnxStatus   string
	PaymentType string
	Mode        string
	Status      string
	SortBy      string
	SortOrder   string
}

// SortableFields are the accepted sort_by values.
var SortableFields = []string{
	"payment_date", "created_at", "amount", "paid_amount", "due_amount",
	"receipt_no", "tnx_status", "payment_type", "mode", "status", "student_name",
}

// ParseListFilter reads the listing query string. Malformed numbers and
// dates are reported as validation errors rather than silently dropped.
func ParseListFilter(q url.Values) (ListFilter, error) {
	f := ListFilter{
		Search:      strings.TrimSpace(q.Get("search")),
		Branch:      strings.TrimSpace(q.Get("branch")),
		Batch:       strings.TrimSpace(q.Get("batch")),
		Due:         strings.ToLower(strings.TrimSpace(q.Get("due"))),
		TnxStatus:   strings.TrimSpace(q.Get("tnx_status")),
		PaymentType: strings.TrimSpace(q.Get("payment_type")),
		Mode:        strings.TrimSpace(q.Get("mode")),
		Status:      strings.TrimSpace(q.Get("status")),
		SortBy:      strings.TrimSpace(q.Get("sort_by")),
		SortOrder:   strings.ToLower(strings.TrimSpace(q.Get("sort_order"))),
	}

	var fieldErrs []errors.ValidationError
	fail := func(field, message string, code errors.ErrorCode) {
		fieldErrs = append(fieldErrs, errors.ValidationError{Field: field, Message: message, Code: string(code)})
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fail("page", "page must be a positive integer", errors.ErrCodeValidationFailed)
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fail("limit", "limit must be a positive integer", errors.ErrCodeValidationFailed)
		}
		f.Limit = n
	}
	if v := q.Get("min_paid"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			fail("min_paid", "min_paid must be a number", errors.ErrCodeInvalidAmount)
		} else {
			f.MinPaid = &d
		}
	}
	if v := q.Get("max_paid"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			fail("max_paid", "max_paid must be a number", errors.ErrCodeInvalidAmount)
		} else {
			f.MaxPaid = &d
		}
	}
	if v := q.Get("start_date"); v != "" {
		t, err := parseDate(v, false)
		if err != nil {
			fail("start_date", "start_date must be YYYY-MM-DD or RFC3339", errors.ErrCodeInvalidDate)
		} else {
			f.StartDate = &t
		}
	}
	if v := q.Get("end_date"); v != "" {
		t, err := parseDate(v, true)
		if err != nil {
			fail("end_date", "end_date must be YYYY-MM-DD or RFC3339", errors.ErrCodeInvalidDate)
		} else {
			f.EndDate = &t
		}
	}

	if len(fieldErrs) > 0 {
		return f, errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: fieldErrs})
	}

	f.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.SortBy == "" {
		f.SortBy = DefaultSortBy
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
}

func (f ListFilter) Validate() error {
	validator := validation.NewValidator()

	validator.Field("due", f.Due).OneOf([]string{"yes", "no"}, errors.ErrCodeValidationFailed)
	validator.Field("sort_by", f.SortBy).OneOf(SortableFields, errors.ErrCodeValidationFailed)
	validator.Field("tnx_status", f.TnxStatus).OneOf(feeDatamodel.TnxStatuses, errors.ErrCodeInvalidTnxStatus)
	validator.Field("payment_type", f.PaymentType).OneOf(feeDatamodel.PaymentTypes, errors.ErrCodeInvalidPaymentType)
	validator.Field("mode", f.Mode).OneOf(feeDatamodel.Modes, errors.ErrCodeInvalidMode)
	validator.Field("status", f.Status).OneOf(feeDatamodel.Statuses, errors.ErrCodeInvalidStatus)
	validator.Field("search", f.Search).MaxLength(100)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// parseDate accepts a calendar date or an RFC3339 timestamp. A bare end date
// covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
