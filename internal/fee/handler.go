package fee

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/transport"
	"github.com/digicoders/feeledger/pkg/logger"
	"github.com/shopspring/decimal"
)

type ServiceAPI interface {
	RecordPayment(ctx context.Context, dto RecordPaymentDTO, actorID *int64) (*Fee, error)
	ChangeStatus(ctx context.Context, id int64, dto ChangeStatusDTO, actorID *int64) (*Fee, error)
	ListPayments(ctx context.Context, filter ListFilter) ([]*PaymentView, Pagination, error)
	GetPaymentHistory(ctx context.Context, registrationID int64) ([]*Fee, error)
	GetFeeByID(ctx context.Context, id int64) (*PaymentView, error)
	DeletePayment(ctx context.Context, id int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service        ServiceAPI
	MaxUploadBytes int64
}

func NewHandler(service ServiceAPI, maxUploadBytes int64) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &Handler{
		BaseHandler:    transport.NewBaseHandler(lg),
		Service:        service,
		MaxUploadBytes: maxUploadBytes,
	}
}

// RecordPayment accepts either a JSON body or a multipart form carrying an
// optional "image" proof of payment.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var (
		dto RecordPaymentDTO
		err error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		dto, err = h.decodeMultipart(w, r)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if dto.Attachment != nil {
			if closer, ok := dto.Attachment.Content.(io.Closer); ok {
				defer closer.Close()
			}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Warn("RecordPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.Service.RecordPayment(r.Context(), dto, internal.ActorIDFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, "Payment recorded successfully", entry)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseListFilter(r.URL.Query())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	payments, pagination, err := h.Service.ListPayments(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WritePaginated(w, "Payments fetched successfully", payments, pagination)
}

// GetFeeByID answers GET /payments/{id}; id may be a fee id or a registration id.
func (h *Handler) GetFeeByID(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	payment, err := h.Service.GetFeeByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Fee fetched successfully", payment)
}

func (h *Handler) GetPaymentHistory(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	history, err := h.Service.GetPaymentHistory(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Payment history fetched successfully", history)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var dto ChangeStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Warn("ChangeStatus: invalid request body", "error", err, "fee_id", id)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.Service.ChangeStatus(r.Context(), id, dto, internal.ActorIDFromContext(r.Context()))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Payment status updated successfully", entry)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := h.ParseIDParam(r, "id")
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	if err := h.Service.DeletePayment(r.Context(), id); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Payment deleted successfully", nil)
}

func (h *Handler) decodeMultipart(w http.ResponseWriter, r *http.Request) (RecordPaymentDTO, error) {
	var dto RecordPaymentDTO

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		h.Logger.Warn("RecordPayment: invalid multipart form", "error", err)
		return dto, internal.NewValidationError("invalid multipart form", internal.ErrCodeValidationFailed)
	}

	form := formReader{values: r.MultipartForm.Value}
	dto.RegistrationID = form.int64("registration_id")
	dto.Amount = form.decimal("amount")
	dto.Mode = form.str("mode")
	dto.PaymentType = form.str("payment_type")
	dto.TnxStatus = form.str("tnx_status")
	dto.Remark = form.str("remark")
	if v := form.str("tnx_id"); v != "" {
		dto.TnxID = &v
	}
	if v := form.str("installment_no"); v != "" {
		n := int(form.int64("installment_no"))
		dto.InstallmentNo = &n
	}
	if v := form.str("qr_code_id"); v != "" {
		n := form.int64("qr_code_id")
		dto.QRCodeID = &n
	}
	if v := form.str("hr_id"); v != "" {
		n := form.int64("hr_id")
		dto.HRID = &n
	}
	if v := form.str("payment_date"); v != "" {
		t, err := parseDate(v, false)
		if err != nil {
			form.fail("payment_date", "payment_date must be YYYY-MM-DD or RFC3339", internal.ErrCodeInvalidDate)
		} else {
			dto.PaymentDate = &t
		}
	}
	if err := form.err(); err != nil {
		return dto, err
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return dto, internal.NewValidationFieldError("image", "image could not be read", internal.ErrCodeValidationFailed)
	default:
		dto.Attachment = &Attachment{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		}
	}

	return dto, nil
}

// formReader pulls typed values out of a multipart form and collects parse failures.
type formReader struct {
	values map[string][]string
	errs   []internal.ValidationError
}

func (f *formReader) str(key string) string {
	if vs := f.values[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (f *formReader) int64(key string) int64 {
	v := f.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f.fail(key, key+" must be an integer", internal.ErrCodeValidationFailed)
	}
	return n
}

func (f *formReader) decimal(key string) decimal.Decimal {
	v := f.str(key)
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		f.fail(key, key+" must be a number", internal.ErrCodeInvalidAmount)
	}
	return d
}

func (f *formReader) fail(field, message string, code internal.ErrorCode) {
	f.errs = append(f.errs, internal.ValidationError{Field: field, Message: message, Code: string(code)})
}

func (f *formReader) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	return internal.NewValidationError("Validation failed", internal.ErrCodeValidationFailed).
		WithDetails(internal.ValidationErrors{Errors: f.errs})
}
