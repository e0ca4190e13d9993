package fee

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/serial"
	"github.com/digicoders/feeledger/internal/core/common/txretry"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/digicoders/feeledger/internal/filestore"
	"github.com/digicoders/feeledger/internal/registration"
)

// RepositoryAPI covers the ledger writes. Record and SaveStatus must write the
// entry and the registration balance in one transaction.
type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*feeDatamodel.Fee, error)
	GetRegistration(ctx context.Context, id int64) (*registrationDatamodel.Registration, error)
	TnxIDExists(ctx context.Context, tnxID string) (bool, error)
	Record(ctx context.Context, entry *feeDatamodel.Fee, reg *registrationDatamodel.Registration) error
	// SaveStatus fails with internal.ErrVersionConflict when the entry's reversed
	// flag no longer equals wasReversed. reg may be nil.
	SaveStatus(ctx context.Context, entry *feeDatamodel.Fee, wasReversed bool, reg *registrationDatamodel.Registration) error
	Delete(ctx context.Context, id int64) error
}

// QueryRepositoryAPI serves the read side joined with registrations.
type QueryRepositoryAPI interface {
	List(ctx context.Context, filter ListFilter) ([]*feeDatamodel.FeeWithRegistration, int64, error)
	ListByRegistration(ctx context.Context, registrationID int64) ([]*feeDatamodel.Fee, error)
	GetWithRegistration(ctx context.Context, id int64) (*feeDatamodel.FeeWithRegistration, error)
	GetLatestWithRegistration(ctx context.Context, registrationID int64) (*feeDatamodel.FeeWithRegistration, error)
}

type FileStore interface {
	Upload(ctx context.Context, filename, contentType string, content io.Reader) (*filestore.StoredFile, error)
	Delete(ctx context.Context, storageID string) error
}

type Options struct {
	// RecomputeStatusOnReversal re-derives training_fee_status after a rejection.
	RecomputeStatusOnReversal bool
	Retry                     txretry.Policy
}

type Service struct {
	repo      RepositoryAPI
	query     QueryRepositoryAPI
	files     FileStore
	serials   *serial.Generator
	publisher events.Publisher
	opts      Options
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, query QueryRepositoryAPI, files FileStore, serials *serial.Generator, publisher events.Publisher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if serials == nil {
		serials = serial.NewGenerator("")
	}
	return &Service{
		repo:      repo,
		query:     query,
		files:     files,
		serials:   serials,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
}

// RecordPayment appends a ledger entry and moves the registration balance by
// the paid amount.
func (s *Service) RecordPayment(ctx context.Context, dto RecordPaymentDTO, actorID *int64) (*Fee, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		s.logger.Warn("payment validation failed", "error", err, "registration_id", dto.RegistrationID)
		return nil, err
	}

	if dto.TnxID != nil {
		if err := s.ensureTnxIDUnused(ctx, *dto.TnxID); err != nil {
			return nil, err
		}
	}

	if _, err := s.repo.GetRegistration(ctx, dto.RegistrationID); err != nil {
		return nil, s.storageError("failed to load registration", err)
	}

	stored, err := s.storeAttachment(ctx, dto.Attachment)
	if err != nil {
		return nil, err
	}

	var reg *registration.Registration
	entry, err := txretry.Do(ctx, s.opts.Retry, isRetryableWrite, func(ctx context.Context) (*feeDatamodel.Fee, error) {
		model, err := s.repo.GetRegistration(ctx, dto.RegistrationID)
		if err != nil {
			return nil, err
		}

		reg = registration.FromDataModel(model)
		reg.ApplyPayment(dto.Amount)

		entry := s.newEntry(dto, reg, stored, actorID)
		if err := s.repo.Record(ctx, entry, registration.ToDataModel(reg)); err != nil {
			if errors.Is(err, internal.ErrDuplicateKey) && dto.TnxID != nil {
				if dupErr := s.ensureTnxIDUnused(ctx, *dto.TnxID); dupErr != nil {
					return nil, dupErr
				}
			}
			return nil, err
		}
		return entry, nil
	})
	if err != nil {
		s.discardAttachment(ctx, stored)
		return nil, s.writeError("failed to record payment", err)
	}

	s.logger.Info("payment recorded",
		"fee_id", entry.ID,
		"registration_id", entry.RegistrationID,
		"receipt_no", entry.ReceiptNo,
		"amount", entry.Amount.String(),
		"due_amount", entry.DueAmount.String(),
		"training_fee_status", reg.TrainingFeeStatus)

	s.publish(ctx, events.NewPaymentRecordedEvent(reg.Student(), entry.ID, entry.ReceiptNo, entry.Amount, entry.PaidAmount, entry.DueAmount, entry.Mode))

	return FromDataModel(entry), nil
}

type statusChange struct {
	entry     *Fee
	reg       *registration.Registration
	oldStatus string
	reversed  bool
}

// ChangeStatus records a verification decision. Rejecting an entry takes its
// amount back out of the registration balance exactly once.
func (s *Service) ChangeStatus(ctx context.Context, id int64, dto ChangeStatusDTO, actorID *int64) (*Fee, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	change, err := txretry.Do(ctx, s.opts.Retry, isVersionConflict, func(ctx context.Context) (*statusChange, error) {
		model, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		regModel, err := s.repo.GetRegistration(ctx, model.RegistrationID)
		if err != nil {
			return nil, err
		}

		entry := FromDataModel(model)
		reg := registration.FromDataModel(regModel)
		change := &statusChange{entry: entry, reg: reg, oldStatus: entry.Status}

		var regToSave *registrationDatamodel.Registration
		if entry.ApplyStatus(dto.Status, actorID) {
			reg.ReversePayment(entry.Amount, s.opts.RecomputeStatusOnReversal)
			regToSave = registration.ToDataModel(reg)
			change.reversed = true
		}

		if err := s.repo.SaveStatus(ctx, ToDataModel(entry), model.Reversed, regToSave); err != nil {
			return nil, err
		}
		return change, nil
	})
	if err != nil {
		return nil, s.writeError("failed to change payment status", err)
	}

	s.logger.Info("payment status changed",
		"fee_id", id,
		"old_status", change.oldStatus,
		"new_status", change.entry.Status,
		"reversed", change.reversed,
		"registration_paid", change.reg.PaidAmount.String(),
		"registration_due", change.reg.DueAmount.String())

	s.publish(ctx, events.NewPaymentStatusChangedEvent(change.reg.Student(), change.entry.ID, change.entry.ReceiptNo,
		change.oldStatus, change.entry.Status, change.entry.Amount, change.reversed))

	return change.entry, nil
}

func (s *Service) ListPayments(ctx context.Context, filter ListFilter) ([]*PaymentView, Pagination, error) {
	filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, Pagination{}, err
	}

	rows, total, err := s.query.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list payments", "error", err)
		return nil, Pagination{}, internal.NewInternalError("failed to list payments", err)
	}

	return FromJoinedRows(rows), NewPagination(total, filter.Page, filter.Limit), nil
}

// GetPaymentHistory returns every entry of a registration, newest first.
func (s *Service) GetPaymentHistory(ctx context.Context, registrationID int64) ([]*Fee, error) {
	if _, err := s.repo.GetRegistration(ctx, registrationID); err != nil {
		return nil, s.storageError("failed to load registration", err)
	}

	fees, err := s.query.ListByRegistration(ctx, registrationID)
	if err != nil {
		s.logger.Error("failed to get payment history", "error", err, "registration_id", registrationID)
		return nil, internal.NewInternalError("failed to get payment history", err)
	}
	return FromDataModelSlice(fees), nil
}

// GetFeeByID resolves id as a ledger entry id first and falls back to the
// newest entry of the registration with that id.
func (s *Service) GetFeeByID(ctx context.Context, id int64) (*PaymentView, error) {
	row, err := s.query.GetWithRegistration(ctx, id)
	if err == nil {
		return FromJoinedRow(row), nil
	}
	if !errors.Is(err, internal.ErrFeeNotFound) {
		s.logger.Error("failed to get fee", "error", err, "id", id)
		return nil, internal.NewInternalError("failed to get fee", err)
	}

	row, err = s.query.GetLatestWithRegistration(ctx, id)
	if err != nil {
		return nil, s.storageError("failed to get fee", err)
	}
	return FromJoinedRow(row), nil
}

// DeletePayment removes the entry and its attachment. The registration balance
// is not adjusted.
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	model, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.storageError("failed to load fee", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storageError("failed to delete fee", err)
	}

	if model.ImageStorageID != nil && s.files != nil {
		if err := s.files.Delete(ctx, *model.ImageStorageID); err != nil {
			s.logger.Warn("failed to delete payment attachment", "error", err, "fee_id", id, "storage_id", *model.ImageStorageID)
		}
	}

	s.logger.Info("payment deleted", "fee_id", id, "registration_id", model.RegistrationID, "amount", model.Amount.String())
	return nil
}

func (s *Service) newEntry(dto RecordPaymentDTO, reg *registration.Registration, stored *filestore.StoredFile, actorID *int64) *feeDatamodel.Fee {
	tnxStatus := dto.TnxStatus
	if reg.DueAmount.IsZero() {
		tnxStatus = feeDatamodel.TnxStatusFullPaid
	}

	paymentDate := time.Now()
	if dto.PaymentDate != nil {
		paymentDate = *dto.PaymentDate
	}

	entry := &feeDatamodel.Fee{
		RegistrationID: reg.ID,
		ReceiptNo:      s.serials.Receipt(),
		TnxID:          dto.TnxID,
		TotalFee:       reg.TotalFee,
		Discount:       reg.Discount,
		FinalFee:       reg.FinalFee,
		PaidAmount:     reg.PaidAmount,
		Amount:         dto.Amount,
		DueAmount:      reg.DueAmount,
		PaymentType:    dto.PaymentType,
		Mode:           dto.Mode,
		Status:         feeDatamodel.StatusNew,
		TnxStatus:      tnxStatus,
		InstallmentNo:  dto.InstallmentNo,
		QRCodeID:       dto.QRCodeID,
		HRID:           dto.HRID,
		PaidBy:         actorID,
		Remark:         dto.Remark,
		PaymentDate:    paymentDate,
	}
	if stored != nil {
		entry.ImageURL = &stored.URL
		entry.ImageStorageID = &stored.StorageID
	}
	return entry
}

func (s *Service) ensureTnxIDUnused(ctx context.Context, tnxID string) error {
	exists, err := s.repo.TnxIDExists(ctx, tnxID)
	if err != nil {
		s.logger.Error("failed to check transaction id", "error", err)
		return internal.NewInternalError("failed to check transaction id", err)
	}
	if exists {
		s.logger.Warn("duplicate transaction id", "tnx_id", tnxID)
		return internal.ErrDuplicateTransaction
	}
	return nil
}

func (s *Service) storeAttachment(ctx context.Context, att *Attachment) (*filestore.StoredFile, error) {
	if att == nil || s.files == nil {
		return nil, nil
	}
	stored, err := s.files.Upload(ctx, att.Filename, att.ContentType, att.Content)
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("failed to store payment attachment", "error", err)
		return nil, internal.NewInternalError("failed to store attachment", err)
	}
	return stored, nil
}

func (s *Service) discardAttachment(ctx context.Context, stored *filestore.StoredFile) {
	if stored == nil {
		return
	}
	if err := s.files.Delete(ctx, stored.StorageID); err != nil {
		s.logger.Warn("failed to discard attachment of failed payment", "error", err, "storage_id", stored.StorageID)
	}
}

func (s *Service) storageError(message string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	s.logger.Error(message, "error", err)
	return internal.NewInternalError(message, err)
}

func (s *Service) writeError(message string, err error) error {
	switch {
	case errors.Is(err, internal.ErrVersionConflict):
		s.logger.Warn("write retries exhausted", "error", err)
		return internal.ErrConcurrentUpdate
	case errors.Is(err, internal.ErrDuplicateKey):
		s.logger.Warn("could not allocate a unique receipt number", "error", err)
		return internal.NewConflictError("Could not allocate a unique receipt number, please retry", internal.ErrCodeConcurrentUpdate)
	}
	return s.storageError(message, err)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func isVersionConflict(err error) bool {
	return errors.Is(err, internal.ErrVersionConflict)
}

func isRetryableWrite(err error) bool {
	return errors.Is(err, internal.ErrVersionConflict) || errors.Is(err, internal.ErrDuplicateKey)
}
