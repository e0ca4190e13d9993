package registration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/serial"
	"github.com/digicoders/feeledger/internal/core/common/txretry"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	technologyDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/technology"
	"github.com/digicoders/feeledger/internal/core/events"
	"github.com/shopspring/decimal"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*registrationDatamodel.Registration, error)
	GetTechnology(ctx context.Context, id int64) (*technologyDatamodel.Technology, error)
	TnxIDExists(ctx context.Context, tnxID string) (bool, error)
	UserIDExists(ctx context.Context, userID string) (bool, error)
	// Create inserts the registration and, when initial is non-nil, its first ledger entry in one transaction.
	Create(ctx context.Context, reg *registrationDatamodel.Registration, initial *feeDatamodel.Fee) error
	ListWithDues(ctx context.Context) ([]*registrationDatamodel.Registration, error)
}

type Service struct {
	repo      RepositoryAPI
	serials   *serial.Generator
	publisher events.Publisher
	retry     txretry.Policy
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, serials *serial.Generator, publisher events.Publisher, policy txretry.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if serials == nil {
		serials = serial.NewGenerator("")
	}
	return &Service{
		repo:      repo,
		serials:   serials,
		publisher: publisher,
		retry:     policy,
		logger:    logger,
	}
}

// Enroll creates a registration with its opening balance. A positive initial
// payment is written to the ledger in the same transaction.
func (s *Service) Enroll(ctx context.Context, dto EnrollDTO, actorID *int64) (*Registration, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		s.logger.Warn("enrolment validation failed", "error", err)
		return nil, err
	}

	totalFee, err := s.resolveTotalFee(ctx, dto)
	if err != nil {
		return nil, err
	}
	if dto.Discount.GreaterThan(totalFee) {
		return nil, internal.NewValidationFieldError("discount", "discount cannot exceed the total fee", internal.ErrCodeInvalidAmount)
	}

	if dto.TnxID != nil {
		exists, err := s.repo.TnxIDExists(ctx, *dto.TnxID)
		if err != nil {
			s.logger.Error("failed to check transaction id", "error", err)
			return nil, internal.NewInternalError("failed to check transaction id", err)
		}
		if exists {
			s.logger.Warn("duplicate transaction id on enrolment", "tnx_id", *dto.TnxID)
			return nil, internal.ErrDuplicateTransaction
		}
	}

	if dto.UserID != "" {
		exists, err := s.repo.UserIDExists(ctx, dto.UserID)
		if err != nil {
			return nil, internal.NewInternalError("failed to check registration user id", err)
		}
		if exists {
			return nil, internal.ErrDuplicateStudentID
		}
	}

	isDuplicate := func(err error) bool { return errors.Is(err, internal.ErrDuplicateKey) }
	reg, err := txretry.Do(ctx, s.retry, isDuplicate, func(ctx context.Context) (*Registration, error) {
		userID := dto.UserID
		if userID == "" {
			userID = s.serials.StudentID()
		}

		reg := NewRegistration(dto, totalFee, userID)
		model := ToDataModel(reg)

		var initial *feeDatamodel.Fee
		if amount := dto.InitialPayment(reg.FinalFee); amount.IsPositive() {
			initial = s.openingEntry(dto, reg, amount, actorID)
		}

		if err := s.repo.Create(ctx, model, initial); err != nil {
			return nil, err
		}
		return FromDataModel(model), nil
	})
	if err != nil {
		return nil, s.translateCreateError(ctx, dto, err)
	}

	s.logger.Info("registration enrolled",
		"registration_id", reg.ID,
		"user_id", reg.UserID,
		"final_fee", reg.FinalFee.String(),
		"paid_amount", reg.PaidAmount.String(),
		"status", reg.TrainingFeeStatus)

	s.publish(ctx, events.NewRegistrationEnrolledEvent(reg.Student(), reg.FinalFee, reg.PaidAmount, reg.DueAmount))

	return reg, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Registration, error) {
	model, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("failed to get registration", "error", err, "registration_id", id)
		return nil, internal.NewInternalError("failed to get registration", err)
	}
	return FromDataModel(model), nil
}

// CheckDues reads the outstanding balance straight from the aggregate.
func (s *Service) CheckDues(ctx context.Context, registrationID int64) (*Dues, error) {
	reg, err := s.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	return reg.Dues(), nil
}

// SendDuesReminders publishes a reminder for every registration that still owes money.
func (s *Service) SendDuesReminders(ctx context.Context) (int, error) {
	models, err := s.repo.ListWithDues(ctx)
	if err != nil {
		s.logger.Error("failed to list registrations with dues", "error", err)
		return 0, internal.NewInternalError("failed to list registrations with dues", err)
	}

	sent := 0
	for _, reg := range FromDataModelSlice(models) {
		if !reg.HasDues() || (reg.Email == "" && reg.Mobile == "") {
			continue
		}
		s.publish(ctx, events.NewDuesReminderEvent(reg.Student(), reg.DueAmount))
		sent++
	}

	s.logger.Info("dues reminders queued", "count", sent)
	return sent, nil
}

func (s *Service) resolveTotalFee(ctx context.Context, dto EnrollDTO) (decimal.Decimal, error) {
	if dto.TechnologyID == nil {
		return *dto.TotalFee, nil
	}

	tech, err := s.repo.GetTechnology(ctx, *dto.TechnologyID)
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return decimal.Zero, err
		}
		s.logger.Error("failed to load technology", "error", err, "technology_id", *dto.TechnologyID)
		return decimal.Zero, internal.NewInternalError("failed to load technology", err)
	}
	return tech.Price, nil
}

func (s *Service) openingEntry(dto EnrollDTO, reg *Registration, amount decimal.Decimal, actorID *int64) *feeDatamodel.Fee {
	tnxStatus := dto.TnxStatus
	if reg.DueAmount.IsZero() {
		tnxStatus = feeDatamodel.TnxStatusFullPaid
	}

	now := time.Now()
	return &feeDatamodel.Fee{
		ReceiptNo:   s.serials.Receipt(),
		TnxID:       dto.TnxID,
		TotalFee:    reg.TotalFee,
		Discount:    reg.Discount,
		FinalFee:    reg.FinalFee,
		PaidAmount:  reg.PaidAmount,
		Amount:      amount,
		DueAmount:   reg.DueAmount,
		PaymentType: dto.PaymentType,
		Mode:        dto.Mode,
		Status:      feeDatamodel.StatusNew,
		TnxStatus:   tnxStatus,
		QRCodeID:    dto.QRCodeID,
		HRID:        dto.HRID,
		PaidBy:      actorID,
		Remark:      dto.Remark,
		PaymentDate: now,
	}
}

func (s *Service) translateCreateError(ctx context.Context, dto EnrollDTO, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	if !errors.Is(err, internal.ErrDuplicateKey) {
		s.logger.Error("failed to create registration", "error", err)
		return internal.NewInternalError("failed to create registration", err)
	}

	if dto.TnxID != nil {
		if exists, lookupErr := s.repo.TnxIDExists(ctx, *dto.TnxID); lookupErr == nil && exists {
			return internal.ErrDuplicateTransaction
		}
	}
	if dto.UserID != "" {
		return internal.ErrDuplicateStudentID
	}

	s.logger.Error("could not allocate unique registration identifiers", "error", err)
	return internal.NewConflictError("Could not allocate a unique registration id, please retry", internal.ErrCodeConcurrentUpdate)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
