package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/database"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	technologyDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/technology"
	"github.com/digicoders/feeledger/internal/registration"
	"gorm.io/gorm"
)

type RegistrationRepository struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) registration.RepositoryAPI {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id int64) (*registrationDatamodel.Registration, error) {
	var reg registrationDatamodel.Registration
	if err := r.db.WithContext(ctx).First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (r *RegistrationRepository) GetTechnology(ctx context.Context, id int64) (*technologyDatamodel.Technology, error) {
	var tech technologyDatamodel.Technology
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&tech).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTechnologyNotFound
		}
		return nil, err
	}
	return &tech, nil
}

func (r *RegistrationRepository) TnxIDExists(ctx context.Context, tnxID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&feeDatamodel.Fee{}).Where("tnx_id = ?", tnxID).Count(&count).Error
	return count > 0, err
}

func (r *RegistrationRepository) UserIDExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&registrationDatamodel.Registration{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *registrationDatamodel.Registration, initial *feeDatamodel.Fee) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reg).Error; err != nil {
			return err
		}
		if initial == nil {
			return nil
		}
		initial.RegistrationID = reg.ID
		return tx.Create(initial).Error
	})
	return database.TranslateError(err)
}

func (r *RegistrationRepository) ListWithDues(ctx context.Context) ([]*registrationDatamodel.Registration, error) {
	var regs []*registrationDatamodel.Registration
	err := r.db.WithContext(ctx).
		Where("due_amount > ?", 0).
		Order("id ASC").
		Find(&regs).Error
	return regs, err
}

// SaveBalance writes the running balance only if the row still carries the
// version the caller read. On success reg.Version is advanced.
func SaveBalance(tx *gorm.DB, reg *registrationDatamodel.Registration) error {
	res := tx.Model(&registrationDatamodel.Registration{}).
		Where("id = ? AND version = ?", reg.ID, reg.Version).
		Updates(map[string]interface{}{
			"paid_amount":         reg.PaidAmount,
			"due_amount":          reg.DueAmount,
			"training_fee_status": reg.TrainingFeeStatus,
			"version":             reg.Version + 1,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrVersionConflict
	}
	reg.Version++
	return nil
}
