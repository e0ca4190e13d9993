package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/database"
	feeDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/fee"
	registrationDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/registration"
	"github.com/digicoders/feeledger/internal/fee"
	registrationPostgres "github.com/digicoders/feeledger/internal/registration/postgres"
	"gorm.io/gorm"
)

type FeeRepository struct {
	db *gorm.DB
}

func NewFeeRepository(db *gorm.DB) fee.RepositoryAPI {
	return &FeeRepository{db: db}
}

func (r *FeeRepository) GetByID(ctx context.Context, id int64) (*feeDatamodel.Fee, error) {
	var f feeDatamodel.Fee
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrFeeNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *FeeRepository) GetRegistration(ctx context.Context, id int64) (*registrationDatamodel.Registration, error) {
	var reg registrationDatamodel.Registration
	if err := r.db.WithContext(ctx).First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (r *FeeRepository) TnxIDExists(ctx context.Context, tnxID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&feeDatamodel.Fee{}).Where("tnx_id = ?", tnxID).Count(&count).Error
	return count > 0, err
}

// Record inserts the entry and advances the registration balance together.
func (r *FeeRepository) Record(ctx context.Context, entry *feeDatamodel.Fee, reg *registrationDatamodel.Registration) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := registrationPostgres.SaveBalance(tx, reg); err != nil {
			return err
		}
		entry.RegistrationID = reg.ID
		return tx.Create(entry).Error
	})
	return database.TranslateError(err)
}

func (r *FeeRepository) SaveStatus(ctx context.Context, entry *feeDatamodel.Fee, wasReversed bool, reg *registrationDatamodel.Registration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&feeDatamodel.Fee{}).
			Where("id = ? AND reversed = ?", entry.ID, wasReversed).
			Updates(map[string]interface{}{
				"status":      entry.Status,
				"tnx_status":  entry.TnxStatus,
				"reversed":    entry.Reversed,
				"verified_by": entry.VerifiedBy,
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return internal.ErrVersionConflict
		}

		if reg == nil {
			return nil
		}
		return registrationPostgres.SaveBalance(tx, reg)
	})
}

func (r *FeeRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&feeDatamodel.Fee{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrFeeNotFound
	}
	return nil
}
