package postgres

import (
	"context"
	"errors"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/database"
	technologyDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/technology"
	"github.com/digicoders/feeledger/internal/technology"
	"gorm.io/gorm"
)

type TechnologyRepository struct {
	db *gorm.DB
}

func NewTechnologyRepository(db *gorm.DB) technology.RepositoryAPI {
	return &TechnologyRepository{db: db}
}

func (r *TechnologyRepository) ListActive(ctx context.Context) ([]*technologyDatamodel.Technology, error) {
	var techs []*technologyDatamodel.Technology
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&techs).Error
	return techs, err
}

func (r *TechnologyRepository) GetByID(ctx context.Context, id int64) (*technologyDatamodel.Technology, error) {
	var tech technologyDatamodel.Technology
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tech).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTechnologyNotFound
		}
		return nil, err
	}
	return &tech, nil
}

func (r *TechnologyRepository) Create(ctx context.Context, tech *technologyDatamodel.Technology) error {
	return database.TranslateError(r.db.WithContext(ctx).Create(tech).Error)
}

func (r *TechnologyRepository) Deactivate(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&technologyDatamodel.Technology{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return internal.ErrTechnologyNotFound
	}
	return nil
}
