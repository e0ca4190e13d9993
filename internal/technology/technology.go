package technology

import (
	"time"

	technologyDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/technology"
	"github.com/shopspring/decimal"
)

// Technology is a course a student can enrol in. Its price seeds the
// registration's total fee.
type Technology struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func NewTechnology(name string, price decimal.Decimal) *Technology {
	now := time.Now()
	return &Technology{
		Name:      name,
		Price:     price.Round(2),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (t *Technology) Deactivate() {
	t.IsActive = false
	t.UpdatedAt = time.Now()
}

func ToDataModel(t *Technology) *technologyDatamodel.Technology {
	return &technologyDatamodel.Technology{
		ID:        t.ID,
		Name:      t.Name,
		Price:     t.Price,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func FromDataModel(t *technologyDatamodel.Technology) *Technology {
	return &Technology{
		ID:        t.ID,
		Name:      t.Name,
		Price:     t.Price,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
