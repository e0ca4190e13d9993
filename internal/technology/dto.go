package technology

import (
	"strings"

	errors "github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

type CreateTechnologyDTO struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (d *CreateTechnologyDTO) Normalize() {
	d.Name = strings.TrimSpace(d.Name)
}

func (d CreateTechnologyDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(120)
	v.Field("price", d.Price).Positive(errors.ErrCodeInvalidAmount)
	return v.Validate()
}
