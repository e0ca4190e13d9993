package postgres

import (
	"context"
	"errors"

	"github.com/digicoders/feeledger/internal"
	"github.com/digicoders/feeledger/internal/auth"
	userDatamodel "github.com/digicoders/feeledger/internal/core/datamodel/user"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) auth.RepositoryAPI {
	return &Repository{db: db}
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var user userDatamodel.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrInvalidCredentials
		}
		return nil, err
	}
	return &user, nil
}

// GetUserWithPermissions returns ErrInvalidToken for unknown or inactive users so
// a token outliving its account is rejected.
func (r *Repository) GetUserWithPermissions(ctx context.Context, userID int64) (*internal.User, error) {
	var user userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", userID, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, err
	}

	var permissions []string
	err = r.db.WithContext(ctx).
		Table("permissions p").
		Joins("JOIN user_permissions up ON p.id = up.permission_id").
		Where("up.user_id = ?", userID).
		Order("p.name").
		Pluck("p.name", &permissions).Error
	if err != nil {
		return nil, err
	}

	return &internal.User{
		ID:          user.ID,
		Email:       user.Email,
		Permissions: permissions,
	}, nil
}
