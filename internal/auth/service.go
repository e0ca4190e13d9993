package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/digicoders/feeledger/internal"
	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	userRepo       RepositoryAPI
	tokenGenerator TokenGeneratorAPI
	bcryptCost     int
	accessTTL      int64
	logger         *slog.Logger
}

func NewService(userRepo RepositoryAPI, tokenGen *JWTTokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		bcryptCost:     bcryptCost,
		accessTTL:      int64(tokenGen.AccessTokenTTL.Seconds()),
		logger:         logger,
	}
}

// Authenticate checks staff credentials and issues a token pair.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	user, err := s.userRepo.GetByEmail(ctx, dto.Email)
	if err != nil {
		if _, ok := internal.IsAppError(err); !ok {
			s.logger.Error("failed to load user", "error", err)
			return AuthTokens{}, internal.NewInternalError("failed to authenticate", err)
		}
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if err := VerifyPassword(user.PasswordHash, dto.Password); err != nil {
		s.logger.Warn("login failed: wrong password", "user_id", user.ID)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if !user.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return s.issue(user.ID, user.Email)
}

// RefreshTokens trades a valid refresh token for a new pair. The user must still be active.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	if err := (RefreshTokenDTO{RefreshToken: refreshToken}).Validate(); err != nil {
		return AuthTokens{}, err
	}

	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	userID, err := claims.ID()
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}

	user, err := s.GetUserWithPermissions(ctx, userID)
	if err != nil {
		return AuthTokens{}, err
	}

	return s.issue(user.ID, user.Email)
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateAccessToken(tokenString)
}

// GetUserWithPermissions loads an active user and the permissions granted to them.
func (s *Service) GetUserWithPermissions(ctx context.Context, userID int64) (*internal.User, error) {
	user, err := s.userRepo.GetUserWithPermissions(ctx, userID)
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("failed to load user permissions", "error", err, "user_id", userID)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	return user, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	return HashPassword(password, s.bcryptCost)
}

func (s *Service) issue(userID int64, email string) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(userID, email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate access token", err)
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(userID, email)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate refresh token", err)
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.accessTTL,
	}, nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateRandomToken returns 32 random bytes hex encoded.
func GenerateRandomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
