package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/pkg/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked due to multiple failed login attempts")
	ErrAccountInactive    = errors.New("account is inactive")
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	ListDoctors(ctx context.Context, onlyVerified bool) ([]*domain.User, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
}

type RegisterCommand struct {
	Email           string
	Password        string
	FirstName       string
	LastName        string
	Phone           string
	Role            domain.Role
	Specialization  string
	ConsultationFee float64
}

type AuthService struct {
	userRepo   UserRepository
	jwtManager *auth.JWTManager
	log        *zap.Logger
}

func NewAuthService(userRepo UserRepository, jwtManager *auth.JWTManager, log *zap.Logger) *AuthService {
	return &AuthService{userRepo: userRepo, jwtManager: jwtManager, log: log}
}

// Register creates a new account. Patients are usable immediately; doctors
// start unverified and only become bookable after an admin verifies them.
func (s *AuthService) Register(ctx context.Context, cmd *RegisterCommand) (*domain.User, error) {
	if err := validateRegisterCommand(cmd); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if existing, err := s.userRepo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, domain.ErrUserAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u := &domain.User{
		Email:           email,
		PasswordHash:    string(hash),
		FirstName:       strings.TrimSpace(cmd.FirstName),
		LastName:        strings.TrimSpace(cmd.LastName),
		Phone:           strings.TrimSpace(cmd.Phone),
		Role:            cmd.Role,
		Specialization:  strings.TrimSpace(cmd.Specialization),
		ConsultationFee: cmd.ConsultationFee,
		IsActive:        true,
		IsVerified:      cmd.Role == domain.RolePatient,
	}

	if err := s.userRepo.Create(ctx, u); err != nil {
		s.log.Error("failed to create user", zap.Error(err))
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.log.Info("user registered",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
	)

	return u, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, ip string) (*domain.TokenPair, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Use bcrypt dummy hash to prevent timing-based user enumeration.
		_, _ = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrAccountInactive
	}

	if user.IsLocked() {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		// Record failed attempt; lock if threshold exceeded
		_ = s.userRepo.UpdateLoginAttempt(ctx, user.ID, false)
		s.log.Warn("failed login attempt",
			zap.String("email", email),
			zap.String("ip", ip),
		)
		return nil, ErrInvalidCredentials
	}

	_ = s.userRepo.UpdateLoginAttempt(ctx, user.ID, true)

	pair, err := s.jwtManager.GenerateTokenPair(&domain.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		s.log.Error("failed to generate token pair", zap.Error(err))
		return nil, fmt.Errorf("generating tokens: %w", err)
	}

	s.log.Info("user logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("ip", ip),
	)

	return pair, nil
}

// RefreshToken issues a new access token given a valid refresh token.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Re-validate user is still active
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	return s.jwtManager.GenerateTokenPair(&domain.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
}

// ChangePassword updates a user's password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	if err := validatePasswordStrength(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.userRepo.UpdatePassword(ctx, userID, string(hash))
}

func validateRegisterCommand(cmd *RegisterCommand) error {
	var fields []string
	if !strings.Contains(cmd.Email, "@") {
		fields = append(fields, "email is invalid")
	}
	if cmd.FirstName == "" || cmd.LastName == "" {
		fields = append(fields, "first and last name are required")
	}
	if cmd.Role != domain.RolePatient && cmd.Role != domain.RoleDoctor {
		fields = append(fields, "role must be patient or doctor")
	}
	if cmd.Role == domain.RoleDoctor && cmd.ConsultationFee <= 0 {
		fields = append(fields, "consultation fee is required for doctors")
	}
	if err := validatePasswordStrength(cmd.Password); err != nil {
		fields = append(fields, err.Error())
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validatePasswordStrength(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	return nil
}
