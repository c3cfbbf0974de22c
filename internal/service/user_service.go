package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dpatel-io/clinicbook/internal/domain"
)

// UserService exposes the directory operations the dashboards need: browsing
// bookable doctors and admin verification of new doctor accounts.
type UserService struct {
	repo     UserRepository
	auditSvc *AuditService
	log      *zap.Logger
}

func NewUserService(repo UserRepository, auditSvc *AuditService, log *zap.Logger) *UserService {
	return &UserService{repo: repo, auditSvc: auditSvc, log: log}
}

// ListDoctors returns doctors for the booking UI. Non-admin callers only see
// verified, bookable doctors.
func (s *UserService) ListDoctors(ctx context.Context, callerRole string) ([]*domain.User, error) {
	onlyVerified := callerRole != string(domain.RoleAdmin)
	return s.repo.ListDoctors(ctx, onlyVerified)
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.repo.GetByID(ctx, id)
}

// VerifyDoctor flips a doctor account to verified, making it bookable.
// Admin only.
func (s *UserService) VerifyDoctor(ctx context.Context, doctorID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*domain.User, error) {
	if callerRole != string(domain.RoleAdmin) {
		return nil, ErrForbidden
	}

	u, err := s.repo.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if u.Role != domain.RoleDoctor {
		return nil, domain.ErrUserNotFound
	}

	if err := s.repo.SetVerified(ctx, doctorID, true); err != nil {
		s.log.Error("failed to verify doctor", zap.Error(err))
		return nil, fmt.Errorf("verifying doctor: %w", err)
	}
	u.IsVerified = true

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "user", ResourceID: doctorID.String(), IPAddress: ip,
		Changes: `{"is_verified":true}`,
	})

	return u, nil
}
