package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/internal/service"
)

const (
	maxFailedAttempts = 5
	lockDuration      = 15 * time.Minute
)

type UserGormRepository struct {
	db *gorm.DB
}

func NewUserGormRepository(db *gorm.DB) *UserGormRepository {
	return &UserGormRepository{db: db}
}

func (r *UserGormRepository) Create(ctx context.Context, u *domain.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserGormRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserGormRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateLoginAttempt resets the failure counter on success, increments it on
// failure and locks the account once the threshold is crossed.
func (r *UserGormRepository) UpdateLoginAttempt(ctx context.Context, id uuid.UUID, success bool) error {
	if success {
		now := time.Now()
		return r.db.WithContext(ctx).Model(&domain.User{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"failed_login_count": 0,
				"locked_until":       nil,
				"last_login_at":      now,
			}).Error
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := tx.First(&u, "id = ?", id).Error; err != nil {
			return err
		}

		updates := map[string]any{"failed_login_count": u.FailedLoginCount + 1}
		if u.FailedLoginCount+1 >= maxFailedAttempts {
			updates["locked_until"] = time.Now().Add(lockDuration)
		}
		return tx.Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (r *UserGormRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":       hash,
			"password_changed_at": time.Now(),
		}).Error
}

func (r *UserGormRepository) ListDoctors(ctx context.Context, onlyVerified bool) ([]*domain.User, error) {
	q := r.db.WithContext(ctx).
		Where("role = ? AND is_active = true", domain.RoleDoctor)
	if onlyVerified {
		q = q.Where("is_verified = true")
	}

	var doctors []*domain.User
	if err := q.Order("last_name ASC, first_name ASC").Find(&doctors).Error; err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *UserGormRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_verified", verified).Error
}

// Compile-time check
var _ service.UserRepository = (*UserGormRepository)(nil)
