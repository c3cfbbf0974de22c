package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("a user with this email already exists")
)

type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"-"`

	Email        string `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	FirstName    string `gorm:"column:first_name;type:varchar(100);not null" json:"first_name"`
	LastName     string `gorm:"column:last_name;type:varchar(100);not null" json:"last_name"`
	Phone        string `gorm:"column:phone;type:varchar(20)" json:"phone,omitempty"`
	Role         Role   `gorm:"column:role;type:varchar(20);not null;index" json:"role"`

	// Doctor profile. Consultation fee is the amount snapshotted onto new
	// bookings; verification is granted by an admin before a doctor becomes
	// bookable.
	Specialization  string  `gorm:"column:specialization;type:varchar(100)" json:"specialization,omitempty"`
	ConsultationFee float64 `gorm:"column:consultation_fee;type:numeric(10,2)" json:"consultation_fee,omitempty"`

	IsActive   bool `gorm:"column:is_active;default:true;index" json:"is_active"`
	IsVerified bool `gorm:"column:is_verified;default:false;index" json:"is_verified"`

	FailedLoginCount  int        `gorm:"column:failed_login_count;default:0" json:"-"`
	LockedUntil       *time.Time `gorm:"column:locked_until" json:"-"`
	LastLoginAt       *time.Time `gorm:"column:last_login_at" json:"-"`
	PasswordChangedAt time.Time  `gorm:"column:password_changed_at" json:"-"`
}

func (User) TableName() string {
	return "auth.users"
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsLocked returns true if the account is temporarily locked due to failed logins.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && time.Now().Before(*u.LockedUntil)
}

// IsBookableDoctor reports whether this user can accept new appointments.
func (u *User) IsBookableDoctor() bool {
	return u.Role == RoleDoctor && u.IsActive && u.IsVerified
}

type AuditAction string

const (
	ActionCreate AuditAction = "create"
	ActionRead   AuditAction = "read"
	ActionUpdate AuditAction = "update"
	ActionCancel AuditAction = "cancel"
	ActionLogin  AuditAction = "login"
	ActionLogout AuditAction = "logout"
)

type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	// Who
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserRole  Role      `gorm:"column:user_role;type:varchar(20);not null"`
	IPAddress string    `gorm:"column:ip_address;type:varchar(45)"` // Supports IPv6

	// What
	Action       AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	ResourceType string      `gorm:"column:resource_type;type:varchar(50);not null;index"`
	ResourceID   string      `gorm:"column:resource_id;type:varchar(50);index"`

	RequestID  string `gorm:"column:request_id;type:varchar(50);index"`
	StatusCode int    `gorm:"column:status_code"`

	Changes string `gorm:"column:changes;type:jsonb"`
}

func (AuditLog) TableName() string {
	return "audit.logs"
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // Always "Bearer"
}

type Claims struct {
	UserID uuid.UUID `json:"sub"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}
