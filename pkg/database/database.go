package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dpatel-io/clinicbook/internal/config"
	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/internal/domain/appointment"
)

func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Silent),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: cfg.DSN(),
	}), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")
	start := time.Now()

	schemas := []string{"clinical", "auth", "audit"} // logical namespaces
	for _, schema := range schemas {
		if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)).Error; err != nil {
			return fmt.Errorf("creating schema %s: %w", schema, err)
		}
	}

	models := []any{
		&domain.User{},
		&domain.AuditLog{},
		&appointment.Appointment{},
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}

	log.Info("migrations completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []struct {
		name  string
		query string
	}{
		// Conflict scans read exactly this: a doctor's blocking appointments.
		{
			name:  "idx_appointments_doctor_blocking",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_doctor_blocking ON clinical.appointments (doctor_id, scheduled_date, scheduled_time) WHERE deleted_at IS NULL AND status IN ('scheduled', 'confirmed', 'in-progress')`,
		},
		{
			name:  "idx_appointments_patient_date",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_patient_date ON clinical.appointments (patient_id, scheduled_date) WHERE deleted_at IS NULL`,
		},
		// Reminder sweep: upcoming, not yet reminded.
		{
			name:  "idx_appointments_reminder",
			query: `CREATE INDEX IF NOT EXISTS idx_appointments_reminder ON clinical.appointments (scheduled_date) WHERE deleted_at IS NULL AND reminder_sent = false AND status IN ('scheduled', 'confirmed')`,
		},
		{
			name:  "idx_users_doctors",
			query: `CREATE INDEX IF NOT EXISTS idx_users_doctors ON auth.users (role, is_active, is_verified) WHERE deleted_at IS NULL AND role = 'doctor'`,
		},
	}

	for _, idx := range indexes {
		if err := db.Exec(idx.query).Error; err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}

	return nil
}
