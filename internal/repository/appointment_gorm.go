package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dpatel-io/clinicbook/internal/domain/appointment"
)

type AppointmentGormRepository struct {
	db *gorm.DB
}

func NewAppointmentGormRepository(db *gorm.DB) *AppointmentGormRepository {
	return &AppointmentGormRepository{db: db}
}

// blockingQuery scopes tx to the doctor's appointments in blocking statuses,
// optionally excluding one row.
func blockingQuery(tx *gorm.DB, doctorID uuid.UUID, excludeID *uuid.UUID) *gorm.DB {
	q := tx.Model(&appointment.Appointment{}).
		Where("doctor_id = ? AND status IN ?", doctorID, appointment.BlockingStatuses)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	return q
}

// CreateIfFree inserts the appointment inside a transaction that first locks
// the doctor's blocking rows (SELECT ... FOR UPDATE) and re-runs the overlap
// check against them. A plain check-then-insert would race with a concurrent
// booking between the service's read and this write; the lock closes that
// window for the doctor's schedule.
func (r *AppointmentGormRepository) CreateIfFree(ctx context.Context, a *appointment.Appointment) error {
	candidate, err := a.Interval()
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blocking []*appointment.Appointment
		if err := blockingQuery(tx, a.DoctorID, nil).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Find(&blocking).Error; err != nil {
			return err
		}

		if appointment.ConflictsWith(candidate, blocking) {
			return appointment.ErrSlotUnavailable
		}

		return tx.Create(a).Error
	})
}

// RescheduleIfFree saves a slot-changing update under the same locked conflict
// re-check, skipping the appointment's own row.
func (r *AppointmentGormRepository) RescheduleIfFree(ctx context.Context, a *appointment.Appointment) error {
	candidate, err := a.Interval()
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var blocking []*appointment.Appointment
		if err := blockingQuery(tx, a.DoctorID, &a.ID).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Find(&blocking).Error; err != nil {
			return err
		}

		if appointment.ConflictsWith(candidate, blocking) {
			return appointment.ErrSlotUnavailable
		}

		return tx.Save(a).Error
	})
}

func (r *AppointmentGormRepository) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var a appointment.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appointment.ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentGormRepository) Update(ctx context.Context, a *appointment.Appointment) error {
	return r.db.WithContext(ctx).Save(a).Error
}

func (r *AppointmentGormRepository) UpdateStatus(ctx context.Context, a *appointment.Appointment) error {
	return r.db.WithContext(ctx).Model(a).
		Select("status", "cancellation_reason", "cancelled_by", "cancelled_at").
		Updates(a).Error
}

func (r *AppointmentGormRepository) List(ctx context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	query := r.db.WithContext(ctx).Model(&appointment.Appointment{})

	if q.PatientID != nil {
		query = query.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		query = query.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		query = query.Where("status = ?", *q.Status)
	}
	if q.Type != nil {
		query = query.Where("type = ?", *q.Type)
	}
	if q.DateFrom != nil {
		query = query.Where("scheduled_date >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		query = query.Where("scheduled_date <= ?", *q.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []*appointment.Appointment
	offset := (q.Page - 1) * q.PageSize
	if err := query.
		Order("scheduled_date ASC, scheduled_time ASC").
		Offset(offset).
		Limit(q.PageSize).
		Find(&items).Error; err != nil {
		return nil, err
	}

	totalPages := int(total) / q.PageSize
	if int(total)%q.PageSize != 0 {
		totalPages++
	}

	return &appointment.PagedAppointments{
		Appointments: items,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages,
	}, nil
}

func (r *AppointmentGormRepository) FindBlocking(ctx context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	var blocking []*appointment.Appointment
	if err := blockingQuery(r.db.WithContext(ctx), doctorID, excludeID).
		Order("scheduled_date ASC, scheduled_time ASC").
		Find(&blocking).Error; err != nil {
		return nil, err
	}
	return blocking, nil
}

// FindUpcoming returns blocking appointments starting within the next N hours
// that have not been reminded yet. The coarse date filter narrows the scan;
// the precise start-time window is applied on the derived intervals.
func (r *AppointmentGormRepository) FindUpcoming(ctx context.Context, withinHours int) ([]*appointment.Appointment, error) {
	now := time.Now()
	horizon := now.Add(time.Duration(withinHours) * time.Hour)

	var candidates []*appointment.Appointment
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND reminder_sent = false", appointment.BlockingStatuses).
		Where("scheduled_date >= ? AND scheduled_date <= ?",
			now.AddDate(0, 0, -1).Format("2006-01-02"),
			horizon.Format("2006-01-02"),
		).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	upcoming := make([]*appointment.Appointment, 0, len(candidates))
	for _, a := range candidates {
		iv, err := a.Interval()
		if err != nil {
			continue
		}
		if iv.Start.After(now) && iv.Start.Before(horizon) {
			upcoming = append(upcoming, a)
		}
	}
	return upcoming, nil
}

func (r *AppointmentGormRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]any{"reminder_sent": true, "reminder_sent_at": now}).Error
}

// Compile-time check
var _ appointment.Repository = (*AppointmentGormRepository)(nil)
