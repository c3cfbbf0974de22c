package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateIfFree persists a new appointment after re-checking, inside the
	// same transaction and under a row lock on the doctor's blocking
	// appointments, that the slot is still free. Returns ErrSlotUnavailable
	// if a concurrent booking won the race.
	CreateIfFree(ctx context.Context, a *Appointment) error

	// RescheduleIfFree saves a slot-changing update under the same
	// transactional conflict check, excluding the appointment's own row.
	RescheduleIfFree(ctx context.Context, a *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, a *Appointment) error
	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// FindBlocking returns every appointment for the doctor in a blocking
	// status, optionally excluding one id (a reschedule checking against
	// itself). Deliberately not scoped to a calendar date: intervals are
	// derived from the full date+time, so a late slot may cross midnight.
	FindBlocking(ctx context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*Appointment, error)

	// FindUpcoming returns blocking appointments starting within the next N
	// hours that have not had a reminder sent yet.
	FindUpcoming(ctx context.Context, withinHours int) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
}
