package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/internal/domain/appointment"
)

// fakeAppointmentRepo is an in-memory appointment.Repository that mirrors the
// real implementation's conflict semantics.
type fakeAppointmentRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*appointment.Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{store: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *fakeAppointmentRepo) blocking(doctorID uuid.UUID, excludeID *uuid.UUID) []*appointment.Appointment {
	var out []*appointment.Appointment
	for _, a := range r.store {
		if a.DoctorID != doctorID || !a.Status.IsBlocking() {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (r *fakeAppointmentRepo) CreateIfFree(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	iv, err := a.Interval()
	if err != nil {
		return err
	}
	if appointment.ConflictsWith(iv, r.blocking(a.DoctorID, nil)) {
		return appointment.ErrSlotUnavailable
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.store[a.ID] = a
	return nil
}

func (r *fakeAppointmentRepo) RescheduleIfFree(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	iv, err := a.Interval()
	if err != nil {
		return err
	}
	if appointment.ConflictsWith(iv, r.blocking(a.DoctorID, &a.ID)) {
		return appointment.ErrSlotUnavailable
	}
	r.store[a.ID] = a
	return nil
}

func (r *fakeAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.store[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAppointmentRepo) Update(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[a.ID] = a
	return nil
}

func (r *fakeAppointmentRepo) UpdateStatus(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[a.ID] = a
	return nil
}

func (r *fakeAppointmentRepo) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []*appointment.Appointment
	for _, a := range r.store {
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		matches = append(matches, a)
	}
	return &appointment.PagedAppointments{
		Appointments: matches,
		TotalCount:   int64(len(matches)),
		Page:         q.Page,
		PageSize:     q.PageSize,
	}, nil
}

func (r *fakeAppointmentRepo) FindBlocking(_ context.Context, doctorID uuid.UUID, excludeID *uuid.UUID) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocking(doctorID, excludeID), nil
}

func (r *fakeAppointmentRepo) FindUpcoming(_ context.Context, withinHours int) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(time.Duration(withinHours) * time.Hour)
	var out []*appointment.Appointment
	for _, a := range r.store {
		if a.ReminderSent || !a.Status.IsBlocking() {
			continue
		}
		iv, err := a.Interval()
		if err != nil {
			continue
		}
		if iv.Start.After(now) && iv.Start.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAppointmentRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.store[id]; ok {
		a.ReminderSent = true
	}
	return nil
}

type fakeUserDirectory struct {
	users map[uuid.UUID]*domain.User
}

func (d *fakeUserDirectory) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Create(context.Context, *domain.AuditLog) error { return nil }

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed chan struct{}
	reminders []string
	err       error
}

func newFakeNotifier(err error) *fakeNotifier {
	return &fakeNotifier{confirmed: make(chan struct{}, 16), err: err}
}

func (n *fakeNotifier) BookingConfirmed(context.Context, string, string, string, time.Time, string) error {
	n.confirmed <- struct{}{}
	return n.err
}

func (n *fakeNotifier) AppointmentReminder(_ context.Context, toEmail string, _, _ string, _ time.Time, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, toEmail)
	return n.err
}

type fixture struct {
	svc     *BookingService
	repo    *fakeAppointmentRepo
	patient *domain.User
	doctor  *domain.User
	admin   *domain.User
}

func newFixture(t *testing.T, notifier Notifier) *fixture {
	t.Helper()

	patient := &domain.User{
		ID: uuid.New(), Email: "pat@example.com",
		FirstName: "Pat", LastName: "Singh",
		Role: domain.RolePatient, IsActive: true, IsVerified: true,
	}
	doctor := &domain.User{
		ID: uuid.New(), Email: "doc@example.com",
		FirstName: "Dana", LastName: "Lee",
		Role: domain.RoleDoctor, IsActive: true, IsVerified: true,
		ConsultationFee: 150,
	}
	admin := &domain.User{
		ID: uuid.New(), Email: "admin@example.com",
		Role: domain.RoleAdmin, IsActive: true, IsVerified: true,
	}

	repo := newFakeAppointmentRepo()
	users := &fakeUserDirectory{users: map[uuid.UUID]*domain.User{
		patient.ID: patient,
		doctor.ID:  doctor,
		admin.ID:   admin,
	}}

	auditSvc := NewAuditService(fakeAuditRepo{}, nil, zap.NewNop())
	t.Cleanup(auditSvc.Shutdown)

	svc := NewBookingService(repo, users, auditSvc, notifier, nil, zap.NewNop())
	return &fixture{svc: svc, repo: repo, patient: patient, doctor: doctor, admin: admin}
}

func futureDate() time.Time {
	d := time.Now().AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func (f *fixture) createCmd() *appointment.CreateAppointmentCommand {
	return &appointment.CreateAppointmentCommand{
		PatientID:      f.patient.ID,
		DoctorID:       f.doctor.ID,
		ScheduledDate:  futureDate(),
		ScheduledTime:  "09:00",
		DurationMins:   30,
		Type:           appointment.TypeConsultation,
		ChiefComplaint: "persistent headache for three days",
	}
}

func (f *fixture) mustSchedule(t *testing.T) *appointment.Appointment {
	t.Helper()
	a, err := f.svc.ScheduleAppointment(context.Background(), f.createCmd(), f.patient.ID, "patient", "127.0.0.1")
	require.NoError(t, err)
	return a
}

func TestScheduleAppointment(t *testing.T) {
	f := newFixture(t, nil)

	a := f.mustSchedule(t)

	assert.Equal(t, appointment.StatusScheduled, a.Status)
	assert.Equal(t, appointment.PriorityNormal, a.Priority)
	assert.Equal(t, appointment.PaymentPending, a.PaymentStatus)
	assert.Equal(t, f.doctor.ConsultationFee, a.Fee, "fee snapshotted from doctor")
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestScheduleAppointmentDefaults(t *testing.T) {
	f := newFixture(t, nil)

	cmd := f.createCmd()
	cmd.DurationMins = 0
	cmd.Type = ""
	cmd.Priority = ""

	a, err := f.svc.ScheduleAppointment(context.Background(), cmd, f.patient.ID, "patient", "")
	require.NoError(t, err)
	assert.Equal(t, 30, a.DurationMins)
	assert.Equal(t, appointment.TypeConsultation, a.Type)
	assert.Equal(t, appointment.PriorityNormal, a.Priority)
}

func TestScheduleConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.mustSchedule(t) // 09:00-09:30

	overlapping := f.createCmd()
	overlapping.ScheduledTime = "09:15"
	_, err := f.svc.ScheduleAppointment(context.Background(), overlapping, f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrSlotUnavailable)

	backToBack := f.createCmd()
	backToBack.ScheduledTime = "09:30"
	_, err = f.svc.ScheduleAppointment(context.Background(), backToBack, f.patient.ID, "patient", "")
	assert.NoError(t, err, "a slot starting exactly when another ends is free")
}

func TestScheduleCancelledSlotIsFree(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	_, err := f.svc.CancelAppointment(context.Background(),
		a.ID,
		&appointment.CancelAppointmentCommand{Reason: "conflict", CancelledBy: f.patient.ID},
		f.patient.ID, "patient", "")
	require.NoError(t, err)

	_, err = f.svc.ScheduleAppointment(context.Background(), f.createCmd(), f.patient.ID, "patient", "")
	assert.NoError(t, err, "cancelled appointments do not block the slot")
}

func TestScheduleValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		mutate  func(cmd *appointment.CreateAppointmentCommand)
		wantErr error
	}{
		{
			name:    "duration below minimum",
			mutate:  func(c *appointment.CreateAppointmentCommand) { c.DurationMins = 14 },
			wantErr: appointment.ErrInvalidDuration,
		},
		{
			name:    "duration above maximum",
			mutate:  func(c *appointment.CreateAppointmentCommand) { c.DurationMins = 121 },
			wantErr: appointment.ErrInvalidDuration,
		},
		{
			name:    "bad time format",
			mutate:  func(c *appointment.CreateAppointmentCommand) { c.ScheduledTime = "9pm" },
			wantErr: appointment.ErrInvalidTimeFormat,
		},
		{
			name:    "unknown type",
			mutate:  func(c *appointment.CreateAppointmentCommand) { c.Type = "walk-in" },
			wantErr: appointment.ErrInvalidAppointmentType,
		},
		{
			name:    "chief complaint too short",
			mutate:  func(c *appointment.CreateAppointmentCommand) { c.ChiefComplaint = "sick" },
			wantErr: appointment.ErrInvalidChiefComplaint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := f.createCmd()
			tt.mutate(cmd)
			_, err := f.svc.ScheduleAppointment(context.Background(), cmd, f.patient.ID, "patient", "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScheduleBoundaryDurations(t *testing.T) {
	f := newFixture(t, nil)

	min := f.createCmd()
	min.DurationMins = 15
	_, err := f.svc.ScheduleAppointment(context.Background(), min, f.patient.ID, "patient", "")
	assert.NoError(t, err)

	max := f.createCmd()
	max.ScheduledTime = "14:00"
	max.DurationMins = 120
	_, err = f.svc.ScheduleAppointment(context.Background(), max, f.patient.ID, "patient", "")
	assert.NoError(t, err)
}

func TestScheduleInPast(t *testing.T) {
	f := newFixture(t, nil)

	cmd := f.createCmd()
	d := time.Now().AddDate(0, 0, -1)
	cmd.ScheduledDate = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

	_, err := f.svc.ScheduleAppointment(context.Background(), cmd, f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrScheduledInPast)
}

func TestScheduleDoctorChecks(t *testing.T) {
	f := newFixture(t, nil)

	f.doctor.IsVerified = false
	_, err := f.svc.ScheduleAppointment(context.Background(), f.createCmd(), f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrDoctorUnavailable)

	f.doctor.IsVerified = true
	f.doctor.IsActive = false
	_, err = f.svc.ScheduleAppointment(context.Background(), f.createCmd(), f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrDoctorUnavailable)

	// Booking with a patient in the doctor seat.
	cmd := f.createCmd()
	cmd.DoctorID = f.patient.ID
	cmd.PatientID = f.admin.ID
	_, err = f.svc.ScheduleAppointment(context.Background(), cmd, f.admin.ID, "admin", "")
	assert.ErrorIs(t, err, appointment.ErrDoctorUnavailable)
}

func TestScheduleSamePatientAndDoctor(t *testing.T) {
	f := newFixture(t, nil)

	cmd := f.createCmd()
	cmd.PatientID = f.doctor.ID

	_, err := f.svc.ScheduleAppointment(context.Background(), cmd, f.doctor.ID, "doctor", "")
	var validErr *ValidationError
	assert.ErrorAs(t, err, &validErr)
}

func TestIsSlotAvailable(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t) // 09:00-09:30

	free, err := f.svc.IsSlotAvailable(context.Background(), f.doctor.ID, futureDate(), "09:15", 30, nil)
	require.NoError(t, err)
	assert.False(t, free)

	// Excluding its own id, the appointment does not conflict with itself.
	free, err = f.svc.IsSlotAvailable(context.Background(), f.doctor.ID, futureDate(), "09:15", 30, &a.ID)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestGetAppointmentAccess(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	_, err := f.svc.GetAppointment(context.Background(), a.ID, f.patient.ID, "patient", "")
	assert.NoError(t, err)
	_, err = f.svc.GetAppointment(context.Background(), a.ID, f.doctor.ID, "doctor", "")
	assert.NoError(t, err)
	_, err = f.svc.GetAppointment(context.Background(), a.ID, f.admin.ID, "admin", "")
	assert.NoError(t, err)

	stranger := uuid.New()
	_, err = f.svc.GetAppointment(context.Background(), a.ID, stranger, "patient", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetAppointment(context.Background(), uuid.New(), f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestPatientReschedule(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	// Moving within the appointment's own window succeeds because the conflict
	// check excludes its own row.
	newTime := "09:15"
	got, err := f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{ScheduledTime: &newTime},
		f.patient.ID, "patient", "")
	require.NoError(t, err)
	assert.Equal(t, "09:15", got.ScheduledTime)
}

func TestRescheduleIntoOccupiedSlot(t *testing.T) {
	f := newFixture(t, nil)
	first := f.mustSchedule(t) // 09:00-09:30

	second := f.createCmd()
	second.ScheduledTime = "10:00"
	b, err := f.svc.ScheduleAppointment(context.Background(), second, f.patient.ID, "patient", "")
	require.NoError(t, err)

	clash := "09:15"
	_, err = f.svc.UpdateAppointment(context.Background(), b.ID,
		&appointment.UpdateAppointmentCommand{ScheduledTime: &clash},
		f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrSlotUnavailable)

	// The original appointment is untouched.
	got, err := f.svc.GetAppointment(context.Background(), first.ID, f.patient.ID, "patient", "")
	require.NoError(t, err)
	assert.Equal(t, "09:00", got.ScheduledTime)
}

func TestUpdatePermissions(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	notes := &appointment.DoctorNotes{Diagnosis: "migraine"}

	// Patients cannot write clinical notes.
	_, err := f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{DoctorNotes: notes},
		f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, ErrForbidden)

	// The doctor can.
	got, err := f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{DoctorNotes: notes},
		f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	require.NotNil(t, got.DoctorNotes)
	assert.Equal(t, "migraine", got.DoctorNotes.Diagnosis)

	// Doctors cannot move the slot.
	newTime := "11:00"
	_, err = f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{ScheduledTime: &newTime},
		f.doctor.ID, "doctor", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestPatientCannotChangeDuration(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	longer := 60
	_, err := f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{DurationMins: &longer},
		f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.GetAppointment(context.Background(), a.ID, f.patient.ID, "patient", "")
	require.NoError(t, err)
	assert.Equal(t, 30, got.DurationMins, "duration unchanged after rejected update")

	// Admins may resize the visit.
	updated, err := f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{DurationMins: &longer},
		f.admin.ID, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, 60, updated.DurationMins)
}

func TestPatientCannotEditAfterStart(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	_, err := f.svc.ConfirmAppointment(context.Background(), a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	_, err = f.svc.StartAppointment(context.Background(), a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)

	cc := "now both temples are throbbing"
	_, err = f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{ChiefComplaint: &cc},
		f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	ctx := context.Background()

	// Patients may not drive status transitions.
	_, err := f.svc.ConfirmAppointment(ctx, a.ID, f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, ErrForbidden)

	// Skipping confirmed is not allowed.
	_, err = f.svc.StartAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)

	got, err := f.svc.ConfirmAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)

	got, err = f.svc.StartAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusInProgress, got.Status)

	got, err = f.svc.CompleteAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, got.Status)

	// Completed is terminal.
	_, err = f.svc.ConfirmAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	got, err := f.svc.MarkNoShow(context.Background(), a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, got.Status)
}

func TestCancelAppointment(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	got, err := f.svc.CancelAppointment(context.Background(), a.ID,
		&appointment.CancelAppointmentCommand{Reason: "schedule conflict", CancelledBy: f.patient.ID},
		f.patient.ID, "patient", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, "schedule conflict", got.CancellationReason)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, f.patient.ID, *got.CancelledBy)
}

func TestCancelViaStatusUpdateKeepsReason(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	cancelled := appointment.StatusCancelled
	reason := "patient admitted elsewhere"
	got, err := f.svc.UpdateAppointment(context.Background(), a.ID,
		&appointment.UpdateAppointmentCommand{Status: &cancelled, CancellationReason: &reason},
		f.doctor.ID, "doctor", "")
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, reason, got.CancellationReason)
	require.NotNil(t, got.CancelledBy)
	assert.Equal(t, f.doctor.ID, *got.CancelledBy)
}

func TestAdminCannotCancelCompleted(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	ctx := context.Background()
	_, err := f.svc.ConfirmAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	_, err = f.svc.StartAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	_, err = f.svc.CompleteAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)

	// Admin access is granted, but the transition graph still wins.
	_, err = f.svc.CancelAppointment(ctx, a.ID,
		&appointment.CancelAppointmentCommand{Reason: "cleanup", CancelledBy: f.admin.ID},
		f.admin.ID, "admin", "")
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestRateAppointment(t *testing.T) {
	f := newFixture(t, nil)
	a := f.mustSchedule(t)

	ctx := context.Background()
	cmd := &appointment.RateAppointmentCommand{Rating: 4, Feedback: "helpful"}

	// Not completed yet.
	_, err := f.svc.RateAppointment(ctx, a.ID, cmd, f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrNotRatable)

	_, err = f.svc.ConfirmAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	_, err = f.svc.StartAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)
	_, err = f.svc.CompleteAppointment(ctx, a.ID, f.doctor.ID, "doctor", "")
	require.NoError(t, err)

	// Only the patient may rate.
	_, err = f.svc.RateAppointment(ctx, a.ID, cmd, f.doctor.ID, "doctor", "")
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.svc.RateAppointment(ctx, a.ID, cmd, f.patient.ID, "patient", "")
	require.NoError(t, err)
	require.NotNil(t, got.PatientRating)
	assert.Equal(t, 4, got.PatientRating.Rating)

	_, err = f.svc.RateAppointment(ctx, a.ID, cmd, f.patient.ID, "patient", "")
	assert.ErrorIs(t, err, appointment.ErrAlreadyRated)
}

func TestListAppointmentsScoping(t *testing.T) {
	f := newFixture(t, nil)
	f.mustSchedule(t)

	otherPatient := uuid.New()

	page, err := f.svc.ListAppointments(context.Background(), &appointment.ListAppointmentsQuery{}, f.patient.ID, "patient")
	require.NoError(t, err)
	assert.Len(t, page.Appointments, 1)

	page, err = f.svc.ListAppointments(context.Background(), &appointment.ListAppointmentsQuery{}, otherPatient, "patient")
	require.NoError(t, err)
	assert.Empty(t, page.Appointments)

	// A patient asking for someone else's appointments is forced back to
	// their own.
	page, err = f.svc.ListAppointments(context.Background(),
		&appointment.ListAppointmentsQuery{PatientID: &f.patient.ID}, otherPatient, "patient")
	require.NoError(t, err)
	assert.Empty(t, page.Appointments)

	page, err = f.svc.ListAppointments(context.Background(), &appointment.ListAppointmentsQuery{}, f.admin.ID, "admin")
	require.NoError(t, err)
	assert.Len(t, page.Appointments, 1)
	assert.Equal(t, 20, page.PageSize, "default page size applied")
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	notifier := newFakeNotifier(errors.New("smtp down"))
	f := newFixture(t, notifier)

	a, err := f.svc.ScheduleAppointment(context.Background(), f.createCmd(), f.patient.ID, "patient", "")
	require.NoError(t, err, "booking succeeds even when the confirmation email fails")
	assert.NotEqual(t, uuid.Nil, a.ID)

	select {
	case <-notifier.confirmed:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation email was never attempted")
	}
}

func TestSendReminders(t *testing.T) {
	notifier := newFakeNotifier(nil)
	f := newFixture(t, notifier)

	// One appointment inside the window, one outside.
	soon := f.createCmd()
	d := time.Now().Add(2 * time.Hour)
	soon.ScheduledDate = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	soon.ScheduledTime = d.Format("15:04")
	a, err := f.svc.ScheduleAppointment(context.Background(), soon, f.patient.ID, "patient", "")
	require.NoError(t, err)

	far := f.createCmd()
	far.ScheduledTime = "10:00"
	_, err = f.svc.ScheduleAppointment(context.Background(), far, f.patient.ID, "patient", "")
	require.NoError(t, err)

	// Drain confirmation sends so the channel does not block later bookings.
	for range 2 {
		<-notifier.confirmed
	}

	require.NoError(t, f.svc.SendReminders(context.Background(), 24))

	notifier.mu.Lock()
	reminded := len(notifier.reminders)
	notifier.mu.Unlock()
	assert.Equal(t, 1, reminded)

	got, err := f.svc.GetAppointment(context.Background(), a.ID, f.patient.ID, "patient", "")
	require.NoError(t, err)
	assert.True(t, got.ReminderSent)

	// Second sweep finds nothing new.
	require.NoError(t, f.svc.SendReminders(context.Background(), 24))
	notifier.mu.Lock()
	assert.Equal(t, 1, len(notifier.reminders))
	notifier.mu.Unlock()
}
