package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/internal/domain/appointment"
	"github.com/dpatel-io/clinicbook/pkg/metrics"
)

// UserDirectory is the slice of the user store the booking engine needs:
// resolving patients and doctors by id.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Notifier delivers booking-related messages to patients. Implementations are
// best-effort: the booking flow never fails because a notification did.
type Notifier interface {
	BookingConfirmed(ctx context.Context, toEmail, patientName, doctorName string, date time.Time, timeOfDay string) error
	AppointmentReminder(ctx context.Context, toEmail, patientName, doctorName string, date time.Time, timeOfDay string) error
}

const notifyTimeout = 10 * time.Second

type BookingService struct {
	repo     appointment.Repository
	users    UserDirectory
	auditSvc *AuditService
	notifier Notifier
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewBookingService(
	repo appointment.Repository,
	users UserDirectory,
	auditSvc *AuditService,
	notifier Notifier,
	collector *metrics.Collector,
	log *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:     repo,
		users:    users,
		auditSvc: auditSvc,
		notifier: notifier,
		metrics:  collector,
		log:      log,
	}
}

// ScheduleAppointment books a new appointment. Preconditions are checked in
// order and the first failure short-circuits: doctor must be bookable, the
// slot must be in the future, the slot must be free, and the request fields
// must pass validation. The conflict check runs twice: a cheap read-only
// pre-check here, then again under a row lock inside the insert transaction,
// so two concurrent bookings for the same slot cannot both commit.
func (s *BookingService) ScheduleAppointment(
	ctx context.Context,
	cmd *appointment.CreateAppointmentCommand,
	callerID uuid.UUID,
	callerRole string,
	ip string,
) (*appointment.Appointment, error) {
	applyCreateDefaults(cmd)

	if cmd.PatientID == cmd.DoctorID {
		return nil, &ValidationError{Fields: []string{"patient and doctor must be different users"}}
	}

	doctor, err := s.users.GetByID(ctx, cmd.DoctorID)
	if err != nil || !doctor.IsBookableDoctor() {
		return nil, appointment.ErrDoctorUnavailable
	}

	interval, err := appointment.ToInterval(cmd.ScheduledDate, cmd.ScheduledTime, cmd.DurationMins)
	if err != nil {
		return nil, err
	}
	if !interval.Start.After(time.Now()) {
		return nil, appointment.ErrScheduledInPast
	}

	free, err := s.slotFree(ctx, cmd.DoctorID, interval, nil)
	if err != nil {
		return nil, fmt.Errorf("checking conflicts: %w", err)
	}
	if !free {
		s.countConflict()
		return nil, appointment.ErrSlotUnavailable
	}

	if err := validateCreateCommand(cmd); err != nil {
		return nil, err
	}

	a := &appointment.Appointment{
		PatientID:      cmd.PatientID,
		DoctorID:       cmd.DoctorID,
		ScheduledDate:  cmd.ScheduledDate,
		ScheduledTime:  cmd.ScheduledTime,
		DurationMins:   cmd.DurationMins,
		Type:           cmd.Type,
		Priority:       cmd.Priority,
		Status:         appointment.StatusScheduled,
		ChiefComplaint: strings.TrimSpace(cmd.ChiefComplaint),
		Symptoms:       cmd.Symptoms,
		VitalSigns:     cmd.VitalSigns,
		Fee:            doctor.ConsultationFee,
		PaymentStatus:  appointment.PaymentPending,
	}

	if err := s.repo.CreateIfFree(ctx, a); err != nil {
		if errors.Is(err, appointment.ErrSlotUnavailable) {
			s.countConflict()
			return nil, err
		}
		s.log.Error("failed to create appointment", zap.Error(err))
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(string(appointment.StatusScheduled)).Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "create",
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		IPAddress:    ip,
	})

	s.notifyBookingConfirmed(a, doctor)

	return a, nil
}

// IsSlotAvailable reports whether the doctor is free for the candidate slot.
// excludeID skips one appointment, used when a reschedule checks against
// itself. The scan covers every blocking appointment for the doctor, not just
// the same calendar date, so slots crossing midnight are handled.
func (s *BookingService) IsSlotAvailable(
	ctx context.Context,
	doctorID uuid.UUID,
	date time.Time,
	timeOfDay string,
	durationMins int,
	excludeID *uuid.UUID,
) (bool, error) {
	interval, err := appointment.ToInterval(date, timeOfDay, durationMins)
	if err != nil {
		return false, err
	}
	return s.slotFree(ctx, doctorID, interval, excludeID)
}

func (s *BookingService) slotFree(ctx context.Context, doctorID uuid.UUID, interval appointment.Interval, excludeID *uuid.UUID) (bool, error) {
	blocking, err := s.repo.FindBlocking(ctx, doctorID, excludeID)
	if err != nil {
		return false, err
	}
	return !appointment.ConflictsWith(interval, blocking), nil
}

func (s *BookingService) GetAppointment(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := partyRole(a, callerID, callerRole); err != nil {
		return nil, err
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "read", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
	})

	return a, nil
}

// UpdateAppointment applies a permission-gated partial update. Which fields an
// actor may touch depends on their relationship to the appointment and its
// current status (see appointment.EditableFields). Moving the slot re-runs the
// conflict check excluding the appointment's own row, and status changes go
// through the transition graph even for admins.
func (s *BookingService) UpdateAppointment(
	ctx context.Context,
	id uuid.UUID,
	cmd *appointment.UpdateAppointmentCommand,
	callerID uuid.UUID,
	callerRole string,
	ip string,
) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := partyRole(a, callerID, callerRole)
	if err != nil {
		return nil, err
	}

	fields := cmd.Fields()
	if len(fields) == 0 {
		return nil, &ValidationError{Fields: []string{"no updatable fields provided"}}
	}
	if _, ok := appointment.CanEdit(role, a.Status, fields); !ok {
		return nil, ErrForbidden
	}

	if err := s.applyUpdate(ctx, a, cmd, callerID); err != nil {
		return nil, err
	}

	if cmd.ChangesSlot() {
		if err := s.repo.RescheduleIfFree(ctx, a); err != nil {
			if errors.Is(err, appointment.ErrSlotUnavailable) {
				s.countConflict()
			}
			return nil, err
		}
	} else if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fieldsJSON(fields),
	})

	return a, nil
}

func (s *BookingService) applyUpdate(ctx context.Context, a *appointment.Appointment, cmd *appointment.UpdateAppointmentCommand, callerID uuid.UUID) error {
	if cmd.Status != nil {
		newStatus := *cmd.Status
		if !newStatus.IsValid() {
			return &ValidationError{Fields: []string{"invalid status"}}
		}
		if !a.CanTransitionTo(newStatus) {
			return appointment.ErrInvalidStatusTransition
		}
		if newStatus == appointment.StatusCancelled {
			reason := ""
			if cmd.CancellationReason != nil {
				reason = *cmd.CancellationReason
			}
			if err := a.Cancel(reason, callerID); err != nil {
				return err
			}
		} else {
			a.Status = newStatus
		}
		if s.metrics != nil {
			s.metrics.BookingsTotal.WithLabelValues(string(newStatus)).Inc()
		}
	}

	if cmd.Type != nil {
		if !cmd.Type.IsValid() {
			return appointment.ErrInvalidAppointmentType
		}
		a.Type = *cmd.Type
	}
	if cmd.Priority != nil {
		if !cmd.Priority.IsValid() {
			return &ValidationError{Fields: []string{"invalid priority"}}
		}
		a.Priority = *cmd.Priority
	}
	if cmd.ChiefComplaint != nil {
		cc := strings.TrimSpace(*cmd.ChiefComplaint)
		if len(cc) == 0 || len(cc) > appointment.MaxChiefComplaintLen {
			return appointment.ErrInvalidChiefComplaint
		}
		a.ChiefComplaint = cc
	}
	if cmd.Symptoms != nil {
		a.Symptoms = cmd.Symptoms
	}
	if cmd.VitalSigns != nil {
		a.VitalSigns = cmd.VitalSigns
	}
	if cmd.DoctorNotes != nil {
		a.DoctorNotes = cmd.DoctorNotes
	}
	if cmd.MeetingLink != nil {
		a.MeetingLink = *cmd.MeetingLink
	}
	if cmd.MeetingID != nil {
		a.MeetingID = *cmd.MeetingID
	}
	if cmd.PaymentStatus != nil {
		if !cmd.PaymentStatus.IsValid() {
			return &ValidationError{Fields: []string{"invalid payment status"}}
		}
		a.PaymentStatus = *cmd.PaymentStatus
	}
	if cmd.PaymentMethod != nil {
		a.PaymentMethod = *cmd.PaymentMethod
	}

	if !cmd.ChangesSlot() {
		return nil
	}

	// Rescheduling: recompute the target interval from the merged fields and
	// re-validate the future-dated and conflict constraints.
	if cmd.ScheduledDate != nil {
		a.ScheduledDate = *cmd.ScheduledDate
	}
	if cmd.ScheduledTime != nil {
		a.ScheduledTime = *cmd.ScheduledTime
	}
	if cmd.DurationMins != nil {
		a.DurationMins = *cmd.DurationMins
	}
	if a.DurationMins < appointment.MinDurationMins || a.DurationMins > appointment.MaxDurationMins {
		return appointment.ErrInvalidDuration
	}

	interval, err := a.Interval()
	if err != nil {
		return err
	}
	if !interval.Start.After(time.Now()) {
		return appointment.ErrScheduledInPast
	}

	free, err := s.slotFree(ctx, a.DoctorID, interval, &a.ID)
	if err != nil {
		return fmt.Errorf("checking conflicts: %w", err)
	}
	if !free {
		s.countConflict()
		return appointment.ErrSlotUnavailable
	}

	return nil
}

func (s *BookingService) CancelAppointment(
	ctx context.Context,
	id uuid.UUID,
	cmd *appointment.CancelAppointmentCommand,
	callerID uuid.UUID,
	callerRole string,
	ip string,
) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := partyRole(a, callerID, callerRole); err != nil {
		return nil, err
	}

	if err := a.Cancel(cmd.Reason, cmd.CancelledBy); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(string(appointment.StatusCancelled)).Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "cancel", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":"cancelled","reason":%q}`, cmd.Reason),
	})

	return a, nil
}

func (s *BookingService) ConfirmAppointment(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusConfirmed, callerID, callerRole, ip)
}

func (s *BookingService) StartAppointment(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusInProgress, callerID, callerRole, ip)
}

func (s *BookingService) CompleteAppointment(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusCompleted, callerID, callerRole, ip)
}

func (s *BookingService) MarkNoShow(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	return s.transition(ctx, id, appointment.StatusNoShow, callerID, callerRole, ip)
}

// transition applies a status change on behalf of the appointment's doctor or
// an admin. Patients change status only via CancelAppointment.
func (s *BookingService) transition(ctx context.Context, id uuid.UUID, newStatus appointment.AppointmentStatus, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	role, err := partyRole(a, callerID, callerRole)
	if err != nil {
		return nil, err
	}
	if role != "doctor" && role != "admin" {
		return nil, ErrForbidden
	}

	if !a.CanTransitionTo(newStatus) {
		return nil, appointment.ErrInvalidStatusTransition
	}
	if newStatus == appointment.StatusNoShow {
		if err := a.MarkNoShow(); err != nil {
			return nil, err
		}
	} else {
		a.Status = newStatus
	}

	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(string(newStatus)).Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":%q}`, newStatus),
	})

	return a, nil
}

// RateAppointment records the patient's rating for a completed visit.
func (s *BookingService) RateAppointment(ctx context.Context, id uuid.UUID, cmd *appointment.RateAppointmentCommand, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerID != a.PatientID {
		return nil, ErrForbidden
	}

	if err := a.Rate(cmd.Rating, cmd.Feedback); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("saving rating: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"rating":%d}`, cmd.Rating),
	})

	return a, nil
}

func (s *BookingService) ListAppointments(ctx context.Context, q *appointment.ListAppointmentsQuery, callerID uuid.UUID, callerRole string) (*appointment.PagedAppointments, error) {
	// Patients and doctors only see their own appointments; admins see all.
	switch callerRole {
	case "patient":
		q.PatientID = &callerID
	case "doctor":
		q.DoctorID = &callerID
	}

	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

// SendReminders dispatches reminder emails for blocking appointments starting
// within the given window and flags them so they are not reminded twice.
// Intended to run from a periodic job; failures are logged and skipped.
func (s *BookingService) SendReminders(ctx context.Context, withinHours int) error {
	if s.notifier == nil {
		return nil
	}

	upcoming, err := s.repo.FindUpcoming(ctx, withinHours)
	if err != nil {
		return fmt.Errorf("finding upcoming appointments: %w", err)
	}

	for _, a := range upcoming {
		patient, perr := s.users.GetByID(ctx, a.PatientID)
		if perr != nil {
			continue
		}
		doctor, derr := s.users.GetByID(ctx, a.DoctorID)
		if derr != nil {
			continue
		}

		if err := s.notifier.AppointmentReminder(ctx, patient.Email, patient.FullName(), doctor.FullName(), a.ScheduledDate, a.ScheduledTime); err != nil {
			s.countNotification(false)
			s.log.Warn("failed to send appointment reminder",
				zap.String("appointment_id", a.ID.String()),
				zap.Error(err),
			)
			continue
		}
		s.countNotification(true)

		if err := s.repo.MarkReminderSent(ctx, a.ID); err != nil {
			s.log.Error("failed to mark reminder sent", zap.String("appointment_id", a.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// notifyBookingConfirmed sends the confirmation email in the background.
// A failure is logged and counted but never surfaced to the caller: the
// booking already committed.
func (s *BookingService) notifyBookingConfirmed(a *appointment.Appointment, doctor *domain.User) {
	if s.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		patient, err := s.users.GetByID(ctx, a.PatientID)
		if err != nil {
			s.log.Warn("skipping booking confirmation: patient lookup failed",
				zap.String("appointment_id", a.ID.String()),
				zap.Error(err),
			)
			return
		}

		if err := s.notifier.BookingConfirmed(ctx, patient.Email, patient.FullName(), doctor.FullName(), a.ScheduledDate, a.ScheduledTime); err != nil {
			s.countNotification(false)
			s.log.Warn("failed to send booking confirmation",
				zap.String("appointment_id", a.ID.String()),
				zap.Error(err),
			)
			return
		}
		s.countNotification(true)
	}()
}

func (s *BookingService) countConflict() {
	if s.metrics != nil {
		s.metrics.SlotConflictsTotal.Inc()
	}
}

func (s *BookingService) countNotification(ok bool) {
	if s.metrics == nil {
		return
	}
	if ok {
		s.metrics.NotificationsSentTotal.Inc()
	} else {
		s.metrics.NotificationFailuresTotal.Inc()
	}
}

// partyRole resolves the caller's effective role for one appointment: "admin"
// for admins, "patient"/"doctor" when the caller is that party, ErrForbidden
// otherwise.
func partyRole(a *appointment.Appointment, callerID uuid.UUID, callerRole string) (string, error) {
	switch {
	case callerRole == string(domain.RoleAdmin):
		return "admin", nil
	case callerRole == string(domain.RolePatient) && callerID == a.PatientID:
		return "patient", nil
	case callerRole == string(domain.RoleDoctor) && callerID == a.DoctorID:
		return "doctor", nil
	}
	return "", ErrForbidden
}

func applyCreateDefaults(cmd *appointment.CreateAppointmentCommand) {
	if cmd.DurationMins == 0 {
		cmd.DurationMins = 30
	}
	if cmd.Type == "" {
		cmd.Type = appointment.TypeConsultation
	}
	if cmd.Priority == "" {
		cmd.Priority = appointment.PriorityNormal
	}
}

func validateCreateCommand(cmd *appointment.CreateAppointmentCommand) error {
	if cmd.DurationMins < appointment.MinDurationMins || cmd.DurationMins > appointment.MaxDurationMins {
		return appointment.ErrInvalidDuration
	}
	if !cmd.Type.IsValid() {
		return appointment.ErrInvalidAppointmentType
	}
	if !cmd.Priority.IsValid() {
		return &ValidationError{Fields: []string{"invalid priority"}}
	}
	cc := strings.TrimSpace(cmd.ChiefComplaint)
	if len(cc) < appointment.MinChiefComplaintLen || len(cc) > appointment.MaxChiefComplaintLen {
		return appointment.ErrInvalidChiefComplaint
	}
	return nil
}

func fieldsJSON(fields []appointment.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return fmt.Sprintf(`{"fields":%q}`, strings.Join(names, ","))
}
