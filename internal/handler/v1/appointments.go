package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dpatel-io/clinicbook/internal/domain"
	"github.com/dpatel-io/clinicbook/internal/domain/appointment"
	"github.com/dpatel-io/clinicbook/internal/middleware"
	"github.com/dpatel-io/clinicbook/internal/service"
)

type AppointmentHandler struct {
	bookings *service.BookingService
}

func NewAppointmentHandler(bookings *service.BookingService) *AppointmentHandler {
	return &AppointmentHandler{bookings: bookings}
}

type createAppointmentRequest struct {
	PatientID      uuid.UUID               `json:"patient_id"`
	DoctorID       uuid.UUID               `json:"doctor_id" binding:"required"`
	ScheduledDate  string                  `json:"scheduled_date" binding:"required"` // YYYY-MM-DD
	ScheduledTime  string                  `json:"scheduled_time" binding:"required"` // HH:MM
	DurationMins   int                     `json:"duration_mins"`
	Type           string                  `json:"type"`
	Priority       string                  `json:"priority"`
	ChiefComplaint string                  `json:"chief_complaint" binding:"required"`
	Symptoms       []appointment.Symptom   `json:"symptoms"`
	VitalSigns     *appointment.VitalSigns `json:"vital_signs"`
}

type updateAppointmentRequest struct {
	ScheduledDate      *string                  `json:"scheduled_date"`
	ScheduledTime      *string                  `json:"scheduled_time"`
	DurationMins       *int                     `json:"duration_mins"`
	Type               *string                  `json:"type"`
	Priority           *string                  `json:"priority"`
	Status             *string                  `json:"status"`
	CancellationReason *string                  `json:"cancellation_reason"`
	ChiefComplaint     *string                  `json:"chief_complaint"`
	Symptoms           []appointment.Symptom    `json:"symptoms"`
	VitalSigns         *appointment.VitalSigns  `json:"vital_signs"`
	DoctorNotes        *appointment.DoctorNotes `json:"doctor_notes"`
	MeetingLink        *string                  `json:"meeting_link"`
	MeetingID          *string                  `json:"meeting_id"`
	PaymentStatus      *string                  `json:"payment_status"`
	PaymentMethod      *string                  `json:"payment_method"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type rateAppointmentRequest struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback"`
}

type availabilityResponse struct {
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	DurationMins  int       `json:"duration_mins"`
	Available     bool      `json:"available"`
}

const dateLayout = "2006-01-02"

// Create books an appointment. Patients can only book for themselves; doctors
// and admins may book on a patient's behalf by setting patient_id.
func (h *AppointmentHandler) Create(c *gin.Context) {
	claims := middleware.MustClaims(c)

	var req createAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	date, err := time.Parse(dateLayout, req.ScheduledDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid scheduled_date: expected YYYY-MM-DD")
		return
	}

	patientID := req.PatientID
	if claims.Role == domain.RolePatient {
		patientID = claims.UserID
	} else if patientID == uuid.Nil {
		respondError(c, http.StatusBadRequest, "patient_id is required")
		return
	}

	cmd := &appointment.CreateAppointmentCommand{
		PatientID:      patientID,
		DoctorID:       req.DoctorID,
		ScheduledDate:  date,
		ScheduledTime:  req.ScheduledTime,
		DurationMins:   req.DurationMins,
		Type:           appointment.AppointmentType(req.Type),
		Priority:       appointment.Priority(req.Priority),
		ChiefComplaint: req.ChiefComplaint,
		Symptoms:       req.Symptoms,
		VitalSigns:     req.VitalSigns,
	}

	a, err := h.bookings.ScheduleAppointment(c.Request.Context(), cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, a)
}

func (h *AppointmentHandler) List(c *gin.Context) {
	claims := middleware.MustClaims(c)

	q := &appointment.ListAppointmentsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}

	if raw := c.Query("status"); raw != "" {
		status := appointment.AppointmentStatus(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &status
	}
	if raw := c.Query("type"); raw != "" {
		atype := appointment.AppointmentType(raw)
		if !atype.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid type filter")
			return
		}
		q.Type = &atype
	}
	if raw := c.Query("date_from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid date_from: expected YYYY-MM-DD")
			return
		}
		q.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid date_to: expected YYYY-MM-DD")
			return
		}
		q.DateTo = &t
	}
	// Admins may scope to a specific patient or doctor; other roles are scoped
	// to themselves by the service regardless of what they pass.
	if claims.Role == domain.RoleAdmin {
		if raw := c.Query("patient_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid patient_id")
				return
			}
			q.PatientID = &id
		}
		if raw := c.Query("doctor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid doctor_id")
				return
			}
			q.DoctorID = &id
		}
	}

	page, err := h.bookings.ListAppointments(c.Request.Context(), q, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": page.Appointments,
		"pagination": gin.H{
			"page":        page.Page,
			"page_size":   page.PageSize,
			"total_count": page.TotalCount,
			"total_pages": page.TotalPages,
		},
	})
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	claims := middleware.MustClaims(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.bookings.GetAppointment(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

func (h *AppointmentHandler) Update(c *gin.Context) {
	claims := middleware.MustClaims(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &appointment.UpdateAppointmentCommand{
		DurationMins:       req.DurationMins,
		CancellationReason: req.CancellationReason,
		ChiefComplaint:     req.ChiefComplaint,
		Symptoms:           req.Symptoms,
		VitalSigns:         req.VitalSigns,
		DoctorNotes:        req.DoctorNotes,
		MeetingLink:        req.MeetingLink,
		MeetingID:          req.MeetingID,
		PaymentMethod:      req.PaymentMethod,
	}

	if req.ScheduledDate != nil {
		date, err := time.Parse(dateLayout, *req.ScheduledDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid scheduled_date: expected YYYY-MM-DD")
			return
		}
		cmd.ScheduledDate = &date
	}
	cmd.ScheduledTime = req.ScheduledTime
	if req.Type != nil {
		t := appointment.AppointmentType(*req.Type)
		cmd.Type = &t
	}
	if req.Priority != nil {
		p := appointment.Priority(*req.Priority)
		cmd.Priority = &p
	}
	if req.Status != nil {
		s := appointment.AppointmentStatus(*req.Status)
		cmd.Status = &s
	}
	if req.PaymentStatus != nil {
		p := appointment.PaymentStatus(*req.PaymentStatus)
		cmd.PaymentStatus = &p
	}

	a, err := h.bookings.UpdateAppointment(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	claims := middleware.MustClaims(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cancelAppointmentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	cmd := &appointment.CancelAppointmentCommand{
		Reason:      req.Reason,
		CancelledBy: claims.UserID,
	}

	a, err := h.bookings.CancelAppointment(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

func (h *AppointmentHandler) Confirm(c *gin.Context) {
	h.applyTransition(c, h.bookings.ConfirmAppointment)
}

func (h *AppointmentHandler) Start(c *gin.Context) {
	h.applyTransition(c, h.bookings.StartAppointment)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	h.applyTransition(c, h.bookings.CompleteAppointment)
}

func (h *AppointmentHandler) NoShow(c *gin.Context) {
	h.applyTransition(c, h.bookings.MarkNoShow)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error)

func (h *AppointmentHandler) applyTransition(c *gin.Context, fn transitionFunc) {
	claims := middleware.MustClaims(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := fn(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

func (h *AppointmentHandler) Rate(c *gin.Context) {
	claims := middleware.MustClaims(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req rateAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	cmd := &appointment.RateAppointmentCommand{Rating: req.Rating, Feedback: req.Feedback}

	a, err := h.bookings.RateAppointment(c.Request.Context(), id, cmd, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

// Availability checks whether a doctor is free for a candidate slot without
// creating anything. Any authenticated user may call it.
func (h *AppointmentHandler) Availability(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "doctor_id is required and must be a valid UUID")
		return
	}

	date, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "date is required: expected YYYY-MM-DD")
		return
	}

	timeOfDay := c.Query("time")
	if timeOfDay == "" {
		respondError(c, http.StatusBadRequest, "time is required: expected HH:MM")
		return
	}

	duration := parseQueryInt(c, "duration_mins", 30)

	available, err := h.bookings.IsSlotAvailable(c.Request.Context(), doctorID, date, timeOfDay, duration, nil)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, availabilityResponse{
		DoctorID:      doctorID,
		ScheduledDate: date.Format(dateLayout),
		ScheduledTime: timeOfDay,
		DurationMins:  duration,
		Available:     available,
	})
}
