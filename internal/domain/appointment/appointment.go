package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow-up"
	TypeEmergency      AppointmentType = "emergency"
	TypeRoutineCheckup AppointmentType = "routine-checkup"
)

func (t AppointmentType) IsValid() bool {
	switch t {
	case TypeConsultation, TypeFollowUp, TypeEmergency, TypeRoutineCheckup:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// State transitions:
//
//	scheduled → confirmed → in-progress → completed
//	{scheduled, confirmed, in-progress} → cancelled
//	{scheduled, confirmed, in-progress} → no-show
//
// completed, cancelled and no-show are terminal.
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no-show"
)

func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// BlockingStatuses are the statuses that occupy the doctor's schedule. Only
// appointments in one of these states participate in conflict detection.
var BlockingStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

func (s AppointmentStatus) IsBlocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) IsValid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Symptom struct {
	Name     string `json:"name"`
	Severity string `json:"severity,omitempty"` // mild | moderate | severe
	Duration string `json:"duration,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

type VitalSigns struct {
	Temperature   float64        `json:"temperature,omitempty"`
	BloodPressure *BloodPressure `json:"blood_pressure,omitempty"`
	HeartRate     int            `json:"heart_rate,omitempty"`
	Weight        float64        `json:"weight,omitempty"`
	Height        float64        `json:"height,omitempty"`
}

type PrescriptionItem struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

type DoctorNotes struct {
	Diagnosis        string             `json:"diagnosis,omitempty"`
	Treatment        string             `json:"treatment,omitempty"`
	Prescription     []PrescriptionItem `json:"prescription,omitempty"`
	FollowUpRequired bool               `json:"follow_up_required,omitempty"`
	FollowUpDate     *time.Time         `json:"follow_up_date,omitempty"`
	AdditionalNotes  string             `json:"additional_notes,omitempty"`
}

type Rating struct {
	Rating   int       `json:"rating"` // 1–5
	Feedback string    `json:"feedback,omitempty"`
	RatedAt  time.Time `json:"rated_at"`
}

const (
	MinDurationMins = 15
	MaxDurationMins = 120

	// Chief complaint bounds: storage allows up to 500 chars, but booking
	// requires at least 10 so the doctor has something to work with.
	MinChiefComplaintLen = 10
	MaxChiefComplaintLen = 500
)

type Appointment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"-"`

	// Parties are fixed at creation. Rescheduling moves the slot, never the people.
	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index" json:"patient_id"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index" json:"doctor_id"`

	ScheduledDate time.Time `gorm:"column:scheduled_date;type:date;not null;index" json:"scheduled_date"`
	ScheduledTime string    `gorm:"column:scheduled_time;type:varchar(5);not null" json:"scheduled_time"` // HH:MM, 24-hour
	DurationMins  int       `gorm:"column:duration_mins;not null;default:30" json:"duration_mins"`

	Type     AppointmentType   `gorm:"column:type;type:varchar(30);not null;index" json:"type"`
	Status   AppointmentStatus `gorm:"column:status;type:varchar(20);not null;default:'scheduled';index" json:"status"`
	Priority Priority          `gorm:"column:priority;type:varchar(10);not null;default:'normal'" json:"priority"`

	ChiefComplaint string       `gorm:"column:chief_complaint;type:varchar(500);not null" json:"chief_complaint"`
	Symptoms       []Symptom    `gorm:"column:symptoms;serializer:json" json:"symptoms,omitempty"`
	VitalSigns     *VitalSigns  `gorm:"column:vital_signs;serializer:json" json:"vital_signs,omitempty"`
	DoctorNotes    *DoctorNotes `gorm:"column:doctor_notes;serializer:json" json:"doctor_notes,omitempty"`

	// Fee is snapshotted from the doctor's consultation fee at booking time and
	// never recomputed, so later fee changes don't affect existing bookings.
	Fee           float64       `gorm:"column:fee;type:numeric(10,2);not null" json:"fee"`
	PaymentStatus PaymentStatus `gorm:"column:payment_status;type:varchar(10);not null;default:'pending'" json:"payment_status"`
	PaymentMethod string        `gorm:"column:payment_method;type:varchar(20)" json:"payment_method,omitempty"`

	MeetingLink string `gorm:"column:meeting_link;type:text" json:"meeting_link,omitempty"`
	MeetingID   string `gorm:"column:meeting_id;type:varchar(100)" json:"meeting_id,omitempty"`

	PatientRating *Rating `gorm:"column:patient_rating;serializer:json" json:"patient_rating,omitempty"`

	CancellationReason string     `gorm:"column:cancellation_reason;type:text" json:"cancellation_reason,omitempty"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid" json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	ReminderSent   bool       `gorm:"column:reminder_sent;default:false" json:"reminder_sent"`
	ReminderSentAt *time.Time `gorm:"column:reminder_sent_at" json:"reminder_sent_at,omitempty"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

// Interval derives the appointment's half-open time interval from the full
// date+time pair, so a slot that starts late in the evening and ends after
// midnight resolves correctly instead of being clamped to the calendar date.
func (a *Appointment) Interval() (Interval, error) {
	return ToInterval(a.ScheduledDate, a.ScheduledTime, a.DurationMins)
}

func (a *Appointment) CanTransitionTo(newStatus AppointmentStatus) bool {
	allowed := map[AppointmentStatus][]AppointmentStatus{
		StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
		StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
		StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
		StatusCompleted:  {},
		StatusCancelled:  {},
		StatusNoShow:     {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

func (a *Appointment) Cancel(reason string, cancelledBy uuid.UUID) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = strings.TrimSpace(reason)
	a.CancelledBy = &cancelledBy
	return nil
}

func (a *Appointment) MarkNoShow() error {
	if !a.CanTransitionTo(StatusNoShow) {
		return ErrInvalidStatusTransition
	}
	a.Status = StatusNoShow
	return nil
}

// Rate records the patient's rating. Only completed appointments can be rated,
// and only once.
func (a *Appointment) Rate(rating int, feedback string) error {
	if a.Status != StatusCompleted {
		return ErrNotRatable
	}
	if a.PatientRating != nil {
		return ErrAlreadyRated
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	a.PatientRating = &Rating{Rating: rating, Feedback: strings.TrimSpace(feedback), RatedAt: time.Now()}
	return nil
}

type CreateAppointmentCommand struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	ScheduledDate  time.Time
	ScheduledTime  string
	DurationMins   int
	Type           AppointmentType
	Priority       Priority
	ChiefComplaint string
	Symptoms       []Symptom
	VitalSigns     *VitalSigns
}

// UpdateAppointmentCommand carries a partial update. Nil fields are untouched.
// CancellationReason rides along with Status and is only read when the update
// moves the appointment to cancelled.
type UpdateAppointmentCommand struct {
	ScheduledDate      *time.Time
	ScheduledTime      *string
	DurationMins       *int
	Type               *AppointmentType
	Priority           *Priority
	Status             *AppointmentStatus
	CancellationReason *string
	ChiefComplaint     *string
	Symptoms           []Symptom
	VitalSigns         *VitalSigns
	DoctorNotes        *DoctorNotes
	MeetingLink        *string
	MeetingID          *string
	PaymentStatus      *PaymentStatus
	PaymentMethod      *string
}

// Fields lists the fields the command actually sets, for permission checks.
func (c *UpdateAppointmentCommand) Fields() []Field {
	var fields []Field
	if c.ScheduledDate != nil {
		fields = append(fields, FieldScheduledDate)
	}
	if c.ScheduledTime != nil {
		fields = append(fields, FieldScheduledTime)
	}
	if c.DurationMins != nil {
		fields = append(fields, FieldDuration)
	}
	if c.Type != nil {
		fields = append(fields, FieldType)
	}
	if c.Priority != nil {
		fields = append(fields, FieldPriority)
	}
	if c.Status != nil {
		fields = append(fields, FieldStatus)
	}
	if c.ChiefComplaint != nil {
		fields = append(fields, FieldChiefComplaint)
	}
	if c.Symptoms != nil {
		fields = append(fields, FieldSymptoms)
	}
	if c.VitalSigns != nil {
		fields = append(fields, FieldVitalSigns)
	}
	if c.DoctorNotes != nil {
		fields = append(fields, FieldDoctorNotes)
	}
	if c.MeetingLink != nil {
		fields = append(fields, FieldMeetingLink)
	}
	if c.MeetingID != nil {
		fields = append(fields, FieldMeetingID)
	}
	if c.PaymentStatus != nil {
		fields = append(fields, FieldPaymentStatus)
	}
	if c.PaymentMethod != nil {
		fields = append(fields, FieldPaymentMethod)
	}
	return fields
}

// ChangesSlot reports whether the command moves the appointment in time and
// therefore requires a fresh conflict check.
func (c *UpdateAppointmentCommand) ChangesSlot() bool {
	return c.ScheduledDate != nil || c.ScheduledTime != nil || c.DurationMins != nil
}

type CancelAppointmentCommand struct {
	Reason      string
	CancelledBy uuid.UUID
}

type RateAppointmentCommand struct {
	Rating   int
	Feedback string
}

type ListAppointmentsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *AppointmentStatus
	Type      *AppointmentType
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
