package appointment

import "errors"

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrSlotUnavailable         = errors.New("the selected time slot is not available")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrScheduledInPast         = errors.New("appointment must be scheduled for a future date and time")
	ErrInvalidDuration         = errors.New("appointment duration must be between 15 and 120 minutes")
	ErrInvalidAppointmentType  = errors.New("invalid appointment type")
	ErrInvalidTimeFormat       = errors.New("time must be in HH:MM 24-hour format")
	ErrInvalidChiefComplaint   = errors.New("chief complaint must be between 10 and 500 characters")
	ErrDoctorUnavailable       = errors.New("doctor not found, inactive or not verified")
	ErrNotRatable              = errors.New("only completed appointments can be rated")
	ErrAlreadyRated            = errors.New("appointment has already been rated")
	ErrInvalidRating           = errors.New("rating must be between 1 and 5")
)
