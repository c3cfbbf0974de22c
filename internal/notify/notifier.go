package notify

import (
	"context"
	"fmt"
	"time"
)

// EmailNotifier composes patient-facing booking emails and hands them to an
// EmailSender. It satisfies the booking service's Notifier interface.
type EmailNotifier struct {
	sender EmailSender
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

const dateLayout = "Monday, January 2, 2006"

func (n *EmailNotifier) BookingConfirmed(ctx context.Context, toEmail, patientName, doctorName string, date time.Time, timeOfDay string) error {
	msg := EmailMessage{
		To:      toEmail,
		ToName:  patientName,
		Subject: "Your appointment is booked",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour appointment with Dr. %s is booked for %s at %s.\n\nIf you need to reschedule or cancel, please do so from your dashboard.\n\nClinicBook",
			patientName, doctorName, date.Format(dateLayout), timeOfDay,
		),
	}
	return n.sender.Send(ctx, msg)
}

func (n *EmailNotifier) AppointmentReminder(ctx context.Context, toEmail, patientName, doctorName string, date time.Time, timeOfDay string) error {
	msg := EmailMessage{
		To:      toEmail,
		ToName:  patientName,
		Subject: "Appointment reminder",
		Body: fmt.Sprintf(
			"Hi %s,\n\nThis is a reminder of your upcoming appointment with Dr. %s on %s at %s.\n\nClinicBook",
			patientName, doctorName, date.Format(dateLayout), timeOfDay,
		),
	}
	return n.sender.Send(ctx, msg)
}
