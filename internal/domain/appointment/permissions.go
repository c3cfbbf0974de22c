package appointment

// Field names an updatable appointment attribute for permission checks.
type Field string

const (
	FieldScheduledDate  Field = "scheduled_date"
	FieldScheduledTime  Field = "scheduled_time"
	FieldDuration       Field = "duration_mins"
	FieldType           Field = "type"
	FieldPriority       Field = "priority"
	FieldStatus         Field = "status"
	FieldChiefComplaint Field = "chief_complaint"
	FieldSymptoms       Field = "symptoms"
	FieldVitalSigns     Field = "vital_signs"
	FieldDoctorNotes    Field = "doctor_notes"
	FieldMeetingLink    Field = "meeting_link"
	FieldMeetingID      Field = "meeting_id"
	FieldPaymentStatus  Field = "payment_status"
	FieldPaymentMethod  Field = "payment_method"
)

// Per-role field whitelists. Which set applies additionally depends on the
// appointment's current status, see EditableFields.
var (
	patientFields = []Field{
		FieldScheduledDate, FieldScheduledTime,
		FieldChiefComplaint, FieldSymptoms, FieldVitalSigns,
	}
	doctorFields = []Field{
		FieldStatus, FieldDoctorNotes, FieldMeetingLink, FieldMeetingID,
	}
	allFields = []Field{
		FieldScheduledDate, FieldScheduledTime, FieldDuration, FieldType,
		FieldPriority, FieldStatus, FieldChiefComplaint, FieldSymptoms,
		FieldVitalSigns, FieldDoctorNotes, FieldMeetingLink, FieldMeetingID,
		FieldPaymentStatus, FieldPaymentMethod,
	}
)

// EditableFields returns the set of appointment fields the given role may
// modify while the appointment is in the given status:
//
//   - patients may adjust the slot and their own intake data, but only before
//     the visit starts (scheduled or confirmed);
//   - doctors own the clinical side (status, notes, meeting details) for any
//     non-terminal appointment;
//   - admins may touch every field regardless of status. Status transitions
//     and slot conflicts are still enforced by the service on top of this.
//
// Roles here are caller roles as carried in auth claims; an unknown role gets
// an empty set.
func EditableFields(role string, status AppointmentStatus) map[Field]bool {
	var fields []Field
	switch role {
	case "patient":
		if status == StatusScheduled || status == StatusConfirmed {
			fields = patientFields
		}
	case "doctor":
		if !status.IsTerminal() {
			fields = doctorFields
		}
	case "admin":
		fields = allFields
	}

	allowed := make(map[Field]bool, len(fields))
	for _, f := range fields {
		allowed[f] = true
	}
	return allowed
}

// CanEdit reports whether every requested field is permitted, returning the
// first offending field otherwise.
func CanEdit(role string, status AppointmentStatus, requested []Field) (Field, bool) {
	allowed := EditableFields(role, status)
	for _, f := range requested {
		if !allowed[f] {
			return f, false
		}
	}
	return "", true
}
