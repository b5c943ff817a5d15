package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-booking/internal/appointment"
	"github.com/clinicdesk/clinic-booking/internal/notify"
)

type BookAppointmentRequest struct {
	DoctorUsername string `json:"doctor_username"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Reason         string `json:"reason,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type PrescriptionRequest struct {
	Prescription string `json:"prescription"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Token        int       `json:"token"`
	Status       string    `json:"status"`
	Reason       *string   `json:"reason,omitempty"`
	Prescription *string   `json:"prescription,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		DoctorID:     a.DoctorID,
		PatientID:    a.PatientID,
		Date:         a.Date.Format(appointment.DateLayout),
		Time:         a.Time,
		Token:        a.Token,
		Status:       string(a.Status),
		Reason:       a.Reason,
		Prescription: a.Prescription,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	EventType string    `json:"event_type"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func toNotificationResponses(list []notify.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			EventType: n.EventType,
			Subject:   n.Subject,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
