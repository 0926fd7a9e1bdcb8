package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/online-consultation-service/internal/consultation"
)

type CreateConsultationRequest struct {
	DoctorID         string    `json:"doctor_id"`
	PatientID        string    `json:"patient_id"`
	BookingID        string    `json:"booking_id,omitempty"`
	Modality         string    `json:"modality"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	RecordingConsent bool      `json:"recording_consent"`
}

type EndConsultationRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type CancelConsultationRequest struct {
	Reason string `json:"reason,omitempty"`
}

type VitalSignsRequest struct {
	Temperature *float64 `json:"temperature,omitempty"`
	HeartRate   *int     `json:"heart_rate,omitempty"`
	SystolicBP  *int     `json:"systolic_bp,omitempty"`
	DiastolicBP *int     `json:"diastolic_bp,omitempty"`
	OxygenSat   *float64 `json:"oxygen_saturation,omitempty"`
	Note        string   `json:"note,omitempty"`
}

type PrescriptionRequest struct {
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Frequency      string `json:"frequency"`
	Duration       string `json:"duration"`
	Instructions   string `json:"instructions,omitempty"`
}

type FollowUpRequest struct {
	Instruction string `json:"instruction"`
}

type TechnicalIssueRequest struct {
	Severity    string `json:"severity"`
	Description string `json:"description,omitempty"`
}

// ConsultationResponse is the session projection returned to callers. The
// clinical lists round-trip in their original order.
type ConsultationResponse struct {
	ID               uuid.UUID                          `json:"id"`
	ClinicID         uuid.UUID                          `json:"clinic_id"`
	DoctorID         uuid.UUID                          `json:"doctor_id"`
	PatientID        uuid.UUID                          `json:"patient_id"`
	BookingID        *uuid.UUID                         `json:"booking_id,omitempty"`
	Modality         consultation.Modality              `json:"modality"`
	Status           consultation.Status                `json:"status"`
	ScheduledAt      time.Time                          `json:"scheduled_at"`
	StartedAt        *time.Time                         `json:"started_at,omitempty"`
	EndedAt          *time.Time                         `json:"ended_at,omitempty"`
	DurationMinutes  *int                               `json:"duration_minutes,omitempty"`
	MeetingRoomID    string                             `json:"meeting_room_id"`
	Notes            *string                            `json:"consultation_notes,omitempty"`
	VitalSigns       []consultation.VitalSignReading    `json:"vital_signs_history"`
	Prescriptions    []consultation.Prescription        `json:"prescriptions"`
	FollowUps        []consultation.FollowUpInstruction `json:"follow_up_instructions"`
	TechnicalIssues  []consultation.TechnicalIssue      `json:"technical_issues"`
	QualityScore     *int                               `json:"technical_quality_score"`
	Summary          consultation.Summary               `json:"summary"`
	RecordingURL     *string                            `json:"recording_url,omitempty"`
	RecordingConsent bool                               `json:"recording_consent"`
	CreatedAt        time.Time                          `json:"created_at"`
	UpdatedAt        time.Time                          `json:"updated_at"`
}

type ConsultationListResponse struct {
	Consultations []ConsultationResponse `json:"consultations"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

type MeetingURLResponse struct {
	MeetingURL    string `json:"meeting_url"`
	MeetingRoomID string `json:"meeting_room_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toConsultationResponse(s *consultation.Session) ConsultationResponse {
	resp := ConsultationResponse{
		ID:               s.ID,
		ClinicID:         s.ClinicID,
		DoctorID:         s.DoctorID,
		PatientID:        s.PatientID,
		BookingID:        s.BookingID,
		Modality:         s.Modality,
		Status:           s.Status,
		ScheduledAt:      s.ScheduledAt,
		StartedAt:        s.StartedAt,
		EndedAt:          s.EndedAt,
		DurationMinutes:  s.DurationMinutes,
		MeetingRoomID:    s.MeetingRoomID,
		Notes:            s.Notes,
		VitalSigns:       s.VitalSigns,
		Prescriptions:    s.Prescriptions,
		FollowUps:        s.FollowUps,
		TechnicalIssues:  s.TechnicalIssues,
		QualityScore:     s.TechnicalQualityScore(),
		Summary:          s.Summary(),
		RecordingURL:     s.RecordingURL,
		RecordingConsent: s.RecordingConsent,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}

	// Empty lists serialize as [], not null.
	if resp.VitalSigns == nil {
		resp.VitalSigns = []consultation.VitalSignReading{}
	}
	if resp.Prescriptions == nil {
		resp.Prescriptions = []consultation.Prescription{}
	}
	if resp.FollowUps == nil {
		resp.FollowUps = []consultation.FollowUpInstruction{}
	}
	if resp.TechnicalIssues == nil {
		resp.TechnicalIssues = []consultation.TechnicalIssue{}
	}
	return resp
}
