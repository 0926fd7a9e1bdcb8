package consultation

import (
	"crypto/rand"
	"math"
	"time"

	"github.com/google/uuid"
)

type Modality string

const (
	ModalityVideo Modality = "video"
	ModalityAudio Modality = "audio"
	ModalityChat  Modality = "chat"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityVideo, ModalityAudio, ModalityChat:
		return true
	}
	return false
}

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type DoctorStatus string

const (
	DoctorActive   DoctorStatus = "active"
	DoctorBusy     DoctorStatus = "busy"
	DoctorInactive DoctorStatus = "inactive"
)

type Clinic struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Name      string
	Specialty *string
	Status    DoctorStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type IssueSeverity string

const (
	SeverityMinor    IssueSeverity = "minor"
	SeverityModerate IssueSeverity = "moderate"
	SeverityMajor    IssueSeverity = "major"
)

func (s IssueSeverity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor:
		return true
	}
	return false
}

// VitalSignReading is one set of measurements taken during a consultation.
type VitalSignReading struct {
	Temperature *float64  `json:"temperature,omitempty"`
	HeartRate   *int      `json:"heart_rate,omitempty"`
	SystolicBP  *int      `json:"systolic_bp,omitempty"`
	DiastolicBP *int      `json:"diastolic_bp,omitempty"`
	OxygenSat   *float64  `json:"oxygen_saturation,omitempty"`
	Note        string    `json:"note,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type Prescription struct {
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency"`
	Duration       string    `json:"duration"`
	Instructions   string    `json:"instructions,omitempty"`
	PrescribedAt   time.Time `json:"prescribed_at"`
}

type FollowUpInstruction struct {
	Instruction string    `json:"instruction"`
	AddedAt     time.Time `json:"added_at"`
}

type TechnicalIssue struct {
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description,omitempty"`
	ReportedAt  time.Time     `json:"reported_at"`
}

// Session is one online encounter between a doctor and a patient.
// Clinic, doctor and patient references are fixed at creation; status only
// moves along scheduled -> in_progress -> completed, with cancelled
// reachable from either non-terminal state.
type Session struct {
	ID               uuid.UUID
	ClinicID         uuid.UUID
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	BookingID        *uuid.UUID
	Modality         Modality
	Status           Status
	ScheduledAt      time.Time
	StartedAt        *time.Time
	EndedAt          *time.Time
	DurationMinutes  *int
	MeetingRoomID    string
	Notes            *string
	VitalSigns       []VitalSignReading
	Prescriptions    []Prescription
	FollowUps        []FollowUpInstruction
	TechnicalIssues  []TechnicalIssue
	RecordingURL     *string
	RecordingConsent bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Duration returns the consultation length in minutes, rounded to the
// nearest minute. Zero when either endpoint is missing.
func (s *Session) Duration() int {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return int(math.Round(s.EndedAt.Sub(*s.StartedAt).Minutes()))
}

// IsLate reports whether the session is still waiting to start more than
// 15 minutes past its scheduled time. Never true once started.
func (s *Session) IsLate(now time.Time) bool {
	if s.Status != StatusScheduled {
		return false
	}
	return now.After(s.ScheduledAt.Add(15 * time.Minute))
}

// CanBeStarted reports whether the session may be started: it must still be
// scheduled, and starting opens 30 minutes before the scheduled time.
func (s *Session) CanBeStarted(now time.Time) bool {
	if s.Status != StatusScheduled {
		return false
	}
	return !s.ScheduledAt.After(now.Add(30 * time.Minute))
}

const (
	videoMeetingBase = "https://meet.clinicdesk.io/"
	chatMeetingBase  = "https://chat.clinicdesk.io/"
	audioDialPrefix  = "tel:+815031234567,,"
)

// MeetingURL builds the join link for the session's modality from the
// meeting-room token. Pure formatting, no network calls.
func (s *Session) MeetingURL() string {
	switch s.Modality {
	case ModalityVideo:
		return videoMeetingBase + s.MeetingRoomID
	case ModalityAudio:
		return audioDialPrefix + s.MeetingRoomID
	case ModalityChat:
		return chatMeetingBase + s.MeetingRoomID
	}
	return ""
}

// TechnicalQualityScore derives a 0-100 score from recorded technical
// issues. Returns nil when no issues were ever recorded: "no data" and
// "score of zero" are different facts.
func (s *Session) TechnicalQualityScore() *int {
	if len(s.TechnicalIssues) == 0 {
		return nil
	}
	score := 100
	for _, issue := range s.TechnicalIssues {
		switch issue.Severity {
		case SeverityMinor:
			score -= 5
		case SeverityModerate:
			score -= 15
		case SeverityMajor:
			score -= 30
		}
	}
	if score < 0 {
		score = 0
	}
	return &score
}

// Summary is a read-only projection for display, never persisted.
type Summary struct {
	DurationMinutes    int      `json:"duration_minutes"`
	Modality           Modality `json:"modality"`
	QualityScore       *int     `json:"quality_score"`
	PrescriptionCount  int      `json:"prescription_count"`
	FollowUpCount      int      `json:"follow_up_count"`
	VitalSignsRecorded bool     `json:"vital_signs_recorded"`
	RecordingAvailable bool     `json:"recording_available"`
}

func (s *Session) Summary() Summary {
	dur := 0
	if s.DurationMinutes != nil {
		dur = *s.DurationMinutes
	}
	return Summary{
		DurationMinutes:    dur,
		Modality:           s.Modality,
		QualityScore:       s.TechnicalQualityScore(),
		PrescriptionCount:  len(s.Prescriptions),
		FollowUpCount:      len(s.FollowUps),
		VitalSignsRecorded: len(s.VitalSigns) > 0,
		RecordingAvailable: s.RecordingURL != nil && *s.RecordingURL != "",
	}
}

const meetingRoomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewMeetingRoomID generates an opaque 12-character alphanumeric token.
// Uniqueness across sessions is enforced by the store.
func NewMeetingRoomID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to a
		// UUID fragment rather than return an empty token.
		return uuid.NewString()[:12]
	}
	for i, b := range buf {
		buf[i] = meetingRoomAlphabet[int(b)%len(meetingRoomAlphabet)]
	}
	return string(buf)
}

type EventLog struct {
	ID        int64
	EventType string
	SessionID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
