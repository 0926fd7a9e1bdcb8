package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClinicNotFound   = errors.New("clinic not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrPatientNotFound  = errors.New("patient not found")
	ErrSessionNotFound  = errors.New("consultation not found")
	ErrMeetingRoomTaken = errors.New("meeting room id already in use")
)

// ValidationError rejects bad input at construction time, as opposed to the
// wrong-state sentinels a transition returns.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StatusUpdate carries the fields a transition sets alongside the status
// itself. Nil fields are left untouched by the store.
type StatusUpdate struct {
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationMinutes *int
	Notes           *string
}

type ListFilter struct {
	Status   *Status
	DoctorID *uuid.UUID
	Limit    int
	Offset   int
}

// Repository contains all store interactions needed by the service and the
// effects dispatcher. Any backing store works: the pgx implementation is
// used in production, the in-memory one in tests and fixtures.
type Repository interface {
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateSession(ctx context.Context, s *Session) (*Session, error)
	GetSessionByID(ctx context.Context, clinicID, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, clinicID uuid.UUID, f ListFilter) ([]Session, error)

	// UpdateSessionStatus is a conditional update guarded by the current
	// status: two concurrent callers cannot both move the same session out
	// of `from`. A miss surfaces as ErrSessionNotFound.
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, from, to Status, upd StatusUpdate) (*Session, error)

	// Clinical payload appends. Each is rejected by the store once the
	// session is cancelled.
	AppendVitalSigns(ctx context.Context, id uuid.UUID, reading VitalSignReading) (*Session, error)
	AppendPrescription(ctx context.Context, id uuid.UUID, p Prescription) (*Session, error)
	AppendFollowUp(ctx context.Context, id uuid.UUID, f FollowUpInstruction) (*Session, error)
	AppendTechnicalIssue(ctx context.Context, id uuid.UUID, issue TechnicalIssue) (*Session, error)

	UpdateDoctorStatus(ctx context.Context, doctorID uuid.UUID, status DoctorStatus) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
