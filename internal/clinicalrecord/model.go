package clinicalrecord

import (
	"time"

	"github.com/google/uuid"
)

type RecordType string

const (
	TypeConsultation RecordType = "consultation"
	TypeExamination  RecordType = "examination"
	TypeTreatment    RecordType = "treatment"
)

type RecordStatus string

const (
	StatusDraft  RecordStatus = "draft"
	StatusSigned RecordStatus = "signed"
	StatusLocked RecordStatus = "locked"
)

// Record is a draft entry in the system of record for clinical
// documentation. Completed consultations create one; signing and locking
// happen downstream of this service.
type Record struct {
	ID             uuid.UUID
	ClinicID       uuid.UUID
	DoctorID       uuid.UUID
	PatientID      uuid.UUID
	ConsultationID *uuid.UUID
	RecordType     RecordType
	Status         RecordStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
